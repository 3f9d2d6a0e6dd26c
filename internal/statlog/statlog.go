// Package statlog periodically dumps an engine.Stats snapshot to a CSV
// file, in the style of kcptun's std.SnmpLogger writing kcp.DefaultSnmp.
package statlog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Snapshotter is satisfied by engine.Snapshot (what rudp.Socket.Stats
// returns); it
// decouples this package from internal/engine so it can log any
// source of CSV rows, not only a live *rudp.Socket.
type Snapshotter interface {
	Header() []string
	Row() []string
}

// Run blocks, appending one row to path every interval, until stop is
// closed. path is formatted through time.Format at each tick (as
// SnmpLogger does), so a rotating filename like "stats-20060102.csv"
// produces one file per day. A zero path or interval disables logging
// and Run returns immediately.
func Run(path string, interval time.Duration, snapshot func() Snapshotter, stop <-chan struct{}) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			writeRow(path, snapshot())
		}
	}
}

func writeRow(path string, snap Snapshotter) {
	logdir, logfile := filepath.Split(path)
	f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Println("statlog:", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(append([]string{"Unix"}, snap.Header()...)); err != nil {
			log.Println("statlog:", err)
		}
	}
	if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, snap.Row()...)); err != nil {
		log.Println("statlog:", err)
	}
	w.Flush()
}
