// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// rudprecv listens on a single RUDP socket and reassembles incoming
// Begin/Data/End sequences (internal/xferfile) into files on disk, one
// per peer, in the spirit of the original vs_recv tool.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/go-rudp/rudp"
	"github.com/go-rudp/rudp/internal/statlog"
	"github.com/go-rudp/rudp/internal/xferfile"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

// rxfile tracks one in-progress incoming file for one peer, replacing
// the original's rxhead linked list with a map keyed by peer address.
type rxfile struct {
	f    *os.File
	name string
}

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "rudprecv"
	app.Usage = "receive files sent by rudpsend"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":29900",
			Usage: "local listen address",
		},
		cli.StringFlag{
			Name:  "outdir,o",
			Value: ".",
			Usage: "directory to write received files into",
		},
		cli.StringFlag{
			Name:  "snmplog",
			Usage: "collect stats to file, aware of time formatting in golang, like: ./snmp-20060102.csv",
		},
		cli.IntFlag{
			Name:  "snmpperiod",
			Value: 60,
			Usage: "stats collection period, in seconds",
		},
		cli.StringFlag{
			Name:  "c",
			Usage: "config from JSON file, which overrides the flags above",
		},
	}
	app.Action = func(c *cli.Context) error {
		cfg := Config{
			Listen:     c.String("listen"),
			OutDir:     c.String("outdir"),
			SnmpLog:    c.String("snmplog"),
			SnmpPeriod: c.Int("snmpperiod"),
		}
		if path := c.String("c"); path != "" {
			if err := parseJSONConfig(&cfg, path); err != nil {
				return errors.Wrap(err, "parseJSONConfig")
			}
		}

		if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
			return errors.Wrap(err, "MkdirAll")
		}

		recv := &receiver{outdir: cfg.OutDir, files: make(map[string]*rxfile)}

		sock, err := rudp.New(cfg.Listen, recv.onData, recv.onEvent)
		if err != nil {
			return errors.Wrap(err, "rudp.New")
		}
		watchSignals(sock)
		log.Println("rudprecv: listening on", sock.LocalAddr())

		stop := make(chan struct{})
		go statlog.Run(cfg.SnmpLog, time.Duration(cfg.SnmpPeriod)*time.Second, func() statlog.Snapshotter {
			return sock.Stats()
		}, stop)

		err = sock.Run()
		close(stop)
		return err
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

// receiver holds the per-peer file-assembly state. A mutex guards it
// even though rudp.Socket only ever invokes handlers from its own
// reactor goroutine, because statlog's ticker goroutine reads Stats()
// concurrently through the same *rudp.Socket (not through receiver
// itself, but the convention of never assuming single-goroutine access
// to shared state is kept here deliberately).
type receiver struct {
	mu     sync.Mutex
	outdir string
	files  map[string]*rxfile
}

func (r *receiver) onData(peer *net.UDPAddr, payload []byte) {
	frame, err := xferfile.Decode(payload)
	if err != nil {
		log.Println("rudprecv: bad frame from", peer, ":", err)
		return
	}

	key := peer.String()
	r.mu.Lock()
	defer r.mu.Unlock()

	switch frame.Type {
	case xferfile.MessageBegin:
		name, ok := sanitizeFilename(frame.Filename)
		if !ok {
			log.Println("rudprecv: illegal file name", frame.Filename, "from", peer)
			return
		}
		f, err := os.Create(filepath.Join(r.outdir, name))
		if err != nil {
			log.Println("rudprecv: create:", err)
			return
		}
		r.files[key] = &rxfile{f: f, name: name}
		log.Printf("rudprecv: BEGIN %q from %s\n", name, peer)

	case xferfile.MessageData:
		rx, ok := r.files[key]
		if !ok {
			log.Println("rudprecv: DATA ignored (file not open) from", peer)
			return
		}
		if _, err := rx.f.Write(frame.Chunk); err != nil {
			log.Println("rudprecv: write:", err)
		}

	case xferfile.MessageEnd:
		rx, ok := r.files[key]
		if !ok {
			return
		}
		rx.f.Close()
		delete(r.files, key)
		fmt.Fprintf(os.Stderr, "rudprecv: received end of file %q from %s\n", rx.name, peer)
	}
}

func (r *receiver) onEvent(ev rudp.Event, peer *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev {
	case rudp.EventTimeout:
		if peer != nil {
			log.Println("rudprecv: TIMEOUT communicating with", peer)
			if rx, ok := r.files[peer.String()]; ok {
				rx.f.Close()
				delete(r.files, peer.String())
			}
		} else {
			log.Println("rudprecv: TIMEOUT")
		}
	case rudp.EventClosed:
		if peer != nil {
			if rx, ok := r.files[peer.String()]; ok {
				log.Println("rudprecv: prematurely closed communication with", peer)
				rx.f.Close()
				delete(r.files, peer.String())
			}
		}
	}
}

// sanitizeFilename mirrors vs_recv.c's alnum/./_/- allowlist and
// strips any directory component, so a hostile BEGIN frame can't
// escape outdir.
func sanitizeFilename(name string) (string, bool) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "", false
	}
	for _, c := range name {
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '.' || c == '_' || c == '-') {
			return "", false
		}
	}
	return name, true
}
