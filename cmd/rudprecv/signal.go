//go:build linux || darwin || freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-rudp/rudp"
)

// watchSignals dumps sock's protocol counters to the log on SIGUSR1,
// adapted from kcptun's client/signal.go (which dumps kcp.DefaultSnmp).
func watchSignals(sock *rudp.Socket) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		for range ch {
			log.Printf("rudprecv stats: %+v", sock.Stats())
		}
	}()
}
