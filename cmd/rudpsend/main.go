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

// rudpsend sends one or more files to one or more destination peers
// over a single RUDP socket, framing each as a Begin/Data/End sequence
// (internal/xferfile), in the spirit of the original vs_send tool.
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/go-rudp/rudp"
	"github.com/go-rudp/rudp/internal/statlog"
	"github.com/go-rudp/rudp/internal/xferfile"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "rudpsend"
	app.Usage = "send files to one or more RUDP peers"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringSliceFlag{
			Name:  "peer",
			Usage: "destination in host:port form, repeatable",
		},
		cli.IntFlag{
			Name:  "window",
			Value: 3,
			Usage: "sender sliding window size",
		},
		cli.IntFlag{
			Name:  "retries",
			Value: 5,
			Usage: "max retransmissions before a TIMEOUT event",
		},
		cli.IntFlag{
			Name:  "dscp",
			Value: 0,
			Usage: "set DSCP(6bit) on outgoing packets",
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
	}
	app.Action = func(c *cli.Context) error {
		peers := c.StringSlice("peer")
		files := c.Args()
		if len(peers) == 0 || len(files) == 0 {
			return cli.NewExitError("usage: rudpsend --peer host:port [--peer host:port ...] file [file ...]", 1)
		}

		var destinations []*net.UDPAddr
		for _, p := range peers {
			addr, err := net.ResolveUDPAddr("udp", p)
			if err != nil {
				return errors.Wrapf(err, "resolve peer %q", p)
			}
			destinations = append(destinations, addr)
		}

		if c.Int("window") > 10 {
			color.Red("WARNING: window %d is unusually large for a 1000-byte MAX_PAYLOAD; consider staying under 10", c.Int("window"))
		}

		sock, err := rudp.New(":0", nil, eventLogger, rudp.WithWindowSize(c.Int("window")), rudp.WithMaxRetries(c.Int("retries")), rudp.WithDSCP(c.Int("dscp")))
		if err != nil {
			return errors.Wrap(err, "rudp.New")
		}
		watchSignals(sock)

		stop := make(chan struct{})
		go statlog.Run(c.String("snmplog"), time.Duration(c.Int("snmpperiod"))*time.Second, func() statlog.Snapshotter {
			snap := sock.Stats()
			return snap
		}, stop)

		for _, name := range []string(files) {
			if err := sendFile(sock, name, destinations); err != nil {
				log.Println("rudpsend:", err)
			}
		}
		sock.Close()
		err = sock.Run()
		close(stop)
		return err
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func eventLogger(ev rudp.Event, peer *net.UDPAddr) {
	switch ev {
	case rudp.EventTimeout:
		log.Println("rudpsend: TIMEOUT communicating with", peer)
	case rudp.EventClosed:
		log.Println("rudpsend: socket closed")
	}
}

func sendFile(sock *rudp.Socket, path string, peers []*net.UDPAddr) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer f.Close()

	name := filepath.Base(path)
	begin, err := xferfile.EncodeBegin(name)
	if err != nil {
		return errors.Wrap(err, "EncodeBegin")
	}
	for _, peer := range peers {
		if err := sock.Send(begin, peer); err != nil {
			return errors.Wrapf(err, "send BEGIN to %s", peer)
		}
	}
	fmt.Fprintf(os.Stderr, "rudpsend: sending %q to %s\n", name, joinAddrs(peers))

	buf := make([]byte, xferfile.MaxChunkLen)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk, encErr := xferfile.EncodeData(buf[:n])
			if encErr != nil {
				return errors.Wrap(encErr, "EncodeData")
			}
			for _, peer := range peers {
				if sendErr := sock.Send(chunk, peer); sendErr != nil {
					return errors.Wrapf(sendErr, "send DATA to %s", peer)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read")
		}
	}

	end := xferfile.EncodeEnd()
	for _, peer := range peers {
		if err := sock.Send(end, peer); err != nil {
			return errors.Wrapf(err, "send END to %s", peer)
		}
	}
	return nil
}

func joinAddrs(addrs []*net.UDPAddr) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
