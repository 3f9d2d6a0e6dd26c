package rudp

import (
	"log"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"

	"github.com/go-rudp/rudp/internal/engine"
	"github.com/go-rudp/rudp/internal/reactor"
)

// Event is a lifecycle notification delivered to an EventHandler.
type Event = engine.Event

const (
	// EventTimeout fires when a SYN, DATA, or FIN packet for one peer
	// has exhausted its retransmission budget.
	EventTimeout = engine.TimeoutEvent
	// EventClosed fires exactly once, after Close and eventual
	// quiescence of every session on the socket.
	EventClosed = engine.ClosedEvent
)

// DataHandler is invoked synchronously, once per in-order datagram
// delivered for peer. payload is borrowed and valid only for the call.
type DataHandler func(peer *net.UDPAddr, payload []byte)

// EventHandler is invoked synchronously for TIMEOUT and CLOSED events.
type EventHandler func(ev Event, peer *net.UDPAddr)

// Socket is a bound UDP endpoint driving the RUDP protocol engine.
// The zero value is not usable; construct with New.
type Socket struct {
	conn    *net.UDPConn
	reactor *reactor.Reactor
	engine  *engine.Engine
	cfg     engine.Config
	dscp    *int
}

// New binds a UDP socket to addr ("host:port"; an empty or zero port
// binds ephemerally) and wires it to a fresh protocol engine and event
// reactor. The caller must call Run to start servicing it.
func New(addr string, dataHandler DataHandler, eventHandler EventHandler, opts ...Option) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "rudp.New: resolve")
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "rudp.New: listen")
	}

	s := &Socket{
		conn:    conn,
		reactor: reactor.New(),
		cfg:     engine.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dscp != nil {
		if err := ipv4.NewConn(conn).SetTOS(*s.dscp << 2); err != nil {
			log.Println("rudp: SetDSCP:", err)
		}
	}

	s.engine = engine.New(&udpTransport{conn}, s.reactor, s.engineConfig(),
		engine.DataHandler(dataHandler), engine.EventHandler(eventHandler))
	s.engine.SetTransportErrorHandler(func(err error, to *net.UDPAddr) {
		log.Println("rudp: transport error sending to", to, ":", err)
	})
	s.engine.SetClosedCallback(func() {
		s.reactor.UnregisterReadable(s.conn)
		s.conn.Close()
	})

	s.reactor.RegisterReadable(conn, func(data []byte, from *net.UDPAddr) error {
		s.engine.HandleReceived(data, from)
		return nil
	})

	return s, nil
}

// udpTransport adapts *net.UDPConn to engine.Transport.
type udpTransport struct{ conn *net.UDPConn }

func (t *udpTransport) WriteTo(b []byte, addr *net.UDPAddr) error {
	_, err := t.conn.WriteToUDP(b, addr)
	return err
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send enqueues payload for reliable delivery to peer and returns
// immediately; payload is copied. It fails synchronously if peer is
// nil or payload exceeds the configured MaxPayload (spec.md §7, error
// kind 1).
func (s *Socket) Send(payload []byte, peer *net.UDPAddr) error {
	return s.engine.Send(payload, peer)
}

// Close marks the socket for teardown (spec.md §4.5). It is
// idempotent and returns immediately; the underlying fd is closed and
// EventClosed is delivered only once every session has finished.
func (s *Socket) Close() {
	s.engine.RequestClose()
}

// Stats returns a snapshot of the socket's protocol counters, suitable
// for periodic logging via internal/statlog.
func (s *Socket) Stats() engine.Snapshot {
	return s.engine.Stats.Snapshot()
}

// Run blocks, servicing the socket's reactor, until Close's teardown
// completes (or an unrecoverable transport error occurs). The host
// application must call this from exactly one goroutine.
func (s *Socket) Run() error {
	return s.reactor.Run()
}
