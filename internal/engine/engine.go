// Package engine implements the RUDP protocol engine: the per-peer
// session table, the sender and receiver half-session state machines,
// the sliding window, and socket-teardown bookkeeping (spec.md §4.3,
// §4.4, §4.5). It is the ~80% component of the core.
//
// Engine is transport-agnostic: it writes encoded packets through a
// small Transport interface and schedules retransmit timers through a
// small scheduler interface, so it can be driven by a real
// *reactor.Reactor in production and by a synchronous fake in tests.
package engine

import (
	"math/rand"
	"net"
	"net/netip"
	"time"

	"github.com/go-rudp/rudp/internal/reactor"
	"github.com/go-rudp/rudp/internal/wire"
)

// Event is an asynchronous notification delivered to an EventHandler.
type Event int

const (
	// TimeoutEvent fires when a SYN, DATA, or FIN packet exhausts its
	// retransmission budget for one peer.
	TimeoutEvent Event = iota
	// ClosedEvent fires exactly once, after RequestClose and eventual
	// quiescence of every session.
	ClosedEvent
)

func (e Event) String() string {
	switch e {
	case TimeoutEvent:
		return "TIMEOUT"
	case ClosedEvent:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DataHandler is invoked synchronously, once per in-order delivered
// datagram. payload is borrowed and only valid for the call.
type DataHandler func(peer *net.UDPAddr, payload []byte)

// EventHandler is invoked synchronously for lifecycle events.
type EventHandler func(ev Event, peer *net.UDPAddr)

// Transport is the minimal send capability the engine needs. *rudp.Socket
// satisfies it by wrapping a *net.UDPConn.
type Transport interface {
	WriteTo(b []byte, addr *net.UDPAddr) error
}

// scheduler is the minimal timer capability the engine needs;
// *reactor.Reactor satisfies it, and tests supply a synchronous fake.
type scheduler interface {
	ScheduleTimer(deadline time.Time, fn func()) *reactor.TimerHandle
	CancelTimer(h *reactor.TimerHandle)
}

// Config holds the tunable constants of spec.md §6. Zero fields take
// the documented defaults.
type Config struct {
	MaxPayload     int
	WindowSize     int
	MaxRetries     int
	RetransTimeout time.Duration
}

// DefaultConfig returns the wire-format defaults from spec.md §6.
func DefaultConfig() Config {
	return Config{
		MaxPayload:     wire.MaxPayload,
		WindowSize:     3,
		MaxRetries:     5,
		RetransTimeout: 2000 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPayload <= 0 {
		c.MaxPayload = d.MaxPayload
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetransTimeout <= 0 {
		c.RetransTimeout = d.RetransTimeout
	}
	return c
}

// Engine is the protocol engine for one RUDP socket.
type Engine struct {
	cfg       Config
	transport Transport
	sched     scheduler
	rng       *rand.Rand

	sessions map[netip.AddrPort]*session

	dataHandler      DataHandler
	eventHandler     EventHandler
	onTransportError func(err error, to *net.UDPAddr)
	onClosed         func() // invoked once teardown completes, so the owner can unregister/close the fd

	closeRequested bool
	tornDown       bool

	Stats Stats

	// dropper is a test-only packet-loss injection hook (spec.md §9: "a
	// testing affordance; expose it only behind a test-only toggle, not
	// as a production config"). It is never set outside _test.go files
	// in this package, and there is no exported setter.
	dropper func(wire.Packet) bool
}

// New creates an Engine bound to transport for sending and sched for
// scheduling retransmit/handshake timers.
func New(transport Transport, sched scheduler, cfg Config, dataHandler DataHandler, eventHandler EventHandler) *Engine {
	return &Engine{
		cfg:          cfg.withDefaults(),
		transport:    transport,
		sched:        sched,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:     make(map[netip.AddrPort]*session),
		dataHandler:  dataHandler,
		eventHandler: eventHandler,
	}
}

// SetTransportErrorHandler registers a callback for transport-layer send
// failures (spec.md §7 error kind 2): logged by the caller, never fatal.
func (e *Engine) SetTransportErrorHandler(fn func(err error, to *net.UDPAddr)) {
	e.onTransportError = fn
}

// SetClosedCallback registers fn to run exactly once, after RequestClose
// and full quiescence, immediately before the ClosedEvent is delivered
// to the EventHandler. The owner uses this to unregister the reactor
// readable callback and close the underlying fd.
func (e *Engine) SetClosedCallback(fn func()) {
	e.onClosed = fn
}

func addrKey(addr *net.UDPAddr) netip.AddrPort {
	return addr.AddrPort()
}

// Send enqueues payload for reliable delivery to peer, creating a
// sender half-session (and sending its SYN) if none exists yet. It
// returns immediately; payload is copied.
func (e *Engine) Send(payload []byte, peer *net.UDPAddr) error {
	if peer == nil {
		return ErrNilPeer
	}
	if len(payload) > e.cfg.MaxPayload {
		return ErrPayloadTooLarge
	}
	if e.tornDown {
		return ErrClosed
	}

	cp := append([]byte(nil), payload...)
	key := addrKey(peer)
	sess := e.sessions[key]
	if sess == nil {
		sess = &session{peer: peer}
		e.sessions[key] = sess
	}

	if sess.sender == nil {
		sh := newSenderHalf(e.rng.Uint32())
		sess.sender = sh
		sh.queue = append(sh.queue, cp)
		e.sendPacket(wire.Packet{Type: wire.SYN, Seqno: sh.synSeq}, peer)
		sh.synTimer = e.scheduleRetransmit(func() { e.onSynTimeout(sess) })
		return nil
	}

	switch sess.sender.state {
	case SynSent:
		sess.sender.queue = append(sess.sender.queue, cp)
	case Open:
		sess.sender.enqueueOrSend(e, sess, cp)
	case FinSent, Finished:
		return ErrClosed
	}
	return nil
}

// HandleReceived decodes and routes one datagram received from addr.
// Decode errors and protocol violations are silently dropped, per
// spec.md §7 error kinds 4 and 5.
func (e *Engine) HandleReceived(data []byte, from *net.UDPAddr) {
	pkt, err := wire.Decode(data)
	if err != nil {
		e.Stats.DecodeErrors.Add(1)
		return
	}
	e.Stats.InSegs.Add(1)
	if e.dropper != nil && e.dropper(pkt) {
		return
	}

	key := addrKey(from)
	sess := e.sessions[key]

	switch pkt.Type {
	case wire.SYN:
		e.handleSyn(sess, key, from, pkt.Seqno)
	case wire.ACK:
		if sess != nil {
			e.handleAck(sess, pkt.Seqno)
		}
	case wire.DATA:
		if sess != nil && sess.receiver != nil {
			e.handleData(sess, pkt.Seqno, pkt.Payload)
		}
	case wire.FIN:
		if sess != nil && sess.receiver != nil {
			e.handleFin(sess, pkt.Seqno)
		}
	}
}

func (e *Engine) handleSyn(sess *session, key netip.AddrPort, from *net.UDPAddr, seqno uint32) {
	if sess == nil {
		sess = &session{peer: from}
		e.sessions[key] = sess
	}
	if sess.receiver == nil || sess.receiver.state == Opening {
		// Either the very first SYN for this peer, or a duplicate SYN
		// that arrives before any DATA has advanced expectedSeq: (re)create
		// the OPENING half-session from the observed seqno. Once the
		// receiver is OPEN, a SYN is a protocol violation and is dropped
		// (spec.md §9, open question 2: no reset once expectedSeq advanced).
		sess.receiver = newReceiverHalf(seqno)
		e.ackSeq(sess, seqno+1)
	}
}

func (e *Engine) handleAck(sess *session, seqno uint32) {
	sh := sess.sender
	if sh == nil {
		return // ACK without a pending send: protocol violation, drop
	}
	switch sh.state {
	case SynSent:
		if seqno == sh.synSeq+1 {
			e.sched.CancelTimer(sh.synTimer)
			sh.synTimer = nil
			sh.state = Open
			sh.fillWindow(e, sess)
			e.maybeAdvanceClose()
		}
	case Open:
		if len(sh.window) > 0 && seqno == sh.window[0].seq+1 {
			e.sched.CancelTimer(sh.window[0].timer)
			sh.window = sh.window[1:]
			sh.fillWindow(e, sess)
			e.maybeAdvanceClose()
		}
	case FinSent:
		if seqno == sh.finSeq+1 {
			e.sched.CancelTimer(sh.finTimer)
			sh.finTimer = nil
			sh.state = Finished
			e.maybeAdvanceClose()
		}
	case Finished:
		// duplicate ACK after finish: ignore
	}
}

func (e *Engine) handleData(sess *session, seqno uint32, payload []byte) {
	rh := sess.receiver
	if rh.state == Opening {
		if seqno != rh.expectedSeq {
			return // unspecified for OPENING + mismatched seq: drop
		}
		rh.state = ReceiverOpen
	}
	if rh.state != ReceiverOpen {
		return // FINISHED receiver: a late DATA is a protocol violation, drop
	}

	if seqno == rh.expectedSeq {
		rh.expectedSeq++
		e.ackSeq(sess, rh.expectedSeq)
		if e.dataHandler != nil {
			e.dataHandler(sess.peer, payload)
		}
		return
	}
	if wire.SeqGreaterEq(seqno, rh.expectedSeq-uint32(e.cfg.WindowSize)) && wire.SeqLess(seqno, rh.expectedSeq) {
		// within one window behind expected: lost ACK, re-ack without re-delivering
		e.ackSeq(sess, seqno+1)
		return
	}
	// too far behind, or ahead of expected: drop, no ack
}

func (e *Engine) handleFin(sess *session, seqno uint32) {
	rh := sess.receiver
	if rh.state == Opening {
		return // FIN before OPEN: protocol violation, drop
	}
	if seqno != rh.expectedSeq {
		return
	}
	e.ackSeq(sess, seqno+1)
	if !rh.finished {
		rh.finished = true
		rh.state = ReceiverFinished
		e.maybeAdvanceClose()
	}
}

func (e *Engine) ackSeq(sess *session, seqno uint32) {
	e.sendPacket(wire.Packet{Type: wire.ACK, Seqno: seqno}, sess.peer)
}

func (e *Engine) sendPacket(pkt wire.Packet, to *net.UDPAddr) {
	e.Stats.OutSegs.Add(1)
	if err := e.transport.WriteTo(wire.Encode(pkt), to); err != nil && e.onTransportError != nil {
		e.onTransportError(err, to)
	}
}

func (e *Engine) scheduleRetransmit(fn func()) *reactor.TimerHandle {
	return e.sched.ScheduleTimer(time.Now().Add(e.cfg.RetransTimeout), fn)
}

func (e *Engine) onSynTimeout(sess *session) {
	sh := sess.sender
	if sh == nil || sh.state != SynSent {
		return
	}
	if sh.synRetries >= e.cfg.MaxRetries {
		e.raiseTimeout(sess)
		return
	}
	sh.synRetries++
	e.Stats.RetransSegs.Add(1)
	e.sendPacket(wire.Packet{Type: wire.SYN, Seqno: sh.synSeq}, sess.peer)
	sh.synTimer = e.scheduleRetransmit(func() { e.onSynTimeout(sess) })
}

func (e *Engine) onDataTimeout(sess *session, slot *windowSlot) {
	sh := sess.sender
	if sh == nil || sh.state != Open || !slotInWindow(sh, slot) {
		return
	}
	if slot.retries >= e.cfg.MaxRetries {
		e.raiseTimeout(sess)
		return
	}
	slot.retries++
	e.Stats.RetransSegs.Add(1)
	e.sendPacket(wire.Packet{Type: wire.DATA, Seqno: slot.seq, Payload: slot.payload}, sess.peer)
	slot.timer = e.scheduleRetransmit(func() { e.onDataTimeout(sess, slot) })
}

func slotInWindow(sh *senderHalf, slot *windowSlot) bool {
	for _, s := range sh.window {
		if s == slot {
			return true
		}
	}
	return false
}

func (e *Engine) onFinTimeout(sess *session) {
	sh := sess.sender
	if sh == nil || sh.state != FinSent {
		return
	}
	if sh.finRetries >= e.cfg.MaxRetries {
		e.raiseTimeout(sess)
		return
	}
	sh.finRetries++
	e.Stats.RetransSegs.Add(1)
	e.sendPacket(wire.Packet{Type: wire.FIN, Seqno: sh.finSeq}, sess.peer)
	sh.finTimer = e.scheduleRetransmit(func() { e.onFinTimeout(sess) })
}

func (e *Engine) raiseTimeout(sess *session) {
	e.Stats.Timeouts.Add(1)
	if e.eventHandler != nil {
		e.eventHandler(TimeoutEvent, sess.peer)
	}
}

// RequestClose marks the socket for teardown. It does not tear down
// immediately (spec.md §4.5); it is idempotent.
func (e *Engine) RequestClose() {
	if e.closeRequested {
		return
	}
	e.closeRequested = true
	e.maybeAdvanceClose()
}

// maybeAdvanceClose is the §4.5 teardown check, run after every
// terminal event and from RequestClose: first it gives every idle OPEN
// sender a chance to emit its FIN, then it checks whether every session
// has fully finished and, if so, fires ClosedEvent exactly once.
func (e *Engine) maybeAdvanceClose() {
	if !e.closeRequested || e.tornDown {
		return
	}

	for _, sess := range e.sessions {
		sh := sess.sender
		if sh != nil && sh.state == Open && len(sh.queue) == 0 && len(sh.window) == 0 {
			sh.finSeq = sh.nextSeq + 1
			sh.nextSeq = sh.finSeq
			e.sendPacket(wire.Packet{Type: wire.FIN, Seqno: sh.finSeq}, sess.peer)
			sh.finTimer = e.scheduleRetransmit(func() { e.onFinTimeout(sess) })
			sh.state = FinSent
		}
	}

	var lastPeer *net.UDPAddr
	for _, sess := range e.sessions {
		if !sess.finished() {
			return
		}
		lastPeer = sess.peer
	}

	e.tornDown = true
	for _, sess := range e.sessions {
		cancelSessionTimers(e, sess)
	}
	e.sessions = make(map[netip.AddrPort]*session)

	if e.onClosed != nil {
		e.onClosed()
	}
	if e.eventHandler != nil {
		e.eventHandler(ClosedEvent, lastPeer)
	}
}

// cancelSessionTimers cancels every timer a session might still hold
// before it is destroyed (spec.md §9, open question 3): in ordinary
// operation all of them already fired or were cancelled on the terminal
// ACK, so this is a defensive sweep that keeps any session from being
// destroyed while it still holds a live timer handle.
func cancelSessionTimers(e *Engine, sess *session) {
	sh := sess.sender
	if sh == nil {
		return
	}
	if sh.synTimer != nil {
		e.sched.CancelTimer(sh.synTimer)
	}
	if sh.finTimer != nil {
		e.sched.CancelTimer(sh.finTimer)
	}
	for _, slot := range sh.window {
		if slot.timer != nil {
			e.sched.CancelTimer(slot.timer)
		}
	}
}
