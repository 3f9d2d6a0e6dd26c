// Package reactor implements the RUDP event reactor: a single-threaded
// cooperative loop multiplexing UDP socket readability and absolute-time
// timers, as specified in spec.md §4.1.
//
// Registered callbacks never run concurrently with one another. Each
// registered *net.UDPConn gets its own goroutine that only performs the
// blocking ReadFromUDP and forwards the datagram to the loop goroutine;
// all decoding and protocol-state mutation happens on Run's goroutine,
// matching the single-threaded-cooperative model kcp-go's readloop.go
// uses for its own read goroutines.
package reactor

import (
	"container/heap"
	"net"
	"time"
)

// ReadableFunc is invoked once per datagram that arrives on a
// registered connection. Returning a non-nil error is treated as
// unrecoverable and stops Run.
type ReadableFunc func(data []byte, addr *net.UDPAddr) error

// TimerFunc is invoked when a scheduled deadline elapses.
type TimerFunc func()

const maxDatagram = 65507

type readResult struct {
	conn *net.UDPConn
	data []byte
	addr *net.UDPAddr
	err  error
}

type reader struct {
	conn   *net.UDPConn
	cb     ReadableFunc
	cancel chan struct{}
}

// Reactor is the event loop described in spec.md §4.1. The zero value
// is not usable; construct with New.
type Reactor struct {
	incoming chan readResult
	readers  map[*net.UDPConn]*reader
	timers   timerHeap
	seq      uint64
}

// New creates an idle Reactor with no registrations.
func New() *Reactor {
	return &Reactor{
		incoming: make(chan readResult),
		readers:  make(map[*net.UDPConn]*reader),
	}
}

// RegisterReadable arranges for cb to be invoked, on Run's goroutine,
// once for every datagram received on conn. Only one registration per
// conn is supported.
func (r *Reactor) RegisterReadable(conn *net.UDPConn, cb ReadableFunc) {
	rd := &reader{conn: conn, cb: cb, cancel: make(chan struct{})}
	r.readers[conn] = rd
	go r.readLoop(rd)
}

// UnregisterReadable stops dispatching for conn. The caller is
// expected to close conn (or it will already be closed) so the
// background reader goroutine's blocking read unblocks with an error
// and exits.
func (r *Reactor) UnregisterReadable(conn *net.UDPConn) {
	if rd, ok := r.readers[conn]; ok {
		close(rd.cancel)
		delete(r.readers, conn)
	}
}

func (r *Reactor) readLoop(rd *reader) {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := rd.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case r.incoming <- readResult{conn: rd.conn, err: err}:
			case <-rd.cancel:
			}
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case r.incoming <- readResult{conn: rd.conn, data: cp, addr: addr}:
		case <-rd.cancel:
			return
		}
	}
}

// ScheduleTimer arranges for fn to run, on Run's goroutine, no earlier
// than deadline. The returned handle may be passed to CancelTimer.
func (r *Reactor) ScheduleTimer(deadline time.Time, fn func()) *TimerHandle {
	e := &timerEntry{deadline: deadline, seq: r.seq, fn: fn}
	r.seq++
	heap.Push(&r.timers, e)
	return &TimerHandle{entry: e}
}

// CancelTimer prevents a scheduled timer from firing. It is a no-op
// (idempotent) if the timer already fired or was already cancelled.
func (r *Reactor) CancelTimer(h *TimerHandle) {
	if h == nil || h.entry == nil {
		return
	}
	h.entry.cancelled = true
}

// Pending reports whether any registration (readable or timer) remains;
// Run blocks until this becomes false.
func (r *Reactor) Pending() bool {
	return len(r.readers) > 0 || r.timers.Len() > 0
}

// Run blocks, dispatching readable and timer callbacks, until no
// registration remains or a callback reports an unrecoverable error.
func (r *Reactor) Run() error {
	for r.Pending() {
		if err := r.tick(); err != nil {
			return err
		}
	}
	return nil
}

// tick waits for, then services, exactly one readable event or timer
// sweep. Expired timers are always fired before the readable event that
// woke the select is dispatched, so a timer maturing in the same instant
// as a datagram's arrival is never starved.
func (r *Reactor) tick() error {
	var timer *time.Timer
	if r.timers.Len() > 0 {
		d := time.Until(r.timers[0].deadline)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		defer timer.Stop()
	}

	var timerC <-chan time.Time
	if timer != nil {
		timerC = timer.C
	}

	select {
	case res := <-r.incoming:
		r.fireExpired(time.Now())
		rd, ok := r.readers[res.conn]
		if !ok {
			return nil // unregistered between send and receive
		}
		if res.err != nil {
			r.UnregisterReadable(res.conn)
			return nil
		}
		return rd.cb(res.data, res.addr)
	case now := <-timerC:
		r.fireExpired(now)
		return nil
	}
}

// fireExpired pops and runs every non-cancelled timer whose deadline is
// at or before now, in non-decreasing deadline order (ties broken by
// insertion order), as spec.md §4.1 requires.
func (r *Reactor) fireExpired(now time.Time) {
	for r.timers.Len() > 0 && !r.timers[0].deadline.After(now) {
		e := heap.Pop(&r.timers).(*timerEntry)
		if e.cancelled {
			continue
		}
		e.fn()
	}
}
