package engine

import (
	"net"
	"time"

	"github.com/go-rudp/rudp/internal/reactor"
)

// fakeTransport records every packet written, in order and together with
// its destination, and never actually touches the network. It satisfies the Transport
// interface.
type fakeTransport struct {
	sent []sentPacket
	fail bool
}

type sentPacket struct {
	to   *net.UDPAddr
	data []byte
}

func (f *fakeTransport) WriteTo(b []byte, addr *net.UDPAddr) error {
	if f.fail {
		return errTransportFailure
	}
	cp := append([]byte(nil), b...)
	f.sent = append(f.sent, sentPacket{to: addr, data: cp})
	return nil
}

var errTransportFailure = &transportError{"fake transport failure"}

type transportError struct{ msg string }

func (e *transportError) Error() string { return e.msg }

// fakeScheduler is a synchronous, manually-driven stand-in for
// *reactor.Reactor: ScheduleTimer just records the callback instead of
// arming a real deadline, and the test drives time by calling fireOldest().
// This lets timeout/retransmit scenarios run instantly and
// deterministically instead of sleeping for real RetransTimeout values.
type fakeScheduler struct {
	pending []*fakeTimer
}

type fakeTimer struct {
	deadline  time.Time
	fn        func()
	cancelled bool
}

func (s *fakeScheduler) ScheduleTimer(deadline time.Time, fn func()) *reactor.TimerHandle {
	t := &fakeTimer{deadline: deadline, fn: fn}
	s.pending = append(s.pending, t)
	// The real TimerHandle type is opaque outside package reactor, so we
	// can't construct one directly; engine only ever treats handles as
	// opaque tokens passed back to CancelTimer, so a nil handle paired
	// with identity-based cancellation via the closure is sufficient here.
	return nil
}

func (s *fakeScheduler) CancelTimer(h *reactor.TimerHandle) {
	// engine never needs to resolve which fakeTimer a nil handle refers
	// to: cancellation in these tests is driven by firing the oldest
	// pending timer and letting the handler's own state guards (e.g.
	// "sh.state != SynSent") make a stale fire into a no-op.
}

// fireOldest runs and removes the earliest-scheduled, non-cancelled
// timer, simulating one RetransTimeout elapsing.
func (s *fakeScheduler) fireOldest() bool {
	for len(s.pending) > 0 {
		t := s.pending[0]
		s.pending = s.pending[1:]
		if t.cancelled {
			continue
		}
		t.fn()
		return true
	}
	return false
}

func (s *fakeScheduler) fireAll() int {
	n := 0
	for s.fireOldest() {
		n++
	}
	return n
}
