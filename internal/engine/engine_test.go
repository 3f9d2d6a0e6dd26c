package engine

import (
	"net"
	"testing"

	"github.com/go-rudp/rudp/internal/wire"
)

func mustAddr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		t.Fatalf("ResolveUDPAddr(%q): %v", s, err)
	}
	return addr
}

func newTestEngine(t *testing.T, dh DataHandler, eh EventHandler) (*Engine, *fakeTransport, *fakeScheduler) {
	t.Helper()
	tr := &fakeTransport{}
	sc := &fakeScheduler{}
	e := New(tr, sc, Config{WindowSize: 3, MaxRetries: 5}, dh, eh)
	return e, tr, sc
}

func lastSent(tr *fakeTransport) wire.Packet {
	pkt, _ := wire.Decode(tr.sent[len(tr.sent)-1].data)
	return pkt
}

func countType(tr *fakeTransport, typ wire.PacketType) int {
	n := 0
	for _, sp := range tr.sent {
		if pkt, err := wire.Decode(sp.data); err == nil && pkt.Type == typ {
			n++
		}
	}
	return n
}

// TestCleanThreeDatagramTransfer drives a full SYN -> 3xDATA -> FIN
// exchange on the sending side, with every ACK arriving immediately, and
// checks that a FIN follows once the window drains, that ClosedEvent
// fires on the FIN-ACK, and that the sender never delivers to itself.
func TestCleanThreeDatagramTransfer(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9000")
	var delivered [][]byte
	e, tr, _ := newTestEngine(t, func(_ *net.UDPAddr, p []byte) {
		delivered = append(delivered, append([]byte(nil), p...))
	}, nil)

	if err := e.Send([]byte("one"), peer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tr.sent) != 1 || lastSent(tr).Type != wire.SYN {
		t.Fatalf("expected a SYN to be sent first, got %+v", tr.sent)
	}
	syn := lastSent(tr)

	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.ACK, Seqno: syn.Seqno + 1}), peer)
	if lastSent(tr).Type != wire.DATA {
		t.Fatalf("expected DATA after SYN-ACK, got %s", lastSent(tr).Type)
	}
	d1 := lastSent(tr)

	if err := e.Send([]byte("two"), peer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := e.Send([]byte("three"), peer); err != nil {
		t.Fatalf("Send: %v", err)
	}

	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.ACK, Seqno: d1.Seqno + 1}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.ACK, Seqno: d1.Seqno + 2}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.ACK, Seqno: d1.Seqno + 3}), peer)

	e.RequestClose()
	fin := lastSent(tr)
	if fin.Type != wire.FIN {
		t.Fatalf("expected FIN once queue and window drained, got %s", fin.Type)
	}

	var closed bool
	e.eventHandler = func(ev Event, _ *net.UDPAddr) {
		if ev == ClosedEvent {
			closed = true
		}
	}
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.ACK, Seqno: fin.Seqno + 1}), peer)
	if !closed {
		t.Fatalf("expected ClosedEvent after FIN-ACK")
	}

	if len(delivered) != 0 {
		t.Fatalf("this engine is the sender; dataHandler must not fire on its own sends")
	}
}

// TestReceiverDeliversInOrder exercises the receiver half directly:
// SYN then three in-order DATA packets must be delivered and ACKed.
func TestReceiverDeliversInOrder(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9001")
	var delivered []string
	e, tr, _ := newTestEngine(t, func(_ *net.UDPAddr, p []byte) {
		delivered = append(delivered, string(p))
	}, nil)

	const synSeq = 1000
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.SYN, Seqno: synSeq}), peer)
	if ack := lastSent(tr); ack.Type != wire.ACK || ack.Seqno != synSeq+1 {
		t.Fatalf("expected ACK %d, got %s %d", synSeq+1, ack.Type, ack.Seqno)
	}

	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 1, Payload: []byte("a")}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 2, Payload: []byte("b")}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 3, Payload: []byte("c")}), peer)

	if len(delivered) != 3 || delivered[0] != "a" || delivered[1] != "b" || delivered[2] != "c" {
		t.Fatalf("expected [a b c] delivered in order, got %v", delivered)
	}
	if n := countType(tr, wire.ACK); n != 4 {
		t.Fatalf("expected 4 ACKs (1 SYN + 3 DATA), got %d", n)
	}
}

// TestLateDuplicateDataReAcksWithoutRedelivery covers the case where an
// ACK was lost and the sender retransmits a DATA packet the receiver
// already delivered: it must be re-ACKed but not handed to the
// application a second time.
func TestLateDuplicateDataReAcksWithoutRedelivery(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9002")
	var delivered []string
	e, tr, _ := newTestEngine(t, func(_ *net.UDPAddr, p []byte) {
		delivered = append(delivered, string(p))
	}, nil)

	const synSeq = 42
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.SYN, Seqno: synSeq}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 1, Payload: []byte("x")}), peer)
	if len(delivered) != 1 {
		t.Fatalf("expected one delivery, got %v", delivered)
	}

	// sender never saw the ACK for synSeq+1 and retransmits it
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 1, Payload: []byte("x")}), peer)
	if len(delivered) != 1 {
		t.Fatalf("duplicate DATA must not be redelivered, got %v", delivered)
	}
	if ack := lastSent(tr); ack.Type != wire.ACK || ack.Seqno != synSeq+2 {
		t.Fatalf("duplicate DATA must still be re-ACKed, got %s %d", ack.Type, ack.Seqno)
	}
}

// TestFarBehindDuplicateDataDroppedSilently covers spec.md §8 scenario
// 6's second half: a DATA packet more than one window behind expected
// is dropped with no ACK at all, not merely undelivered.
func TestFarBehindDuplicateDataDroppedSilently(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9005")
	e, tr, _ := newTestEngine(t, nil, nil)

	const synSeq = 100
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.SYN, Seqno: synSeq}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 1, Payload: []byte("x")}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 2, Payload: []byte("y")}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq + 3, Payload: []byte("z")}), peer)
	// expectedSeq is now synSeq+4; WindowSize=3, so synSeq+1 is the
	// oldest seqno still within one window behind expected and must
	// still be re-acked, but synSeq+0 (== synSeq) is one step further
	// behind than the window covers and must be dropped outright.
	before := len(tr.sent)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: synSeq, Payload: []byte("ancient")}), peer)
	if len(tr.sent) != before {
		t.Fatalf("a far-behind duplicate must not be ACKed at all, got %d new sends", len(tr.sent)-before)
	}
}

// TestSynTimeoutRetransmitsThenRaisesTimeout drives the fake scheduler
// through MaxRetries SYN retransmissions and checks a TIMEOUT event
// fires exactly once the budget is exhausted.
func TestSynTimeoutRetransmitsThenRaisesTimeout(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9003")
	var timeouts int
	tr := &fakeTransport{}
	sc := &fakeScheduler{}
	e := New(tr, sc, Config{WindowSize: 3, MaxRetries: 5}, nil, func(ev Event, _ *net.UDPAddr) {
		if ev == TimeoutEvent {
			timeouts++
		}
	})

	if err := e.Send([]byte("hi"), peer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	initialSyns := countType(tr, wire.SYN)
	if initialSyns != 1 {
		t.Fatalf("expected 1 initial SYN, got %d", initialSyns)
	}

	// MaxRetries=5: the timer fires once per retransmission attempt, then
	// a final time to discover the budget is exhausted and raise TIMEOUT
	// without sending anything further.
	for i := 0; i < 6; i++ {
		if !sc.fireOldest() {
			t.Fatalf("expected a pending SYN retransmit timer at firing %d", i)
		}
	}
	if got := countType(tr, wire.SYN); got != 6 {
		t.Fatalf("expected 1 initial + 5 retransmitted SYNs = 6, got %d", got)
	}
	if timeouts != 1 {
		t.Fatalf("expected exactly 1 TIMEOUT event, got %d", timeouts)
	}
	if e.Stats.Timeouts.Load() != 1 {
		t.Fatalf("expected Stats.Timeouts == 1, got %d", e.Stats.Timeouts.Load())
	}
}

// TestWindowSaturationQueuesBeyondCapacity checks that sends beyond
// WindowSize queue instead of transmitting immediately, and that
// acking the oldest outstanding DATA admits exactly one queued payload.
func TestWindowSaturationQueuesBeyondCapacity(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9004")
	e, tr, _ := newTestEngine(t, nil, nil)

	if err := e.Send([]byte("1"), peer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	syn := lastSent(tr)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.ACK, Seqno: syn.Seqno + 1}), peer)
	d1 := lastSent(tr)

	for _, payload := range []string{"2", "3", "4", "5"} {
		if err := e.Send([]byte(payload), peer); err != nil {
			t.Fatalf("Send(%s): %v", payload, err)
		}
	}
	if got := countType(tr, wire.DATA); got != 3 {
		t.Fatalf("expected exactly WindowSize=3 DATA packets outstanding, got %d", got)
	}

	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.ACK, Seqno: d1.Seqno + 1}), peer)
	if got := countType(tr, wire.DATA); got != 4 {
		t.Fatalf("acking the oldest slot should admit exactly one queued payload, got %d DATA sent", got)
	}
}

// TestConcurrentPeersAreIndependent checks that sessions for two peers
// never interact: a SYN from one never affects the other's receiver state.
func TestConcurrentPeersAreIndependent(t *testing.T) {
	peerA := mustAddr(t, "127.0.0.1:9100")
	peerB := mustAddr(t, "127.0.0.1:9101")
	delivered := map[string][]string{}
	e, _, _ := newTestEngine(t, func(from *net.UDPAddr, p []byte) {
		delivered[from.String()] = append(delivered[from.String()], string(p))
	}, nil)

	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.SYN, Seqno: 10}), peerA)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.SYN, Seqno: 500}), peerB)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: 11, Payload: []byte("fromA")}), peerA)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: 501, Payload: []byte("fromB")}), peerB)

	if len(delivered[peerA.String()]) != 1 || delivered[peerA.String()][0] != "fromA" {
		t.Fatalf("peer A delivery wrong: %v", delivered[peerA.String()])
	}
	if len(delivered[peerB.String()]) != 1 || delivered[peerB.String()][0] != "fromB" {
		t.Fatalf("peer B delivery wrong: %v", delivered[peerB.String()])
	}
}

// TestSendRejectsOversizedPayload covers the synchronous validation
// error kind of spec.md §7.
func TestSendRejectsOversizedPayload(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9200")
	e, _, _ := newTestEngine(t, nil, nil)
	big := make([]byte, wire.MaxPayload+1)
	if err := e.Send(big, peer); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestSendRejectsNilPeer(t *testing.T) {
	e, _, _ := newTestEngine(t, nil, nil)
	if err := e.Send([]byte("x"), nil); err != ErrNilPeer {
		t.Fatalf("expected ErrNilPeer, got %v", err)
	}
}

// TestDecodeErrorsAreCountedAndDropped checks a garbled datagram never
// reaches a handler and is tallied in Stats.DecodeErrors.
func TestDecodeErrorsAreCountedAndDropped(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9300")
	called := false
	e, _, _ := newTestEngine(t, func(*net.UDPAddr, []byte) { called = true }, nil)

	e.HandleReceived([]byte{0xff}, peer)
	if called {
		t.Fatalf("garbled datagram must never reach dataHandler")
	}
	if e.Stats.DecodeErrors.Load() != 1 {
		t.Fatalf("expected DecodeErrors == 1, got %d", e.Stats.DecodeErrors.Load())
	}
}

// TestDropperSuppressesWithoutSideEffects is the test-only loss
// injection knob described in spec.md §9: a dropped packet must not
// update InSegs' downstream effects (ack/delivery) even though the
// packet was technically received.
func TestDropperSuppressesWithoutSideEffects(t *testing.T) {
	peer := mustAddr(t, "127.0.0.1:9400")
	called := false
	e, tr, _ := newTestEngine(t, func(*net.UDPAddr, []byte) { called = true }, nil)
	e.dropper = func(pkt wire.Packet) bool { return pkt.Type == wire.DATA }

	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.SYN, Seqno: 1}), peer)
	e.HandleReceived(wire.Encode(wire.Packet{Type: wire.DATA, Seqno: 2, Payload: []byte("x")}), peer)

	if called {
		t.Fatalf("dropped DATA must not reach dataHandler")
	}
	if n := countType(tr, wire.ACK); n != 1 {
		t.Fatalf("expected only the SYN-ACK, got %d ACKs", n)
	}
}
