package engine

import (
	"github.com/go-rudp/rudp/internal/reactor"
	"github.com/go-rudp/rudp/internal/wire"
)

// windowSlot is one outstanding, unacknowledged DATA packet (spec.md §3).
type windowSlot struct {
	seq     uint32
	payload []byte
	retries int
	timer   *reactor.TimerHandle
}

// senderHalf is the sender side of a session (spec.md §3, §4.3).
type senderHalf struct {
	state   SenderState
	synSeq  uint32
	nextSeq uint32 // last sequence number actually assigned to a packet
	finSeq  uint32

	window []*windowSlot // contiguous, strictly increasing, len <= WindowSize
	queue  [][]byte      // FIFO of payloads not yet admitted to the window

	synRetries int
	finRetries int

	synTimer *reactor.TimerHandle
	finTimer *reactor.TimerHandle
}

func newSenderHalf(synSeq uint32) *senderHalf {
	return &senderHalf{state: SynSent, synSeq: synSeq, nextSeq: synSeq}
}

// admitOne assigns the next sequence number to payload, places it in the
// next window slot, transmits it, and arms its retransmit timer. The
// caller must already have verified a slot is free.
func (sh *senderHalf) admitOne(e *Engine, sess *session, payload []byte) {
	sh.nextSeq++
	slot := &windowSlot{seq: sh.nextSeq, payload: payload}
	sh.window = append(sh.window, slot)
	e.sendPacket(wire.Packet{Type: wire.DATA, Seqno: slot.seq, Payload: slot.payload}, sess.peer)
	slot.timer = e.scheduleRetransmit(func() { e.onDataTimeout(sess, slot) })
}

// fillWindow implements the window-filling rule of spec.md §4.3: drain
// the queue into the window while both have room, invoked after a SYN-ack
// or a successful DATA-ack.
func (sh *senderHalf) fillWindow(e *Engine, sess *session) {
	for len(sh.queue) > 0 && len(sh.window) < e.cfg.WindowSize {
		payload := sh.queue[0]
		sh.queue = sh.queue[1:]
		sh.admitOne(e, sess, payload)
	}
}

// enqueueOrSend implements the OPEN-state send() rule: bypass the queue
// only when it is already empty and a window slot is free; otherwise
// preserve strict FIFO order by enqueueing (spec.md §9, open question 1).
func (sh *senderHalf) enqueueOrSend(e *Engine, sess *session, payload []byte) {
	if len(sh.queue) == 0 && len(sh.window) < e.cfg.WindowSize {
		sh.admitOne(e, sess, payload)
		return
	}
	sh.queue = append(sh.queue, payload)
}
