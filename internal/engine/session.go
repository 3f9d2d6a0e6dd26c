package engine

import "net"

// SenderState is the sender half-session's protocol state (spec.md §3).
type SenderState int

const (
	SynSent SenderState = iota
	Open
	FinSent
	Finished
)

func (s SenderState) String() string {
	switch s {
	case SynSent:
		return "SYN_SENT"
	case Open:
		return "OPEN"
	case FinSent:
		return "FIN_SENT"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// ReceiverState is the receiver half-session's protocol state.
type ReceiverState int

const (
	Opening ReceiverState = iota
	ReceiverOpen
	ReceiverFinished
)

func (s ReceiverState) String() string {
	switch s {
	case Opening:
		return "OPENING"
	case ReceiverOpen:
		return "OPEN"
	case ReceiverFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// session is the pair of sender/receiver half-sessions for one peer.
// Either half may be nil.
type session struct {
	peer     *net.UDPAddr
	sender   *senderHalf
	receiver *receiverHalf
}

// finished reports whether this session has reached its terminal state:
// the sender, if it exists, is FINISHED, and the receiver, if it
// exists, is finished. A half that was never created (a session that
// only ever sent, or only ever received) is vacuously finished on that
// side, so a receive-only socket can still reach CLOSED once close is
// requested.
func (s *session) finished() bool {
	if s.sender != nil && s.sender.state != Finished {
		return false
	}
	if s.receiver != nil && !s.receiver.finished {
		return false
	}
	return true
}
