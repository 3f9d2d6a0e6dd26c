package engine

import (
	"strconv"
	"sync/atomic"
)

// Stats holds the running protocol counters for one Engine, in the
// spirit of kcp-go's DefaultSnmp block. All fields are safe for
// concurrent use, though in normal operation they are only ever
// touched from the reactor goroutine.
type Stats struct {
	InSegs       atomic.Uint64 // packets accepted by HandleReceived
	OutSegs      atomic.Uint64 // packets written to the transport
	RetransSegs  atomic.Uint64 // SYN/DATA/FIN retransmissions
	Timeouts     atomic.Uint64 // TIMEOUT events raised
	DecodeErrors atomic.Uint64 // packets rejected by wire.Decode
}

// Snapshot is a point-in-time copy of Stats, suitable for logging.
type Snapshot struct {
	InSegs       uint64
	OutSegs      uint64
	RetransSegs  uint64
	Timeouts     uint64
	DecodeErrors uint64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		InSegs:       s.InSegs.Load(),
		OutSegs:      s.OutSegs.Load(),
		RetransSegs:  s.RetransSegs.Load(),
		Timeouts:     s.Timeouts.Load(),
		DecodeErrors: s.DecodeErrors.Load(),
	}
}

// Header returns the CSV column names for a Snapshot, in field order.
func (Snapshot) Header() []string {
	return []string{"InSegs", "OutSegs", "RetransSegs", "Timeouts", "DecodeErrors"}
}

// Row returns the CSV field values for a Snapshot, matching Header's order.
func (s Snapshot) Row() []string {
	return []string{
		strconv.FormatUint(s.InSegs, 10),
		strconv.FormatUint(s.OutSegs, 10),
		strconv.FormatUint(s.RetransSegs, 10),
		strconv.FormatUint(s.Timeouts, 10),
		strconv.FormatUint(s.DecodeErrors, 10),
	}
}
