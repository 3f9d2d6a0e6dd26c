package wire

// Sequence numbers are compared modularly: the sign of (a-b), truncated
// to a two's-complement 16-bit difference, decides ordering. This
// mirrors the original C macros (SEQ_LT/SEQ_LEQ/SEQ_GT/SEQ_GEQ), which
// truncate the 32-bit difference to a 16-bit `short` even though seqno
// itself is 32-bit; spec.md codifies that truncation as intentional,
// so it is kept here rather than "fixed".

// SeqLess reports whether a precedes b in modular sequence order.
func SeqLess(a, b uint32) bool {
	return int16(uint16(a-b)) < 0
}

// SeqLessEq reports whether a precedes or equals b in modular order.
func SeqLessEq(a, b uint32) bool {
	return int16(uint16(a-b)) <= 0
}

// SeqGreater reports whether a follows b in modular sequence order.
func SeqGreater(a, b uint32) bool {
	return int16(uint16(a-b)) > 0
}

// SeqGreaterEq reports whether a follows or equals b in modular order.
func SeqGreaterEq(a, b uint32) bool {
	return int16(uint16(a-b)) >= 0
}
