package engine

import "github.com/pkg/errors"

// Errors returned synchronously by Send, matching the "invalid argument"
// error kind in spec.md §7 (no state change on any of these).
var (
	ErrNilPeer         = errors.New("rudp: peer address is nil")
	ErrPayloadTooLarge = errors.New("rudp: payload exceeds MaxPayload")
	ErrClosed          = errors.New("rudp: socket is closed or closing")
)
