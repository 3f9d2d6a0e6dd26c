package rudp

import "github.com/go-rudp/rudp/internal/engine"

// Errors returned synchronously by Socket.Send (spec.md §7, error kind 1).
var (
	ErrInvalidPeer     = engine.ErrNilPeer
	ErrPayloadTooLarge = engine.ErrPayloadTooLarge
	ErrClosed          = engine.ErrClosed
)
