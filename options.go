package rudp

import (
	"time"

	"github.com/go-rudp/rudp/internal/engine"
)

// Option configures a Socket at construction time.
type Option func(*Socket)

// WithWindowSize overrides the default sliding-window size (spec.md §6,
// default 3).
func WithWindowSize(n int) Option {
	return func(s *Socket) { s.cfg.WindowSize = n }
}

// WithMaxRetries overrides the default retransmission budget (spec.md
// §6, default 5).
func WithMaxRetries(n int) Option {
	return func(s *Socket) { s.cfg.MaxRetries = n }
}

// WithRetransTimeout overrides the fixed retransmit delay (spec.md §6,
// default 2000ms), identical for SYN, DATA, and FIN.
func WithRetransTimeout(d time.Duration) Option {
	return func(s *Socket) { s.cfg.RetransTimeout = d }
}

// WithMaxPayload overrides the maximum payload accepted by Send
// (spec.md §6, default 1000 bytes). Send accepts payloads up to the new
// limit, but wire.Decode on the receiving side rejects any packet whose
// payload exceeds wire.MaxPayload (1000 bytes), so larger payloads are
// never delivered.
func WithMaxPayload(n int) Option {
	return func(s *Socket) { s.cfg.MaxPayload = n }
}

// WithDSCP sets the 6-bit DSCP field on outgoing packets, mirroring
// kcp-go's UDPSession.SetDSCP: best-effort, logged but non-fatal if the
// platform or socket family doesn't support it.
func WithDSCP(dscp int) Option {
	return func(s *Socket) { s.dscp = &dscp }
}

func (s *Socket) engineConfig() engine.Config {
	return s.cfg
}
