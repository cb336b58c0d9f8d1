// Package udp implements the command broadcaster: one JSON datagram per
// protocol transition, sent best-effort to the configured VR client target.
//
// There is no acknowledgment in this protocol. The client may not be running
// yet when the operator configures a session, so a failed send is logged and
// counted, never surfaced as a transition failure.
package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/exolab/vrsupervisor/internal/logging"
	"github.com/exolab/vrsupervisor/pkg/domain"
)

const defaultWriteTimeout = 2 * time.Second

// Broadcaster implements ports.Broadcaster over UDP. Each send opens a
// short-lived socket with SO_BROADCAST enabled so subnet broadcast targets
// (e.g. 10.0.0.255) work alongside unicast ones.
type Broadcaster struct {
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures the Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the logger for send diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithWriteTimeout overrides the per-datagram write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// New creates a Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger:  logging.NewNop(),
		timeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send serializes cmd and transmits it as a single datagram to target.
func (b *Broadcaster) Send(ctx context.Context, target domain.NetworkTarget, cmd domain.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	dest, err := net.ResolveUDPAddr("udp4", target.Addr())
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", target.Addr(), err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return fmt.Errorf("failed to open udp socket: %w", err)
	}
	defer pc.Close()

	if err := pc.SetWriteDeadline(time.Now().Add(b.timeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if _, err := pc.WriteTo(data, dest); err != nil {
		return fmt.Errorf("failed to send datagram to %s: %w", target.Addr(), err)
	}

	b.logger.Debug("sent udp command",
		"target", target.Addr(),
		"command", cmd.Command,
		"bytes", len(data),
	)
	return nil
}
