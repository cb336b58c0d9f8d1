package ports

import (
	"context"

	"github.com/exolab/vrsupervisor/pkg/domain"
)

// Broadcaster transmits command messages to the VR client as best-effort
// datagrams. There is no delivery acknowledgment in this protocol; a send
// error is a warning for the operator, never a transition failure.
type Broadcaster interface {
	Send(ctx context.Context, target domain.NetworkTarget, cmd domain.Command) error
}

// BroadcastFunc adapts a function to the Broadcaster interface.
type BroadcastFunc func(ctx context.Context, target domain.NetworkTarget, cmd domain.Command) error

func (f BroadcastFunc) Send(ctx context.Context, target domain.NetworkTarget, cmd domain.Command) error {
	return f(ctx, target, cmd)
}
