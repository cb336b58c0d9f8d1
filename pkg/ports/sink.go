package ports

import (
	"context"

	"github.com/exolab/vrsupervisor/pkg/domain"
)

// EventSink receives status events. Emit is called synchronously under the
// coordinator's lock, so implementations must be fast and non-blocking;
// anything slow should hand off to a buffered channel.
type EventSink interface {
	Emit(event domain.StatusEvent)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(event domain.StatusEvent)

func (f EventSinkFunc) Emit(event domain.StatusEvent) { f(event) }

// SessionArchive is the material handed to an Archiver when the operator
// saves a session.
type SessionArchive struct {
	GroupID      string
	Notes        string
	Sequence     domain.ProtocolSequence
	CurrentIndex int
	Logs         []domain.LogEntry
}

// Archiver writes a session dump to durable storage and returns an
// operator-facing name for it (e.g. the file name).
type Archiver interface {
	Archive(ctx context.Context, archive SessionArchive) (string, error)
}
