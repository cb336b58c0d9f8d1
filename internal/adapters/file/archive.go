// Package file provides the session archiver: a plain-text dump of the
// session (sequence, completion markers, supervisor notes, event log)
// written atomically into a data directory.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/exolab/vrsupervisor/pkg/ports"
)

// Archiver implements ports.Archiver on the local filesystem.
type Archiver struct {
	BasePath string
	now      func() time.Time
}

// Option configures the Archiver.
type Option func(*Archiver)

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// New creates an Archiver writing under basePath. If basePath is empty it
// defaults to "data".
func New(basePath string, opts ...Option) *Archiver {
	if basePath == "" {
		basePath = "data"
	}
	a := &Archiver{BasePath: basePath, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive renders the session dump and writes it via temp file + rename so a
// crash never leaves a truncated archive behind. Returns the file name.
func (a *Archiver) Archive(ctx context.Context, archive ports.SessionArchive) (string, error) {
	if strings.TrimSpace(archive.GroupID) == "" {
		return "", fmt.Errorf("group ID cannot be empty")
	}

	if err := os.MkdirAll(a.BasePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to ensure data directory: %w", err)
	}

	now := a.now()
	filename := fmt.Sprintf("VR_Experiment_%s_%s.txt", archive.GroupID, now.Format("20060102_150405"))
	destPath := filepath.Join(a.BasePath, filename)

	var b strings.Builder
	b.WriteString("VR Experiment Session Data\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Group ID: %s\n", archive.GroupID)
	fmt.Fprintf(&b, "Date/Time: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Current Condition Index: %d\n\n", archive.CurrentIndex)

	b.WriteString("Experiment Sequence:\n")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	for i, step := range archive.Sequence {
		status := "PENDING"
		if i < archive.CurrentIndex {
			status = "COMPLETED"
		}
		fmt.Fprintf(&b, "Condition %d: %s [%s]\n", i+1, step.Name(), status)
	}

	b.WriteString("\nSupervisor Notes:\n")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	b.WriteString(archive.Notes + "\n\n")

	b.WriteString("System Event Log:\n")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	for _, entry := range archive.Logs {
		fmt.Fprintf(&b, "[%s] %s\n", entry.Timestamp.Format("15:04:05"), entry.Message)
	}

	tmpFile, err := os.CreateTemp(a.BasePath, "tmp-archive-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return "", fmt.Errorf("failed to fsync archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}

	return filename, nil
}
