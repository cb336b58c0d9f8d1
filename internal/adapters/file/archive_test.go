package file_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/exolab/vrsupervisor/internal/adapters/file"
	"github.com/exolab/vrsupervisor/pkg/domain"
	"github.com/exolab/vrsupervisor/pkg/ports"
)

func TestArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 3, 14, 16, 45, 30, 0, time.UTC)
	a := file.New(dir, file.WithClock(func() time.Time { return fixed }))

	archive := ports.SessionArchive{
		GroupID: "G42",
		Notes:   "Participant reported mild discomfort in condition 2.",
		Sequence: domain.ProtocolSequence{
			{ConditionIndex: 0, ConditionType: "Baseline", ObjectType: "Cube"},
			{ConditionIndex: 1, ConditionType: "Social", ObjectType: "Avatar"},
		},
		CurrentIndex: 1,
		Logs: []domain.LogEntry{
			{Timestamp: fixed.Add(-10 * time.Minute), Message: "Experiment parameters configured"},
			{Timestamp: fixed.Add(-5 * time.Minute), Message: "Started condition: Baseline (Cube)"},
		},
	}

	name, err := a.Archive(context.Background(), archive)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if name != "VR_Experiment_G42_20260314_164530.txt" {
		t.Errorf("Unexpected archive name: %s", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"Group ID: G42",
		"Condition 1: Baseline (Cube) [COMPLETED]",
		"Condition 2: Social (Avatar) [PENDING]",
		"Participant reported mild discomfort",
		"Started condition: Baseline (Cube)",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Archive missing %q:\n%s", want, content)
		}
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to list dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "tmp-") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
}

func TestArchiver_EmptyGroup(t *testing.T) {
	a := file.New(t.TempDir())
	if _, err := a.Archive(context.Background(), ports.SessionArchive{}); err == nil {
		t.Fatal("Expected error for empty group ID")
	}
}
