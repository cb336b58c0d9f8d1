package domain

import (
	"fmt"
	"time"
)

// NetworkTarget is the UDP destination for broadcast commands.
type NetworkTarget struct {
	IP   string `json:"udp_ip"`
	Port int    `json:"udp_port"`
}

// Validate checks the target is usable as a datagram destination.
func (t NetworkTarget) Validate() error {
	if t.IP == "" {
		return Validationf("udp_ip is required")
	}
	if t.Port <= 0 || t.Port > 65535 {
		return Validationf("udp_port %d is out of range", t.Port)
	}
	return nil
}

// Addr renders the target as host:port.
func (t NetworkTarget) Addr() string {
	return fmt.Sprintf("%s:%d", t.IP, t.Port)
}

// SequenceStep is one operator-chosen condition/object pairing within the
// protocol sequence.
type SequenceStep struct {
	ConditionIndex int    `json:"condition_index"`
	ConditionType  string `json:"condition_type"`
	ObjectType     string `json:"object_type"`
}

// Name renders the step for status lines, e.g. "Baseline (Cube)".
func (s SequenceStep) Name() string {
	return fmt.Sprintf("%s (%s)", s.ConditionType, s.ObjectType)
}

// ProtocolSequence is the ordered list of steps for the current session.
// Owned exclusively by the session; applying an order copies slot values
// into a fresh sequence.
type ProtocolSequence []SequenceStep

// Clone returns an independent copy.
func (p ProtocolSequence) Clone() ProtocolSequence {
	cp := make(ProtocolSequence, len(p))
	copy(cp, p)
	return cp
}

// LogEntry is one timestamped line of the session event log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// SessionState is the single mutable record of protocol execution. Exactly
// one exists per server process; every transition mutates it under the
// coordinator's lock and a reset reinitializes its fields in place.
type SessionState struct {
	Sequence      ProtocolSequence
	CurrentIndex  int // -1 = not started
	Configured    bool
	TimerDeadline time.Time // zero = no deadline
	TimerActive   bool
	Practice      bool
	Completed     bool
	Network       NetworkTarget

	// Operator bookkeeping, outside the state machine proper.
	GroupID         string
	SelectedOrderID string
	OrderMarkedUsed bool
	Logs            []LogEntry
}

// NewSessionState returns a fresh, unconfigured state targeting addr.
func NewSessionState(target NetworkTarget) *SessionState {
	return &SessionState{
		CurrentIndex: -1,
		Network:      target,
	}
}

// Remaining returns the countdown time left at now, clamped at zero.
func (s *SessionState) Remaining(now time.Time) time.Duration {
	if !s.TimerActive || s.TimerDeadline.IsZero() {
		return 0
	}
	d := s.TimerDeadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
