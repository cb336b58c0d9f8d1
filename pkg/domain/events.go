package domain

import "time"

// StatusEvent is the outward-facing snapshot emitted after every successful
// transition. Observers (the control panel UI, primarily) receive events in
// the exact order transitions were applied.
type StatusEvent struct {
	Timestamp     time.Time        `json:"timestamp"`
	Status        string           `json:"status"`
	CountdownText string           `json:"countdown_text"`
	Sequence      ProtocolSequence `json:"protocol_sequence"`
	CurrentIndex  int              `json:"current_condition_index"`
	Configured    bool             `json:"experiment_configured"`
	Completed     bool             `json:"experiment_completed"`
	Practice      bool             `json:"practice_trial"`
	TimerActive   bool             `json:"countdown_active"`

	// Button-enablement hints for the UI.
	EnableStart     bool `json:"enable_start,omitempty"`
	EnablePractice  bool `json:"enable_practice,omitempty"`
	EnableNext      bool `json:"enable_next,omitempty"`
	EnableForceNext bool `json:"enable_force_next,omitempty"`
	ResetInterface  bool `json:"reset_interface,omitempty"`
}
