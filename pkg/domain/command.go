package domain

import "strings"

// Command names understood by the VR client.
const (
	CmdStartCondition = "start_condition"
	CmdNextCondition  = "next_condition"
	CmdDisableAll     = "disable_all"
)

// Reason qualifies a disable_all command. The wire field is an open string:
// the known values below cover the supervisor's own transitions, but the VR
// client must tolerate others.
type Reason string

const (
	ReasonTimerExpired     Reason = "timer_expired"
	ReasonManualReset      Reason = "manual_reset"
	ReasonTimerOverridden  Reason = "timer_overridden"
	ReasonProtocolComplete Reason = "protocol_complete"
)

// PracticeIndex is the condition_index the wire protocol uses to tag a
// practice trial.
const PracticeIndex = -1

// Command is one UDP datagram payload. Labels are lowercased on
// construction so stored-case never reaches the wire.
type Command struct {
	Command        string `json:"command"`
	ConditionType  string `json:"condition_type,omitempty"`
	ObjectType     string `json:"object_type,omitempty"`
	ConditionIndex *int   `json:"condition_index,omitempty"`
	Practice       bool   `json:"practice,omitempty"`
	Reason         Reason `json:"reason,omitempty"`
}

// StartCommand builds the begin-condition message for the step at index.
func StartCommand(step SequenceStep, index int) Command {
	return Command{
		Command:        CmdStartCondition,
		ConditionType:  strings.ToLower(step.ConditionType),
		ObjectType:     strings.ToLower(step.ObjectType),
		ConditionIndex: intPtr(index),
	}
}

// PracticeCommand builds the begin-condition message for a practice trial.
// It reuses the start_condition shape but tags the datagram explicitly so
// the client never has to guess from context.
func PracticeCommand(step SequenceStep) Command {
	cmd := StartCommand(step, PracticeIndex)
	cmd.Practice = true
	return cmd
}

// NextCommand builds the advance message for the step at index.
func NextCommand(step SequenceStep, index int) Command {
	return Command{
		Command:        CmdNextCondition,
		ConditionType:  strings.ToLower(step.ConditionType),
		ObjectType:     strings.ToLower(step.ObjectType),
		ConditionIndex: intPtr(index),
	}
}

// DisableAllCommand builds the scene teardown message.
func DisableAllCommand(reason Reason) Command {
	return Command{Command: CmdDisableAll, Reason: reason}
}

func intPtr(i int) *int { return &i }
