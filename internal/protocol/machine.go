// Package protocol implements the session state machine: configure, start,
// practice, restart, tick, next, force-next and reset transitions over the
// single SessionState record.
//
// The machine is pure with respect to I/O: every transition validates,
// mutates the state, and returns the command messages the caller should
// broadcast. Locking and dispatch are the coordinator's job (pkg/session).
package protocol

import (
	"strings"
	"time"

	"github.com/exolab/vrsupervisor/pkg/domain"
)

// DefaultConditionDuration is the fixed length of one timed condition.
const DefaultConditionDuration = 5 * time.Minute

// Machine drives the protocol transitions over a SessionState.
// Not safe for concurrent use; callers serialize access.
type Machine struct {
	state    *domain.SessionState
	duration time.Duration
	now      func() time.Time

	conditionTypes domain.ValueSet
	objectTypes    domain.ValueSet
}

// Option configures the Machine.
type Option func(*Machine)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithDuration overrides the per-condition countdown duration.
func WithDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.duration = d
		}
	}
}

// NewMachine creates a machine over the given state.
func NewMachine(state *domain.SessionState, opts ...Option) *Machine {
	m := &Machine{
		state:    state,
		duration: DefaultConditionDuration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State exposes the underlying session state.
func (m *Machine) State() *domain.SessionState { return m.state }

// Duration returns the fixed condition duration.
func (m *Machine) Duration() time.Duration { return m.duration }

// SetValueSets registers the value sets configure payloads are validated
// against.
func (m *Machine) SetValueSets(conditions, objects domain.ValueSet) {
	m.conditionTypes = conditions
	m.objectTypes = objects
}

// Configure validates the operator's selections and installs a fresh
// protocol sequence. Allowed before the first condition starts; once the
// protocol is underway (or completed) a reset is required first.
func (m *Machine) Configure(conditions, objects []string) ([]domain.Command, error) {
	s := m.state
	if s.TimerActive {
		return nil, domain.InvalidStatef("a condition is underway; reset before reconfiguring")
	}
	if s.Completed {
		return nil, domain.InvalidStatef("protocol completed; reset before reconfiguring")
	}
	if s.CurrentIndex >= 0 {
		return nil, domain.InvalidStatef("protocol already running; reset before reconfiguring")
	}

	if len(conditions) == 0 || len(objects) == 0 {
		return nil, domain.Validationf("both conditions and objects are required")
	}
	if len(conditions) != len(objects) {
		return nil, domain.Validationf("number of conditions must match number of objects")
	}
	if err := domain.ValueSet(conditions).Validate("selected conditions"); err != nil {
		return nil, err
	}
	if err := domain.ValueSet(objects).Validate("selected objects"); err != nil {
		return nil, err
	}
	for _, c := range conditions {
		if !m.conditionTypes.Contains(c) {
			return nil, domain.Validationf("unknown condition type %q", c)
		}
	}
	for _, o := range objects {
		if !m.objectTypes.Contains(o) {
			return nil, domain.Validationf("unknown object type %q", o)
		}
	}

	seq := make(domain.ProtocolSequence, len(conditions))
	for i := range conditions {
		seq[i] = domain.SequenceStep{
			ConditionIndex: i,
			ConditionType:  strings.TrimSpace(conditions[i]),
			ObjectType:     strings.TrimSpace(objects[i]),
		}
	}

	s.Sequence = seq
	s.CurrentIndex = -1
	s.Configured = true
	s.Completed = false
	s.Practice = false
	return nil, nil
}

// InstallSequence installs an externally assembled sequence (an applied
// order) under the same state guards as Configure. Slot labels were drawn
// from the registered value sets at generation time, so no membership check
// is repeated here.
func (m *Machine) InstallSequence(seq domain.ProtocolSequence) error {
	s := m.state
	if s.TimerActive {
		return domain.InvalidStatef("a condition is underway; reset before reconfiguring")
	}
	if s.Completed {
		return domain.InvalidStatef("protocol completed; reset before reconfiguring")
	}
	if s.CurrentIndex >= 0 {
		return domain.InvalidStatef("protocol already running; reset before reconfiguring")
	}
	if len(seq) == 0 {
		return domain.Validationf("sequence must contain at least one step")
	}

	s.Sequence = seq.Clone()
	s.CurrentIndex = -1
	s.Configured = true
	s.Completed = false
	s.Practice = false
	return nil
}

// Start begins the first condition: index 0, fresh countdown, begin-condition
// broadcast.
func (m *Machine) Start() ([]domain.Command, error) {
	s := m.state
	if !s.Configured {
		return nil, domain.InvalidStatef("experiment not configured")
	}
	if s.Completed {
		return nil, domain.InvalidStatef("protocol completed; no more conditions can be started")
	}
	if s.Practice {
		return nil, domain.InvalidStatef("practice trial underway; end it before starting the protocol")
	}
	if s.TimerActive {
		return nil, domain.InvalidStatef("a condition is already running")
	}
	if s.CurrentIndex != -1 {
		return nil, domain.InvalidStatef("protocol already started; use next or restart")
	}

	s.CurrentIndex = 0
	m.armTimer()
	return []domain.Command{domain.StartCommand(s.Sequence[0], 0)}, nil
}

// Practice begins a practice trial using the first configured step. The
// trial runs the same countdown mechanics as a real condition but never
// advances the protocol index.
func (m *Machine) Practice() ([]domain.Command, error) {
	s := m.state
	if !s.Configured {
		return nil, domain.InvalidStatef("experiment not configured")
	}
	if s.Completed {
		return nil, domain.InvalidStatef("protocol completed; reset before a practice trial")
	}
	if s.TimerActive {
		return nil, domain.InvalidStatef("a condition is already running")
	}
	if s.Practice {
		return nil, domain.InvalidStatef("practice trial already underway")
	}

	s.Practice = true
	m.armTimer()
	return []domain.Command{domain.PracticeCommand(s.Sequence[0])}, nil
}

// Restart re-arms the countdown for the condition currently underway
// (practice or real) and re-emits its begin-condition broadcast.
func (m *Machine) Restart() ([]domain.Command, error) {
	s := m.state
	if !s.TimerActive {
		return nil, domain.InvalidStatef("no active condition to restart")
	}

	m.armTimer()
	if s.Practice {
		return []domain.Command{domain.PracticeCommand(s.Sequence[0])}, nil
	}
	return []domain.Command{domain.StartCommand(s.Sequence[s.CurrentIndex], s.CurrentIndex)}, nil
}

// Tick checks the countdown against the clock. On expiry it deactivates the
// timer and emits the teardown broadcast; because the flag flips in the same
// step, the expiry broadcast can never fire twice for one deadline.
func (m *Machine) Tick() ([]domain.Command, bool) {
	s := m.state
	if !s.TimerActive || m.now().Before(s.TimerDeadline) {
		return nil, false
	}

	s.TimerActive = false
	return []domain.Command{domain.DisableAllCommand(domain.ReasonTimerExpired)}, true
}

// Next advances the protocol after a countdown has run out (or been forced).
// From the last index it completes the protocol instead; a completed
// protocol only accepts Reset. Ending a practice trial goes through Next as
// well and emits no broadcast of its own.
func (m *Machine) Next() ([]domain.Command, error) {
	s := m.state
	if s.Practice {
		if s.TimerActive {
			return nil, domain.InvalidStatef("practice timer still active; wait for expiry or force-next")
		}
		s.Practice = false
		return nil, nil
	}

	if !s.Configured {
		return nil, domain.InvalidStatef("experiment not configured")
	}
	if s.Completed {
		return nil, domain.InvalidStatef("protocol completed; no more conditions can be started")
	}
	if s.CurrentIndex < 0 {
		return nil, domain.InvalidStatef("protocol not started")
	}
	if s.TimerActive {
		return nil, domain.InvalidStatef("timer still active; wait for expiry or force-next")
	}

	if s.CurrentIndex >= len(s.Sequence)-1 {
		s.Completed = true
		return []domain.Command{domain.DisableAllCommand(domain.ReasonProtocolComplete)}, nil
	}

	s.CurrentIndex++
	m.armTimer()
	return []domain.Command{domain.NextCommand(s.Sequence[s.CurrentIndex], s.CurrentIndex)}, nil
}

// ForceNext is the operator override: it performs the same side effects as a
// natural expiry (with an operator-attributable reason) and then advances
// exactly as Next would.
func (m *Machine) ForceNext() ([]domain.Command, error) {
	s := m.state
	if !s.TimerActive {
		return nil, domain.InvalidStatef("no active timer to override")
	}

	s.TimerActive = false
	cmds := []domain.Command{domain.DisableAllCommand(domain.ReasonTimerOverridden)}

	nextCmds, err := m.Next()
	if err != nil {
		// Next cannot fail here: the timer was just deactivated and the
		// guards above ensure a condition or practice trial was underway.
		return cmds, err
	}
	return append(cmds, nextCmds...), nil
}

// Reset unconditionally reinitializes the protocol fields and tears down the
// scene. Network settings and the session log survive.
func (m *Machine) Reset() []domain.Command {
	s := m.state
	s.Sequence = nil
	s.CurrentIndex = -1
	s.Configured = false
	s.TimerActive = false
	s.TimerDeadline = time.Time{}
	s.Completed = false
	s.Practice = false
	s.SelectedOrderID = ""
	s.OrderMarkedUsed = false
	return []domain.Command{domain.DisableAllCommand(domain.ReasonManualReset)}
}

func (m *Machine) armTimer() {
	m.state.TimerActive = true
	m.state.TimerDeadline = m.now().Add(m.duration)
}
