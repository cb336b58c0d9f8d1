package protocol_test

import (
	"errors"
	"testing"
	"time"

	"github.com/exolab/vrsupervisor/internal/protocol"
	"github.com/exolab/vrsupervisor/pkg/domain"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newMachine(t *testing.T) (*protocol.Machine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	state := domain.NewSessionState(domain.NetworkTarget{IP: "127.0.0.1", Port: 1221})
	m := protocol.NewMachine(state, protocol.WithClock(clock.Now))
	m.SetValueSets(domain.ValueSet{"X", "Y"}, domain.ValueSet{"1", "2"})
	return m, clock
}

func configure(t *testing.T, m *protocol.Machine) {
	t.Helper()
	if _, err := m.Configure([]string{"X", "Y"}, []string{"1", "2"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
}

func expectInvalidState(t *testing.T, err error) {
	t.Helper()
	var ise *domain.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("Expected InvalidStateError, got %T: %v", err, err)
	}
}

func TestConfigure(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)

		s := m.State()
		if !s.Configured || s.CurrentIndex != -1 {
			t.Errorf("Unexpected state after configure: configured=%v index=%d", s.Configured, s.CurrentIndex)
		}
		if len(s.Sequence) != 2 {
			t.Fatalf("Expected 2 steps, got %d", len(s.Sequence))
		}
		if s.Sequence[1].ConditionType != "Y" || s.Sequence[1].ObjectType != "2" {
			t.Errorf("Unexpected second step: %+v", s.Sequence[1])
		}
	})

	t.Run("Unknown Value", func(t *testing.T) {
		m, _ := newMachine(t)
		_, err := m.Configure([]string{"X", "Nope"}, []string{"1", "2"})
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Expected ValidationError, got %T: %v", err, err)
		}
		if m.State().Configured {
			t.Error("Failed configure must leave state unchanged")
		}
	})

	t.Run("Length Mismatch", func(t *testing.T) {
		m, _ := newMachine(t)
		_, err := m.Configure([]string{"X"}, []string{"1", "2"})
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Expected ValidationError, got %T: %v", err, err)
		}
	})

	t.Run("While Running", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		_, err := m.Configure([]string{"X", "Y"}, []string{"1", "2"})
		expectInvalidState(t, err)
	})
}

func TestStart(t *testing.T) {
	t.Run("Emits Lowercased Begin Command", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)

		cmds, err := m.Start()
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if len(cmds) != 1 {
			t.Fatalf("Expected 1 command, got %d", len(cmds))
		}
		cmd := cmds[0]
		if cmd.Command != domain.CmdStartCondition {
			t.Errorf("Expected start_condition, got %s", cmd.Command)
		}
		if cmd.ConditionType != "x" || cmd.ObjectType != "1" {
			t.Errorf("Labels must be lowercased on the wire: %+v", cmd)
		}
		if cmd.ConditionIndex == nil || *cmd.ConditionIndex != 0 {
			t.Errorf("Expected condition_index 0, got %v", cmd.ConditionIndex)
		}

		s := m.State()
		if s.CurrentIndex != 0 || !s.TimerActive {
			t.Errorf("Unexpected state after start: index=%d timer=%v", s.CurrentIndex, s.TimerActive)
		}
	})

	t.Run("Unconfigured", func(t *testing.T) {
		m, _ := newMachine(t)
		_, err := m.Start()
		expectInvalidState(t, err)
	})

	t.Run("Already Running", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		_, err := m.Start()
		expectInvalidState(t, err)
	})
}

func TestTimer(t *testing.T) {
	t.Run("Remaining Never Negative", func(t *testing.T) {
		m, clock := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		clock.Advance(protocol.DefaultConditionDuration + time.Minute)
		if got := m.State().Remaining(clock.Now()); got != 0 {
			t.Errorf("Remaining = %v, want 0", got)
		}
	})

	t.Run("Tick Before Deadline Is Noop", func(t *testing.T) {
		m, clock := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		clock.Advance(protocol.DefaultConditionDuration - time.Second)
		cmds, expired := m.Tick()
		if expired || len(cmds) != 0 {
			t.Errorf("Tick fired early: expired=%v cmds=%v", expired, cmds)
		}
		if !m.State().TimerActive {
			t.Error("Timer must remain active before the deadline")
		}
	})

	t.Run("Expiry Fires Exactly Once", func(t *testing.T) {
		m, clock := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		clock.Advance(protocol.DefaultConditionDuration)
		cmds, expired := m.Tick()
		if !expired {
			t.Fatal("Expected expiry at the deadline")
		}
		if len(cmds) != 1 || cmds[0].Command != domain.CmdDisableAll || cmds[0].Reason != domain.ReasonTimerExpired {
			t.Errorf("Unexpected expiry commands: %v", cmds)
		}
		if m.State().TimerActive {
			t.Error("Timer must deactivate on expiry")
		}

		// Second tick against the same deadline must be silent.
		cmds, expired = m.Tick()
		if expired || len(cmds) != 0 {
			t.Errorf("Expiry broadcast fired twice: expired=%v cmds=%v", expired, cmds)
		}
	})
}

func TestNext(t *testing.T) {
	t.Run("Before Expiry Is Rejected", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		_, err := m.Next()
		expectInvalidState(t, err)
		if m.State().CurrentIndex != 0 {
			t.Error("Failed transition must leave the index unchanged")
		}
	})

	t.Run("After Expiry Advances And Rearms", func(t *testing.T) {
		m, clock := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		clock.Advance(protocol.DefaultConditionDuration)
		m.Tick()

		cmds, err := m.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if len(cmds) != 1 || cmds[0].Command != domain.CmdNextCondition {
			t.Fatalf("Unexpected commands: %v", cmds)
		}
		if cmds[0].ConditionType != "y" || *cmds[0].ConditionIndex != 1 {
			t.Errorf("Unexpected advance payload: %+v", cmds[0])
		}
		s := m.State()
		if s.CurrentIndex != 1 || !s.TimerActive {
			t.Errorf("Unexpected state after advance: index=%d timer=%v", s.CurrentIndex, s.TimerActive)
		}
	})

	t.Run("Last Index Completes", func(t *testing.T) {
		m, clock := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		// Run both conditions to completion.
		clock.Advance(protocol.DefaultConditionDuration)
		m.Tick()
		if _, err := m.Next(); err != nil {
			t.Fatalf("Advance to index 1 failed: %v", err)
		}
		clock.Advance(protocol.DefaultConditionDuration)
		m.Tick()

		cmds, err := m.Next()
		if err != nil {
			t.Fatalf("Completing Next failed: %v", err)
		}
		if len(cmds) != 1 || cmds[0].Reason != domain.ReasonProtocolComplete {
			t.Errorf("Expected completion broadcast, got %v", cmds)
		}
		s := m.State()
		if !s.Completed || s.CurrentIndex != 1 {
			t.Errorf("Unexpected terminal state: completed=%v index=%d", s.Completed, s.CurrentIndex)
		}

		// COMPLETED is terminal: further advances are rejected.
		_, err = m.Next()
		expectInvalidState(t, err)
		_, err = m.Start()
		expectInvalidState(t, err)
	})
}

func TestForceNext(t *testing.T) {
	t.Run("Equivalent To Expiry Plus Next", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		cmds, err := m.ForceNext()
		if err != nil {
			t.Fatalf("ForceNext failed: %v", err)
		}
		if len(cmds) != 2 {
			t.Fatalf("Expected teardown+advance, got %v", cmds)
		}
		if cmds[0].Command != domain.CmdDisableAll || cmds[0].Reason != domain.ReasonTimerOverridden {
			t.Errorf("Unexpected teardown: %+v", cmds[0])
		}
		if cmds[1].Command != domain.CmdNextCondition || *cmds[1].ConditionIndex != 1 {
			t.Errorf("Unexpected advance: %+v", cmds[1])
		}
		if m.State().CurrentIndex != 1 {
			t.Errorf("Expected index 1, got %d", m.State().CurrentIndex)
		}
	})

	t.Run("Without Active Timer", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		_, err := m.ForceNext()
		expectInvalidState(t, err)
	})

	t.Run("On Last Condition Completes", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if _, err := m.ForceNext(); err != nil {
			t.Fatalf("First ForceNext failed: %v", err)
		}

		cmds, err := m.ForceNext()
		if err != nil {
			t.Fatalf("Final ForceNext failed: %v", err)
		}
		if len(cmds) != 2 || cmds[1].Reason != domain.ReasonProtocolComplete {
			t.Errorf("Expected override then completion, got %v", cmds)
		}
		if !m.State().Completed {
			t.Error("Protocol must be completed")
		}
	})
}

func TestPractice(t *testing.T) {
	t.Run("Starts Tagged Trial Without Advancing", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)

		cmds, err := m.Practice()
		if err != nil {
			t.Fatalf("Practice failed: %v", err)
		}
		if len(cmds) != 1 {
			t.Fatalf("Expected 1 command, got %d", len(cmds))
		}
		cmd := cmds[0]
		if cmd.Command != domain.CmdStartCondition || !cmd.Practice {
			t.Errorf("Practice trial must reuse start_condition with the practice tag: %+v", cmd)
		}
		if cmd.ConditionIndex == nil || *cmd.ConditionIndex != domain.PracticeIndex {
			t.Errorf("Expected condition_index %d, got %v", domain.PracticeIndex, cmd.ConditionIndex)
		}

		s := m.State()
		if !s.Practice || !s.TimerActive || s.CurrentIndex != -1 {
			t.Errorf("Unexpected practice state: %+v", s)
		}
	})

	t.Run("Blocks Start Until Ended", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Practice(); err != nil {
			t.Fatalf("Practice failed: %v", err)
		}

		_, err := m.Start()
		expectInvalidState(t, err)
	})

	t.Run("ForceNext Ends Trial", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Practice(); err != nil {
			t.Fatalf("Practice failed: %v", err)
		}

		cmds, err := m.ForceNext()
		if err != nil {
			t.Fatalf("ForceNext failed: %v", err)
		}
		// Only the teardown goes out; ending practice emits nothing itself.
		if len(cmds) != 1 || cmds[0].Reason != domain.ReasonTimerOverridden {
			t.Errorf("Unexpected commands: %v", cmds)
		}
		s := m.State()
		if s.Practice || s.CurrentIndex != -1 {
			t.Errorf("Practice must end without advancing: %+v", s)
		}
		if _, err := m.Start(); err != nil {
			t.Errorf("Start must be possible after practice ends: %v", err)
		}
	})

	t.Run("Expiry Then Next Ends Trial", func(t *testing.T) {
		m, clock := newMachine(t)
		configure(t, m)
		if _, err := m.Practice(); err != nil {
			t.Fatalf("Practice failed: %v", err)
		}

		clock.Advance(protocol.DefaultConditionDuration)
		if _, expired := m.Tick(); !expired {
			t.Fatal("Expected practice timer to expire")
		}
		if _, err := m.Next(); err != nil {
			t.Fatalf("Next after practice expiry failed: %v", err)
		}
		if m.State().Practice {
			t.Error("Practice flag must clear")
		}
	})
}

func TestRestart(t *testing.T) {
	t.Run("Rearms Same Index", func(t *testing.T) {
		m, clock := newMachine(t)
		configure(t, m)
		if _, err := m.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		clock.Advance(2 * time.Minute)

		cmds, err := m.Restart()
		if err != nil {
			t.Fatalf("Restart failed: %v", err)
		}
		if len(cmds) != 1 || cmds[0].Command != domain.CmdStartCondition || *cmds[0].ConditionIndex != 0 {
			t.Errorf("Restart must re-emit the begin command for the same index: %v", cmds)
		}
		if got := m.State().Remaining(clock.Now()); got != protocol.DefaultConditionDuration {
			t.Errorf("Restart must grant a fresh full countdown, remaining=%v", got)
		}
	})

	t.Run("Practice Variant", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		if _, err := m.Practice(); err != nil {
			t.Fatalf("Practice failed: %v", err)
		}

		cmds, err := m.Restart()
		if err != nil {
			t.Fatalf("Restart failed: %v", err)
		}
		if !cmds[0].Practice {
			t.Errorf("Restarting a practice trial must keep the practice tag: %+v", cmds[0])
		}
	})

	t.Run("Without Active Timer", func(t *testing.T) {
		m, _ := newMachine(t)
		configure(t, m)
		_, err := m.Restart()
		expectInvalidState(t, err)
	})
}

func TestReset(t *testing.T) {
	m, _ := newMachine(t)
	configure(t, m)
	if _, err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cmds := m.Reset()
	if len(cmds) != 1 || cmds[0].Reason != domain.ReasonManualReset {
		t.Errorf("Expected manual_reset teardown, got %v", cmds)
	}

	s := m.State()
	if s.Configured || s.Completed || s.Practice || s.TimerActive {
		t.Errorf("Flags must clear on reset: %+v", s)
	}
	if s.CurrentIndex != -1 || len(s.Sequence) != 0 {
		t.Errorf("Sequence must clear on reset: index=%d len=%d", s.CurrentIndex, len(s.Sequence))
	}
	if s.Network.Port != 1221 {
		t.Error("Network settings must survive a reset")
	}

	// Reset is allowed from any state, including right after a reset.
	cmds = m.Reset()
	if len(cmds) != 1 {
		t.Errorf("Reset must always succeed, got %v", cmds)
	}
}
