// Package session provides the Coordinator, the single serialization point
// for everything the supervisor does: protocol transitions, order
// management, broadcasting, the countdown loop and status emission.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/exolab/vrsupervisor/internal/logging"
	"github.com/exolab/vrsupervisor/internal/protocol"
	"github.com/exolab/vrsupervisor/pkg/domain"
	"github.com/exolab/vrsupervisor/pkg/observability"
	"github.com/exolab/vrsupervisor/pkg/orders"
	"github.com/exolab/vrsupervisor/pkg/ports"
)

// Coordinator owns the session state. Every inbound operation takes the
// coordinator's mutex, applies the transition, performs its side effects
// (broadcast, store writes, log lines) and emits a status event before the
// lock is released, so observers see events in the exact order transitions
// were applied.
type Coordinator struct {
	store       ports.OrderStore
	broadcaster ports.Broadcaster
	archiver    ports.Archiver
	generator   *orders.Generator
	logger      *slog.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	duration    time.Duration
	target      domain.NetworkTarget

	mu         sync.Mutex
	machine    *protocol.Machine
	state      *domain.SessionState
	conditions domain.ValueSet
	objects    domain.ValueSet
	sinks      []ports.EventSink
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source for the countdown and the session log.
// Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithConditionDuration overrides the per-condition countdown duration.
func WithConditionDuration(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.duration = d
		}
	}
}

// WithArchiver enables session saving.
func WithArchiver(a ports.Archiver) Option {
	return func(c *Coordinator) {
		c.archiver = a
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithNetworkTarget sets the initial broadcast destination.
func WithNetworkTarget(target domain.NetworkTarget) Option {
	return func(c *Coordinator) {
		c.target = target
	}
}

// WithEventSink registers an observer at construction time.
func WithEventSink(sink ports.EventSink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sinks = append(c.sinks, sink)
		}
	}
}

// New creates a Coordinator over the given order store and broadcaster.
func New(store ports.OrderStore, broadcaster ports.Broadcaster, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		broadcaster: broadcaster,
		logger:      logging.NewNop(),
		now:         time.Now,
		duration:    protocol.DefaultConditionDuration,
		target:      domain.NetworkTarget{IP: "255.255.255.255", Port: 1221},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.generator = orders.New(orders.WithClock(c.now))
	c.state = domain.NewSessionState(c.target)
	c.machine = protocol.NewMachine(c.state,
		protocol.WithClock(c.now),
		protocol.WithDuration(c.duration))
	return c
}

// SetValueSets registers the value sets used for configuration validation
// and order generation.
func (c *Coordinator) SetValueSets(conditions, objects domain.ValueSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conditions = append(domain.ValueSet(nil), conditions...)
	c.objects = append(domain.ValueSet(nil), objects...)
	c.machine.SetValueSets(c.conditions, c.objects)
}

// Subscribe registers an additional status observer.
func (c *Coordinator) Subscribe(sink ports.EventSink) {
	if sink == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink)
}

// Configure installs an operator-chosen sequence.
func (c *Coordinator) Configure(ctx context.Context, conditions, objects []string) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.machine.Configure(conditions, objects)
	c.metrics.ObserveTransition("configure", err == nil)
	if err != nil {
		return domain.FailErr(err)
	}

	c.state.SelectedOrderID = ""
	c.state.OrderMarkedUsed = false
	c.appendLogLocked("Experiment parameters configured")
	c.emitLocked(false)

	res := domain.OK("Experiment parameters configured")
	res.Sequence = c.state.Sequence.Clone()
	return res
}

// SelectOrder applies a stored order as the session sequence. The order is
// not marked used yet; that happens on the first Start.
func (c *Coordinator) SelectOrder(ctx context.Context, orderID string) (domain.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		c.metrics.ObserveTransition("select_order", false)
		if domain.IsRecoverable(err) {
			return domain.FailErr(err), nil
		}
		return domain.Result{}, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	seq := make(domain.ProtocolSequence, len(order.Sequence))
	for i, slot := range order.Sequence {
		seq[i] = domain.SequenceStep{
			ConditionIndex: i,
			ConditionType:  slot.ConditionType,
			ObjectType:     slot.ObjectType,
		}
	}

	if err := c.machine.InstallSequence(seq); err != nil {
		c.metrics.ObserveTransition("select_order", false)
		return domain.FailErr(err), nil
	}
	c.metrics.ObserveTransition("select_order", true)

	c.state.SelectedOrderID = order.ID
	c.state.OrderMarkedUsed = false
	c.appendLogLocked("Applied order " + order.ID)
	c.emitLocked(false)

	res := domain.OK("Applied order " + order.ID)
	res.Sequence = c.state.Sequence.Clone()
	return res, nil
}

// Start begins the first condition and, if an order was applied, counts its
// first use.
func (c *Coordinator) Start(ctx context.Context) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmds, err := c.machine.Start()
	c.metrics.ObserveTransition("start", err == nil)
	if err != nil {
		return domain.FailErr(err)
	}

	if c.state.SelectedOrderID != "" && !c.state.OrderMarkedUsed {
		if _, err := c.store.MarkUsed(ctx, c.state.SelectedOrderID); err != nil {
			c.logger.Warn("failed to record order usage",
				"order_id", c.state.SelectedOrderID, "error", err)
		} else {
			c.state.OrderMarkedUsed = true
		}
	}

	name := c.state.Sequence[0].Name()
	c.appendLogLocked("Started condition: " + name)
	c.dispatchLocked(ctx, cmds)
	c.metrics.SetCountdownActive(true)
	c.emitLocked(false)

	res := domain.OK("Started condition: " + name)
	res.ConditionName = name
	return res
}

// Practice begins a practice trial on the first configured step.
func (c *Coordinator) Practice(ctx context.Context) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmds, err := c.machine.Practice()
	c.metrics.ObserveTransition("practice", err == nil)
	if err != nil {
		return domain.FailErr(err)
	}

	name := c.state.Sequence[0].Name()
	c.appendLogLocked("Started practice trial: " + name)
	c.dispatchLocked(ctx, cmds)
	c.metrics.SetCountdownActive(true)
	c.emitLocked(false)

	res := domain.OK("Started practice trial: " + name)
	res.ConditionName = name
	return res
}

// Restart re-runs the current condition from a full countdown.
func (c *Coordinator) Restart(ctx context.Context) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmds, err := c.machine.Restart()
	c.metrics.ObserveTransition("restart", err == nil)
	if err != nil {
		return domain.FailErr(err)
	}

	var name string
	if c.state.Practice {
		name = c.state.Sequence[0].Name()
		c.appendLogLocked("Restarted practice trial: " + name)
	} else {
		name = c.state.Sequence[c.state.CurrentIndex].Name()
		c.appendLogLocked("Restarted condition: " + name)
	}
	c.dispatchLocked(ctx, cmds)
	c.emitLocked(false)

	res := domain.OK("Restarted condition: " + name)
	res.ConditionName = name
	return res
}

// Next advances the protocol after a countdown has run out.
func (c *Coordinator) Next(ctx context.Context) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPractice := c.state.Practice
	cmds, err := c.machine.Next()
	c.metrics.ObserveTransition("next", err == nil)
	if err != nil {
		return domain.FailErr(err)
	}
	return c.finishAdvanceLocked(ctx, cmds, wasPractice)
}

// ForceNext overrides an active countdown and advances immediately.
func (c *Coordinator) ForceNext(ctx context.Context) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPractice := c.state.Practice
	cmds, err := c.machine.ForceNext()
	c.metrics.ObserveTransition("force_next", err == nil)
	if err != nil {
		return domain.FailErr(err)
	}
	c.appendLogLocked("Condition timer overridden by supervisor")
	return c.finishAdvanceLocked(ctx, cmds, wasPractice)
}

// finishAdvanceLocked handles the three outcomes Next and ForceNext share:
// a practice trial ended, the protocol completed, or the index advanced.
func (c *Coordinator) finishAdvanceLocked(ctx context.Context, cmds []domain.Command, wasPractice bool) domain.Result {
	c.dispatchLocked(ctx, cmds)
	c.metrics.SetCountdownActive(c.state.TimerActive)

	switch {
	case wasPractice:
		c.appendLogLocked("Practice trial ended")
		c.emitLocked(false)
		return domain.OK("Practice trial ended")

	case c.state.Completed:
		c.appendLogLocked("Experiment completed")
		c.emitLocked(false)
		res := domain.OK("Experiment completed")
		res.Completed = true
		return res

	default:
		name := c.state.Sequence[c.state.CurrentIndex].Name()
		c.appendLogLocked("Advanced to condition: " + name)
		c.emitLocked(false)
		res := domain.OK("Advanced to condition: " + name)
		res.ConditionName = name
		return res
	}
}

// Reset tears down the session. It always succeeds; network settings, the
// group ID and the session log survive.
func (c *Coordinator) Reset(ctx context.Context) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmds := c.machine.Reset()
	c.metrics.ObserveTransition("reset", true)
	c.appendLogLocked("Session reset")
	c.dispatchLocked(ctx, cmds)
	c.metrics.SetCountdownActive(false)
	c.emitLocked(true)
	return domain.OK("Session reset")
}

// GenerateOrders builds the full balanced order set from the registered
// value sets and replaces the stored set wholesale.
func (c *Coordinator) GenerateOrders(ctx context.Context) (domain.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	generated, err := c.generator.Generate(c.conditions, c.objects)
	if err != nil {
		return domain.FailErr(err), nil
	}
	if err := c.store.ReplaceSet(ctx, generated); err != nil {
		return domain.Result{}, fmt.Errorf("failed to store generated orders: %w", err)
	}

	c.metrics.ObserveOrdersGenerated(len(generated))
	c.appendLogLocked(fmt.Sprintf("Generated %d orders", len(generated)))

	res := domain.OK(fmt.Sprintf("Generated %d orders", len(generated)))
	res.Orders = generated
	return res, nil
}

// Orders lists the stored order set.
func (c *Coordinator) Orders(ctx context.Context) ([]domain.Order, error) {
	return c.store.List(ctx)
}

// ResetOrderUsage zeroes every order's usage counter.
func (c *Coordinator) ResetOrderUsage(ctx context.Context) (domain.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.ResetAllUsage(ctx); err != nil {
		return domain.Result{}, fmt.Errorf("failed to reset order usage: %w", err)
	}
	c.appendLogLocked("Order usage counts reset")
	return domain.OK("Order usage counts reset"), nil
}

// UpdateNetwork changes the broadcast destination for subsequent commands.
func (c *Coordinator) UpdateNetwork(ctx context.Context, target domain.NetworkTarget) domain.Result {
	if err := target.Validate(); err != nil {
		return domain.FailErr(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Network = target
	c.appendLogLocked("Network target updated to " + target.Addr())
	return domain.OK("Network settings updated")
}

// SaveSession archives the current session under the given group ID.
func (c *Coordinator) SaveSession(ctx context.Context, groupID, notes string) (domain.Result, error) {
	if c.archiver == nil {
		return domain.Fail("session archiving is not configured"), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.GroupID = groupID
	archive := ports.SessionArchive{
		GroupID:      groupID,
		Notes:        notes,
		Sequence:     c.state.Sequence.Clone(),
		CurrentIndex: c.state.CurrentIndex,
		Logs:         append([]domain.LogEntry(nil), c.state.Logs...),
	}

	name, err := c.archiver.Archive(ctx, archive)
	if err != nil {
		if domain.IsRecoverable(err) {
			return domain.FailErr(err), nil
		}
		return domain.Result{}, fmt.Errorf("failed to archive session: %w", err)
	}

	c.appendLogLocked("Session data saved to " + name)

	res := domain.OK("Session data saved to " + name)
	res.Filename = name
	return res, nil
}

// Status returns the current outward-facing snapshot.
func (c *Coordinator) Status() domain.StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(false)
}

// Snapshot returns an independent copy of the session state.
func (c *Coordinator) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *c.state
	cp.Sequence = c.state.Sequence.Clone()
	cp.Logs = append([]domain.LogEntry(nil), c.state.Logs...)
	return cp
}

// Tick advances the countdown against the clock. It reports whether the
// timer expired on this call; expiry performs the teardown broadcast.
// Run calls this once per second, but tests may drive it directly.
func (c *Coordinator) Tick(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmds, fired := c.machine.Tick()
	if fired {
		c.appendLogLocked("Condition timer expired")
		c.dispatchLocked(ctx, cmds)
		c.metrics.SetCountdownActive(false)
		c.emitLocked(false)
		return true
	}
	if c.state.TimerActive {
		// Refresh the countdown text on observers.
		c.emitLocked(false)
	}
	return false
}

// Run drives the countdown at one tick per second until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

func (c *Coordinator) appendLogLocked(message string) {
	c.state.Logs = append(c.state.Logs, domain.LogEntry{
		Timestamp: c.now(),
		Message:   message,
	})
	c.logger.Info(message)
}

// dispatchLocked sends each command to the current network target. Delivery
// is best effort; a failed send is logged and counted but never fails the
// transition that produced it.
func (c *Coordinator) dispatchLocked(ctx context.Context, cmds []domain.Command) {
	for _, cmd := range cmds {
		err := c.broadcaster.Send(ctx, c.state.Network, cmd)
		c.metrics.ObserveDatagram(err)
		if err != nil {
			c.logger.Warn("broadcast failed",
				"command", cmd.Command, "target", c.state.Network.Addr(), "error", err)
		}
	}
}

func (c *Coordinator) emitLocked(resetUI bool) {
	event := c.statusLocked(resetUI)
	for _, sink := range c.sinks {
		sink.Emit(event)
	}
}

func (c *Coordinator) statusLocked(resetUI bool) domain.StatusEvent {
	s := c.state
	now := c.now()

	event := domain.StatusEvent{
		Timestamp:    now,
		Sequence:     s.Sequence.Clone(),
		CurrentIndex: s.CurrentIndex,
		Configured:   s.Configured,
		Completed:    s.Completed,
		Practice:     s.Practice,
		TimerActive:  s.TimerActive,

		ResetInterface: resetUI,
	}

	switch {
	case s.Practice:
		event.Status = "Practice trial underway"
	case s.Completed:
		event.Status = "Experiment completed"
	case s.CurrentIndex >= 0 && s.CurrentIndex < len(s.Sequence):
		event.Status = fmt.Sprintf("Condition %d of %d: %s",
			s.CurrentIndex+1, len(s.Sequence), s.Sequence[s.CurrentIndex].Name())
	case s.Configured:
		event.Status = "Ready to start"
	default:
		event.Status = "Waiting for configuration"
	}

	if s.TimerActive {
		remaining := s.Remaining(now)
		label := "Time Remaining"
		if s.Practice {
			label = "Practice Time"
		}
		event.CountdownText = fmt.Sprintf("%s: %02d:%02d",
			label, int(remaining/time.Minute), int(remaining/time.Second)%60)
	}

	event.EnableStart = s.Configured && !s.TimerActive && !s.Practice && !s.Completed && s.CurrentIndex == -1
	event.EnablePractice = event.EnableStart
	event.EnableNext = !s.TimerActive && !s.Completed &&
		(s.Practice || (s.Configured && s.CurrentIndex >= 0))
	event.EnableForceNext = s.TimerActive
	return event
}
