package vrsupervisor

import (
	"log/slog"
	"time"

	"github.com/exolab/vrsupervisor/internal/adapters/file"
	"github.com/exolab/vrsupervisor/internal/adapters/memory"
	"github.com/exolab/vrsupervisor/internal/adapters/udp"
	"github.com/exolab/vrsupervisor/pkg/domain"
	"github.com/exolab/vrsupervisor/pkg/observability"
	"github.com/exolab/vrsupervisor/pkg/ports"
	"github.com/exolab/vrsupervisor/pkg/session"
)

// Version is the supervisor release version.
var Version = "0.1.0"

// Supervisor is the high-level entry point: a session coordinator wired with
// sensible defaults (in-memory order store, UDP broadcaster, filesystem
// archiver), each replaceable through options.
type Supervisor struct {
	*session.Coordinator
}

// Option defines a functional option for configuring the Supervisor.
type Option func(*builder)

type builder struct {
	store       ports.OrderStore
	broadcaster ports.Broadcaster
	archiver    ports.Archiver
	logger      *slog.Logger
	metrics     *observability.Metrics
	duration    time.Duration
	target      *domain.NetworkTarget
	dataDir     string
	conditions  domain.ValueSet
	objects     domain.ValueSet
}

// WithOrderStore injects a custom order store (e.g. the Redis adapter).
func WithOrderStore(store ports.OrderStore) Option {
	return func(b *builder) { b.store = store }
}

// WithBroadcaster injects a custom command broadcaster.
func WithBroadcaster(bc ports.Broadcaster) Option {
	return func(b *builder) { b.broadcaster = bc }
}

// WithArchiver injects a custom session archiver.
func WithArchiver(a ports.Archiver) Option {
	return func(b *builder) { b.archiver = a }
}

// WithLogger sets a structured logger for the coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *builder) { b.metrics = m }
}

// WithConditionDuration overrides the per-condition countdown duration.
func WithConditionDuration(d time.Duration) Option {
	return func(b *builder) { b.duration = d }
}

// WithNetworkTarget sets the initial broadcast destination.
func WithNetworkTarget(target domain.NetworkTarget) Option {
	return func(b *builder) { b.target = &target }
}

// WithDataDir sets the directory for session archives (default "data").
func WithDataDir(dir string) Option {
	return func(b *builder) { b.dataDir = dir }
}

// WithValueSets registers the experimental value sets at construction time.
func WithValueSets(conditions, objects domain.ValueSet) Option {
	return func(b *builder) {
		b.conditions = conditions
		b.objects = objects
	}
}

// New initializes a Supervisor.
func New(opts ...Option) *Supervisor {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}

	if b.store == nil {
		b.store = memory.NewStore()
	}
	if b.broadcaster == nil {
		var udpOpts []udp.Option
		if b.logger != nil {
			udpOpts = append(udpOpts, udp.WithLogger(b.logger))
		}
		b.broadcaster = udp.New(udpOpts...)
	}
	if b.archiver == nil {
		b.archiver = file.New(b.dataDir)
	}

	sessionOpts := []session.Option{
		session.WithArchiver(b.archiver),
	}
	if b.logger != nil {
		sessionOpts = append(sessionOpts, session.WithLogger(b.logger))
	}
	if b.metrics != nil {
		sessionOpts = append(sessionOpts, session.WithMetrics(b.metrics))
	}
	if b.duration > 0 {
		sessionOpts = append(sessionOpts, session.WithConditionDuration(b.duration))
	}
	if b.target != nil {
		sessionOpts = append(sessionOpts, session.WithNetworkTarget(*b.target))
	}

	coordinator := session.New(b.store, b.broadcaster, sessionOpts...)
	if len(b.conditions) > 0 || len(b.objects) > 0 {
		coordinator.SetValueSets(b.conditions, b.objects)
	}
	return &Supervisor{Coordinator: coordinator}
}
