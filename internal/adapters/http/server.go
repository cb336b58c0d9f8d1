// Package http exposes the supervisor over REST and SSE: session
// transitions, order management, configuration and the live status stream
// the control panel consumes.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/exolab/vrsupervisor"
	"github.com/exolab/vrsupervisor/internal/config"
	"github.com/exolab/vrsupervisor/internal/logging"
	"github.com/exolab/vrsupervisor/pkg/domain"
	"github.com/exolab/vrsupervisor/pkg/ports"
)

// Supervisor defines the interface for the session coordinator core.
type Supervisor interface {
	Configure(ctx context.Context, conditions, objects []string) domain.Result
	SelectOrder(ctx context.Context, orderID string) (domain.Result, error)
	Start(ctx context.Context) domain.Result
	Practice(ctx context.Context) domain.Result
	Restart(ctx context.Context) domain.Result
	Next(ctx context.Context) domain.Result
	ForceNext(ctx context.Context) domain.Result
	Reset(ctx context.Context) domain.Result
	GenerateOrders(ctx context.Context) (domain.Result, error)
	Orders(ctx context.Context) ([]domain.Order, error)
	ResetOrderUsage(ctx context.Context) (domain.Result, error)
	UpdateNetwork(ctx context.Context, target domain.NetworkTarget) domain.Result
	SaveSession(ctx context.Context, groupID, notes string) (domain.Result, error)
	Status() domain.StatusEvent
	SetValueSets(conditions, objects domain.ValueSet)
	Subscribe(sink ports.EventSink)
}

// Server routes HTTP traffic to the coordinator.
type Server struct {
	supervisor Supervisor
	cfg        *config.Manager
	streams    *StreamManager
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConfigManager enables the configuration endpoints.
func WithConfigManager(cfg *config.Manager) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithMetrics mounts /metrics for the given gatherer.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler builds the HTTP handler. It subscribes to the coordinator's
// status events and fans them out to SSE clients.
func NewHandler(supervisor Supervisor, opts ...Option) http.Handler {
	s := &Server{
		supervisor: supervisor,
		streams:    NewStreamManager(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	supervisor.Subscribe(ports.EventSinkFunc(func(event domain.StatusEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("status event encode failed", "error", err)
			return
		}
		s.streams.Broadcast(string(payload))
	}))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.getHealth)
		r.Get("/status", s.getStatus)
		r.Get("/events", s.subscribeEvents)

		r.Route("/session", func(r chi.Router) {
			r.Post("/configure", s.postConfigure)
			r.Post("/start", s.transition(s.supervisor.Start))
			r.Post("/practice", s.transition(s.supervisor.Practice))
			r.Post("/restart", s.transition(s.supervisor.Restart))
			r.Post("/next", s.transition(s.supervisor.Next))
			r.Post("/force-next", s.transition(s.supervisor.ForceNext))
			r.Post("/reset", s.transition(s.supervisor.Reset))
			r.Put("/network", s.putNetwork)
			r.Post("/save", s.postSave)
			r.Post("/command", s.postCommand)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.getOrders)
			r.Post("/generate", s.postGenerateOrders)
			r.Post("/reset-usage", s.postResetUsage)
			r.Post("/{orderID}/apply", s.postApplyOrder)
		})

		if s.cfg != nil {
			r.Get("/config", s.getConfig)
			r.Put("/config/values", s.putConfigValues)
		}
	})

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// transition adapts a no-payload coordinator operation to a handler.
func (s *Server) transition(op func(ctx context.Context) domain.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeResult(w, op(r.Context()))
	}
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": vrsupervisor.Version,
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.supervisor.Status())
}

type configurePayload struct {
	Conditions []string `json:"conditions" mapstructure:"conditions"`
	Objects    []string `json:"objects" mapstructure:"objects"`
}

func (s *Server) postConfigure(w http.ResponseWriter, r *http.Request) {
	var body configurePayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "configure", err)
		return
	}
	s.writeResult(w, s.supervisor.Configure(r.Context(), body.Conditions, body.Objects))
}

type networkPayload struct {
	IP   string `json:"udp_ip" mapstructure:"udp_ip"`
	Port int    `json:"udp_port" mapstructure:"udp_port"`
}

func (s *Server) putNetwork(w http.ResponseWriter, r *http.Request) {
	var body networkPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "network", err)
		return
	}
	s.writeResult(w, s.supervisor.UpdateNetwork(r.Context(), domain.NetworkTarget{IP: body.IP, Port: body.Port}))
}

type savePayload struct {
	GroupID string `json:"group_id" mapstructure:"group_id"`
	Notes   string `json:"notes" mapstructure:"notes"`
}

func (s *Server) postSave(w http.ResponseWriter, r *http.Request) {
	var body savePayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "save", err)
		return
	}
	res, err := s.supervisor.SaveSession(r.Context(), body.GroupID, body.Notes)
	if err != nil {
		s.internalError(w, "save", err)
		return
	}
	s.writeResult(w, res)
}

type commandEnvelope struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

type applyOrderPayload struct {
	OrderID string `json:"order_id" mapstructure:"order_id"`
}

// postCommand is the single-endpoint control surface: an {action, payload}
// envelope dispatched to the same operations the dedicated routes expose.
func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	var envelope commandEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		s.badRequest(w, "command", err)
		return
	}

	ctx := r.Context()
	switch envelope.Action {
	case "configure":
		var p configurePayload
		if err := mapstructure.Decode(envelope.Payload, &p); err != nil {
			s.badRequest(w, "command", err)
			return
		}
		s.writeResult(w, s.supervisor.Configure(ctx, p.Conditions, p.Objects))

	case "apply_order":
		var p applyOrderPayload
		if err := mapstructure.Decode(envelope.Payload, &p); err != nil {
			s.badRequest(w, "command", err)
			return
		}
		res, err := s.supervisor.SelectOrder(ctx, p.OrderID)
		if err != nil {
			s.internalError(w, "command", err)
			return
		}
		s.writeResult(w, res)

	case "start":
		s.writeResult(w, s.supervisor.Start(ctx))
	case "practice":
		s.writeResult(w, s.supervisor.Practice(ctx))
	case "restart":
		s.writeResult(w, s.supervisor.Restart(ctx))
	case "next":
		s.writeResult(w, s.supervisor.Next(ctx))
	case "force_next":
		s.writeResult(w, s.supervisor.ForceNext(ctx))
	case "reset":
		s.writeResult(w, s.supervisor.Reset(ctx))

	case "update_network":
		var p networkPayload
		if err := mapstructure.Decode(envelope.Payload, &p); err != nil {
			s.badRequest(w, "command", err)
			return
		}
		s.writeResult(w, s.supervisor.UpdateNetwork(ctx, domain.NetworkTarget{IP: p.IP, Port: p.Port}))

	case "save_session":
		var p savePayload
		if err := mapstructure.Decode(envelope.Payload, &p); err != nil {
			s.badRequest(w, "command", err)
			return
		}
		res, err := s.supervisor.SaveSession(ctx, p.GroupID, p.Notes)
		if err != nil {
			s.internalError(w, "command", err)
			return
		}
		s.writeResult(w, res)

	default:
		s.writeResult(w, domain.Fail(fmt.Sprintf("unknown action %q", envelope.Action)))
	}
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.supervisor.Orders(r.Context())
	if err != nil {
		s.internalError(w, "orders", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

func (s *Server) postGenerateOrders(w http.ResponseWriter, r *http.Request) {
	res, err := s.supervisor.GenerateOrders(r.Context())
	if err != nil {
		s.internalError(w, "generate orders", err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) postResetUsage(w http.ResponseWriter, r *http.Request) {
	res, err := s.supervisor.ResetOrderUsage(r.Context())
	if err != nil {
		s.internalError(w, "reset usage", err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) postApplyOrder(w http.ResponseWriter, r *http.Request) {
	res, err := s.supervisor.SelectOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.internalError(w, "apply order", err)
		return
	}
	s.writeResult(w, res)
}

type configResponse struct {
	ConditionTypes  []string `json:"condition_types"`
	ObjectTypes     []string `json:"object_types"`
	Variable1Name   string   `json:"variable1_name"`
	Variable2Name   string   `json:"variable2_name"`
	Variable1Plural string   `json:"variable1_plural"`
	Variable2Plural string   `json:"variable2_plural"`
	FirstTimeSetup  bool     `json:"is_first_time_setup"`
	UDPIp           string   `json:"udp_ip"`
	UDPPort         int      `json:"udp_port"`
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	s.writeJSON(w, http.StatusOK, configResponse{
		ConditionTypes:  cfg.ConditionTypes,
		ObjectTypes:     cfg.ObjectTypes,
		Variable1Name:   cfg.Metadata.Variable1Name,
		Variable2Name:   cfg.Metadata.Variable2Name,
		Variable1Plural: cfg.Metadata.Variable1Plural,
		Variable2Plural: cfg.Metadata.Variable2Plural,
		FirstTimeSetup:  cfg.Metadata.FirstTimeSetup,
		UDPIp:           cfg.Network.IP,
		UDPPort:         cfg.Network.Port,
	})
}

type configValuesPayload struct {
	ConditionTypes []string `json:"condition_types"`
	ObjectTypes    []string `json:"object_types"`
}

// putConfigValues replaces the registered value sets. The update persists to
// disk first and only then reaches the coordinator, so a write failure never
// leaves the two views disagreeing.
func (s *Server) putConfigValues(w http.ResponseWriter, r *http.Request) {
	var body configValuesPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "config values", err)
		return
	}

	if err := domain.ValueSet(body.ConditionTypes).Validate("condition types"); err != nil {
		s.writeResult(w, domain.FailErr(err))
		return
	}
	if err := domain.ValueSet(body.ObjectTypes).Validate("object types"); err != nil {
		s.writeResult(w, domain.FailErr(err))
		return
	}

	updated, err := s.cfg.Update(func(cfg *config.Config) error {
		cfg.ConditionTypes = body.ConditionTypes
		cfg.ObjectTypes = body.ObjectTypes
		cfg.Metadata.FirstTimeSetup = false
		return nil
	})
	if err != nil {
		s.internalError(w, "config values", err)
		return
	}

	s.supervisor.SetValueSets(updated.ConditionTypes, updated.ObjectTypes)
	s.writeResult(w, domain.OK("Value sets updated"))
}

// subscribeEvents handles the GET /api/events request (SSE).
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SSE: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	// Snapshot first so a reconnecting panel renders immediately.
	if payload, err := json.Marshal(s.supervisor.Status()); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) writeResult(w http.ResponseWriter, res domain.Result) {
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) badRequest(w http.ResponseWriter, op string, err error) {
	s.logger.Warn("invalid request body", "op", op, "error", err)
	http.Error(w, "Invalid request body", http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("operation failed", "op", op, "error", err)
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
}

// StreamManager fans status events out to active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
	}
}

func (sm *StreamManager) Subscribe() (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Broadcast delivers msg to every subscriber, dropping it for clients whose
// buffer is full so a slow panel can never stall the coordinator.
func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}
