package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/exolab/vrsupervisor/internal/adapters/memory"
	"github.com/exolab/vrsupervisor/internal/config"
	"github.com/exolab/vrsupervisor/pkg/domain"
	"github.com/exolab/vrsupervisor/pkg/ports"
	"github.com/exolab/vrsupervisor/pkg/session"
)

func newTestHandler(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	c := session.New(memory.NewStore(), ports.BroadcastFunc(
		func(ctx context.Context, target domain.NetworkTarget, cmd domain.Command) error {
			return nil
		}))
	c.SetValueSets(
		domain.ValueSet{"Baseline", "Social"},
		domain.ValueSet{"Cube", "Avatar"},
	)
	return NewHandler(c, opts...)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) domain.Result {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var res domain.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("Response is not a result envelope: %v", err)
	}
	return res
}

func TestGetHealth(t *testing.T) {
	handler := newTestHandler(t)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestConfigureStartFlow(t *testing.T) {
	handler := newTestHandler(t)

	res := decodeResult(t, postJSON(t, handler, "/api/session/configure", configurePayload{
		Conditions: []string{"Baseline", "Social"},
		Objects:    []string{"Cube", "Avatar"},
	}))
	if !res.Success {
		t.Fatalf("Configure failed: %s", res.Message)
	}

	res = decodeResult(t, postJSON(t, handler, "/api/session/start", nil))
	if !res.Success || res.ConditionName != "Baseline (Cube)" {
		t.Fatalf("Start: success=%v name=%q", res.Success, res.ConditionName)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status domain.StatusEvent
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Invalid status body: %v", err)
	}
	if !status.TimerActive || status.CurrentIndex != 0 {
		t.Errorf("Status = %+v", status)
	}
}

func TestRejectedTransitionIsAnEnvelope(t *testing.T) {
	handler := newTestHandler(t)

	// Start without configuring: recoverable, so HTTP 200 with success=false.
	res := decodeResult(t, postJSON(t, handler, "/api/session/start", nil))
	if res.Success {
		t.Fatal("Start succeeded without configuration")
	}
	if res.Message == "" {
		t.Error("Rejection carries no message")
	}
}

func TestCommandEnvelope(t *testing.T) {
	handler := newTestHandler(t)

	res := decodeResult(t, postJSON(t, handler, "/api/session/command", commandEnvelope{
		Action: "configure",
		Payload: map[string]any{
			"conditions": []string{"Baseline"},
			"objects":    []string{"Cube"},
		},
	}))
	if !res.Success {
		t.Fatalf("configure via envelope failed: %s", res.Message)
	}

	res = decodeResult(t, postJSON(t, handler, "/api/session/command", commandEnvelope{Action: "start"}))
	if !res.Success {
		t.Fatalf("start via envelope failed: %s", res.Message)
	}

	res = decodeResult(t, postJSON(t, handler, "/api/session/command", commandEnvelope{Action: "levitate"}))
	if res.Success {
		t.Fatal("Unknown action must be rejected")
	}
}

func TestOrderEndpoints(t *testing.T) {
	handler := newTestHandler(t)

	res := decodeResult(t, postJSON(t, handler, "/api/orders/generate", nil))
	if !res.Success || len(res.Orders) != 4 {
		t.Fatalf("Generate: success=%v orders=%d", res.Success, len(res.Orders))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	var listing struct {
		Orders []domain.Order `json:"orders"`
		Count  int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("Invalid orders body: %v", err)
	}
	if listing.Count != 4 {
		t.Errorf("Count = %d, want 4", listing.Count)
	}

	res = decodeResult(t, postJSON(t, handler, "/api/orders/ORD-0003/apply", nil))
	if !res.Success || len(res.Sequence) != 2 {
		t.Fatalf("Apply: success=%v steps=%d", res.Success, len(res.Sequence))
	}

	res = decodeResult(t, postJSON(t, handler, "/api/orders/ORD-9999/apply", nil))
	if res.Success {
		t.Fatal("Applying an unknown order must be rejected")
	}

	res = decodeResult(t, postJSON(t, handler, "/api/orders/reset-usage", nil))
	if !res.Success {
		t.Fatalf("Reset usage failed: %s", res.Message)
	}
}

func TestConfigEndpoints(t *testing.T) {
	mgr, err := config.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	handler := newTestHandler(t, WithConfigManager(mgr))

	req := httptest.NewRequest(http.MethodPut, "/api/config/values",
		strings.NewReader(`{"condition_types":["A","B"],"object_types":["X","Y"]}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if res := decodeResult(t, w); !res.Success {
		t.Fatalf("PUT config values failed: %s", res.Message)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	var cfg configResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("Invalid config body: %v", err)
	}
	if len(cfg.ConditionTypes) != 2 || cfg.ConditionTypes[0] != "A" {
		t.Errorf("ConditionTypes = %v", cfg.ConditionTypes)
	}
	if cfg.FirstTimeSetup {
		t.Error("FirstTimeSetup still set after a value update")
	}

	// The new sets take effect for configuration immediately.
	res := decodeResult(t, postJSON(t, handler, "/api/session/configure", configurePayload{
		Conditions: []string{"A", "B"},
		Objects:    []string{"X", "Y"},
	}))
	if !res.Success {
		t.Fatalf("Configure with updated sets failed: %s", res.Message)
	}
}

func TestDuplicateValueSetRejected(t *testing.T) {
	mgr, err := config.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	handler := newTestHandler(t, WithConfigManager(mgr))

	req := httptest.NewRequest(http.MethodPut, "/api/config/values",
		strings.NewReader(`{"condition_types":["A","A"],"object_types":["X","Y"]}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if res := decodeResult(t, w); res.Success {
		t.Fatal("Duplicate condition types must be rejected")
	}
}

func TestSubscribeEventsSnapshot(t *testing.T) {
	handler := newTestHandler(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "data: ") || !strings.Contains(body, `"experiment_configured":false`) {
		t.Errorf("SSE stream missing the initial snapshot: %q", body)
	}
}
