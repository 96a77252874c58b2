package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type stubStats struct {
	stats domain.JobStats
	err   error
}

func (s stubStats) Stats(context.Context) (domain.JobStats, error) {
	return s.stats, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("postgres", NewPingChecker("postgres", stubPinger{}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("redis", NewPingChecker("redis", stubPinger{err: errors.New("connection refused")}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Checks["redis"].Message != "connection refused" {
		t.Errorf("unexpected check message %q", response.Checks["redis"].Message)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("unexpected liveness response %d %q", w.Code, w.Body.String())
	}
}

func TestReadinessHandler_DegradedIsReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("jobs", NewJobBacklogChecker(stubStats{stats: domain.JobStats{
		PendingCount:    10,
		OldestPendingAt: time.Now().Add(-time.Hour),
	}}, time.Minute))

	if got := handler.Run(context.Background()).Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ready" {
		t.Errorf("degraded service must stay ready, got %d %q", w.Code, w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("postgres", NewSimpleChecker("postgres", func(context.Context) error {
		return errors.New("not ready")
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusServiceUnavailable || w.Body.String() != "not ready" {
		t.Errorf("unexpected readiness response %d %q", w.Code, w.Body.String())
	}
}

func TestSimpleChecker_RespectsContext(t *testing.T) {
	checker := NewSimpleChecker("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	check := checker.Check(ctx)
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy on timeout, got %s", check.Status)
	}
}

func TestJobBacklogChecker(t *testing.T) {
	fresh := NewJobBacklogChecker(stubStats{stats: domain.JobStats{PendingCount: 3, OldestPendingAt: time.Now()}}, time.Minute)
	if got := fresh.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}

	broken := NewJobBacklogChecker(stubStats{err: errors.New("db down")}, time.Minute)
	if got := broken.Check(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", got)
	}
}
