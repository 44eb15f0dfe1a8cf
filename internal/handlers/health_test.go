package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return now
	}

	handlers := NewHealthHandlers(
		WithHealthClock(clock),
		WithHealthVersion("1.2.0"),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handlers.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
	if body["version"] != "1.2.0" {
		t.Fatalf("expected version 1.2.0, got %v", body["version"])
	}
}

func TestHealthHandlersReadyzSuccess(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessProbe("firestore", func(ctx context.Context) error { return nil }),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "ready" || body.Checks["firestore"] != "ok" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHealthHandlersReadyzFailure(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessProbe("firestore", func(ctx context.Context) error { return nil }),
		WithReadinessProbe("pubsub", func(ctx context.Context) error { return errors.New("topic missing") }),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "unavailable" {
		t.Fatalf("expected unavailable, got %q", body.Status)
	}
	if body.Checks["pubsub"] != "topic missing" || body.Checks["firestore"] != "ok" {
		t.Fatalf("unexpected checks %+v", body.Checks)
	}
}
