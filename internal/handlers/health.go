package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessProbe checks a single downstream dependency. A nil error means the
// dependency can serve traffic.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	version   string
	startedAt time.Time
	clock     func() time.Time
	probes    []namedProbe
}

type namedProbe struct {
	name  string
	probe ReadinessProbe
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// WithHealthVersion records the build version reported on /healthz.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithHealthClock overrides the time source, primarily for testing.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessProbe registers a named dependency check run on /readyz.
func WithReadinessProbe(name string, probe ReadinessProbe) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || probe == nil {
			return
		}
		h.probes = append(h.probes, namedProbe{name: name, probe: probe})
	}
}

// NewHealthHandlers constructs health handlers with the supplied options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	// The start time must come from the effective clock, so an overridden
	// clock governs uptime as well.
	h.startedAt = h.clock().UTC()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz runs the registered dependency probes and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.probes))
	ready := true
	for _, entry := range h.probes {
		if err := entry.probe(r.Context()); err != nil {
			checks[entry.name] = err.Error()
			ready = false
			continue
		}
		checks[entry.name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}
	writeJSONResponse(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
