// Package health provides HTTP health check endpoints for liveness, readiness, and status checks.
package health

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"enrollgate/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const checkTimeout = 2 * time.Second

// CheckFunc reports whether a dependency (database, redis, kafka) is reachable.
type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	optional bool
}

// Handler provides health check endpoints.
type Handler struct {
	startTime   time.Time
	environment string

	mu     sync.RWMutex
	checks map[string]check
}

// New creates a new health handler.
func New(environment string) *Handler {
	return &Handler{
		startTime:   time.Now(),
		environment: environment,
		checks:      make(map[string]check),
	}
}

// RegisterCheck adds a dependency the pending service cannot run without.
// A failing check makes the instance not ready.
func (h *Handler) RegisterCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn})
}

// RegisterOptionalCheck adds a dependency whose outage only degrades the
// service, such as notification delivery. A failing check is reported but
// the instance stays ready.
func (h *Handler) RegisterOptionalCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn, optional: true})
}

func (h *Handler) register(name string, c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// Register mounts health check routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// LivenessResponse is the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness always answers 200 while the process is serving.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

// ReadinessResponse is the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every registered check in parallel. The status is
// "ready", "degraded" when only optional checks fail, or "not_ready" (503)
// when a required one fails.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	var (
		mu       sync.Mutex
		results  = make(map[string]string, len(checks))
		required bool
		optional bool
	)
	g, ctx := errgroup.WithContext(r.Context())
	for name, c := range checks {
		name, c := name, c
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.fn(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				results[name] = "up"
				return nil
			}
			results[name] = "down: " + err.Error()
			if c.optional {
				optional = true
			} else {
				required = true
			}
			return nil
		})
	}
	_ = g.Wait()

	response := ReadinessResponse{Status: "ready", Checks: results}
	switch {
	case required:
		response.Status = "not_ready"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	case optional:
		response.Status = "degraded"
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

// StatusResponse is the response for the general health status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus returns general health status with version and uptime information.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
