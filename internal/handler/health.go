package handler

import (
	"context"
	"net/http"
	"time"

	"jokernotes/internal/httputil"
)

// HealthCheck pings one named dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports liveness and the state of backing services
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a health handler running checks on each request
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	httputil.RespondJSON(w, status, map[string]any{
		"status":       overall,
		"time":         time.Now(),
		"dependencies": deps,
	})
}
