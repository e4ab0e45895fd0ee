//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger is a dependency whose reachability affects health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports how many sessions are held.
type Counter interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	sessions Counter
	checks   map[string]Pinger
	provider string
	timeout  time.Duration
}

// NewHealthHandler creates a new health handler. checks may be nil.
func NewHealthHandler(sessions Counter, provider string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		sessions: sessions,
		checks:   checks,
		provider: provider,
		timeout:  5 * time.Second,
	}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":       "healthy",
		"checks":       checks,
		"sessions":     h.sessions.Len(),
		"llm_provider": h.provider,
	}
	statusCode := http.StatusOK

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			slog.Error("Health check failed", "check", name, "error", err)
			status["status"] = "degraded"
			checks[name] = "unreachable"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
