package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger reports reachability of an upstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	*Handler
	backend Pinger
}

func NewHealthHandler(base *Handler, backendPinger Pinger) *HealthHandler {
	return &HealthHandler{Handler: base, backend: backendPinger}
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
}

// Health checks the store and the agent backend. Backend failure
// degrades the status but keeps 200: the service still works for
// roster reads, and deliveries retry on their own.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	storeStatus := "ok"
	if err := h.repo.Ping(ctx); err != nil {
		storeStatus = "unavailable"
		status = "degraded"
	}
	backendStatus := "ok"
	if err := h.backend.Ping(ctx); err != nil {
		backendStatus = "unavailable"
		status = "degraded"
	}

	code := http.StatusOK
	if storeStatus != "ok" {
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, map[string]string{
		"status":  status,
		"store":   storeStatus,
		"backend": backendStatus,
	})
}
