// Package api provides HTTP handlers for the InstantAgent API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/averlon/instantagent/internal/chat"
	"github.com/averlon/instantagent/internal/config"
	"github.com/averlon/instantagent/internal/identity"
	"github.com/averlon/instantagent/internal/registry"
	"github.com/averlon/instantagent/internal/store"
)

// maxRequestBodySize caps request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler carries the dependencies shared by all endpoint groups.
type Handler struct {
	hub     *registry.Hub
	repo    store.Repository
	cfg     *config.Config
	logger  *slog.Logger
	limiter *RateLimiter
	convlog *chat.ConversationLogger
}

// NewHandler creates a Handler with common dependencies.
func NewHandler(hub *registry.Hub, repo store.Repository, cfg *config.Config, convlog *chat.ConversationLogger, logger *slog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		convlog: convlog,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// registryFor resolves the caller's registry, writing the error
// response itself when the request has no usable identity.
func (h *Handler) registryFor(w http.ResponseWriter, r *http.Request) (*registry.Registry, string, bool) {
	id := identity.FromContext(r.Context())
	if id == "" {
		Error(w, http.StatusUnauthorized, "sign in first")
		return nil, "", false
	}
	reg, err := h.hub.ForIdentity(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load registry", "identity", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load your agents")
		return nil, "", false
	}
	return reg, id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
