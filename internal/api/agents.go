package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/averlon/instantagent/internal/backend"
	"github.com/averlon/instantagent/internal/domain"
	"github.com/averlon/instantagent/internal/identity"
	"github.com/averlon/instantagent/internal/registry"
)

// AgentHandler serves sign-in and agent lifecycle endpoints.
type AgentHandler struct {
	*Handler
}

func NewAgentHandler(base *Handler) *AgentHandler {
	return &AgentHandler{Handler: base}
}

// RegisterRoutes registers session and agent routes.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.SignIn)
		r.Delete("/session", h.SignOut)
		r.Get("/me", h.GetMe)
		r.Get("/models", h.ListModels)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Route("/{agentID}", func(r chi.Router) {
				r.Delete("/", h.DeleteAgent)
				r.Post("/select", h.SelectAgent)
				r.Get("/messages", h.GetTranscript)
			})
		})
	})
}

type signInRequest struct {
	Name string `json:"name"`
}

// SignIn binds a display name to the client. The name is a namespace
// key only; any previously persisted agents under it become visible.
func (h *AgentHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity.Sanitize(req.Name)
	if id == "" {
		Error(w, http.StatusBadRequest, "name must be 1-64 letters, digits, spaces, dots, dashes or underscores")
		return
	}

	reg, err := h.hub.ForIdentity(identity.WithIdentity(r.Context(), id), id)
	if err != nil {
		h.logger.Error("sign-in failed", "identity", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load your agents")
		return
	}

	identity.SetCookie(w, id, h.cfg.IsDevelopment())
	JSON(w, http.StatusOK, map[string]interface{}{
		"identity": id,
		"agents":   reg.Agents(),
	})
}

// SignOut clears the identity cookie. Agents and transcripts stay in
// the store and reappear on the next sign-in with the same name.
func (h *AgentHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if id := identity.FromContext(r.Context()); id != "" {
		h.hub.Evict(id)
	}
	identity.ClearCookie(w, h.cfg.IsDevelopment())
	JSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// GetMe returns the caller's identity and active agent.
func (h *AgentHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	reg, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	resp := map[string]interface{}{
		"identity": id,
		"agents":   reg.Agents(),
	}
	if active := reg.ActiveAgent(); active != nil {
		resp["active_agent_id"] = active.ID
	}
	JSON(w, http.StatusOK, resp)
}

// ListModels returns the selectable model catalog.
func (h *AgentHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"models": domain.KnownModels()})
}

// ListAgents returns the caller's roster in creation order.
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	reg, _, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"agents": reg.Agents()})
}

type createAgentRequest struct {
	Goal           string   `json:"goal"`
	Model          string   `json:"model"`
	Specialization string   `json:"specialization,omitempty"`
	Tools          []string `json:"tools,omitempty"`
}

// CreateAgent provisions a new agent for the caller.
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	reg, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	if !h.limiter.Allow(id) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req createAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Goal == "" || req.Model == "" {
		Error(w, http.StatusBadRequest, "goal and model are required")
		return
	}

	agent, err := reg.CreateAgent(r.Context(), req.Goal, req.Model, req.Specialization, req.Tools)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrUnavailable):
			Error(w, http.StatusBadGateway, "agent backend is unreachable, try again shortly")
		case errors.Is(err, backend.ErrRejected):
			Error(w, http.StatusUnprocessableEntity, "agent backend rejected the configuration")
		default:
			h.logger.Error("agent creation failed", "identity", id, "error", err)
			Error(w, http.StatusInternalServerError, "failed to create agent")
		}
		return
	}
	JSON(w, http.StatusCreated, agent)
}

// DeleteAgent removes an agent and its transcript. Deleting an unknown
// id succeeds; the end state is the same.
func (h *AgentHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	reg, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	agentID := chi.URLParam(r, "agentID")
	if err := reg.DeleteAgent(r.Context(), agentID); err != nil {
		h.logger.Error("agent deletion failed", "identity", id, "agent_id", agentID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SelectAgent makes an agent active and returns its transcript,
// seeding the welcome message into a brand-new conversation.
func (h *AgentHandler) SelectAgent(w http.ResponseWriter, r *http.Request) {
	reg, _, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	agentID := chi.URLParam(r, "agentID")
	session, err := reg.SelectAgent(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			Error(w, http.StatusNotFound, "agent not found")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to open session")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"agent":    session.Agent(),
		"messages": session.Transcript(),
	})
}

// GetTranscript returns the conversation history for an agent without
// changing the active selection.
func (h *AgentHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	reg, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	agentID := chi.URLParam(r, "agentID")
	found := false
	for _, a := range reg.Agents() {
		if a.ID == agentID {
			found = true
			break
		}
	}
	if !found {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}
	transcript, err := h.repo.GetTranscript(r.Context(), id, agentID)
	if err != nil {
		h.logger.Error("transcript load failed", "identity", id, "agent_id", agentID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if transcript == nil {
		transcript = domain.Transcript{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": transcript})
}
