package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/averlon/instantagent/internal/chat"
	"github.com/averlon/instantagent/internal/identity"
	"github.com/averlon/instantagent/internal/registry"
)

// ChatHandler serves message delivery over plain HTTP.
type ChatHandler struct {
	*Handler
}

func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/agents/{agentID}/chat", h.PostMessage)
}

type chatRequest struct {
	Message string `json:"message"`
}

// PostMessage delivers one user message and returns the agent's reply.
// The reply is always a message; delivery failures surface as an
// agent-authored error text, not an HTTP error.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	reg, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	if !h.limiter.Allow(id) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req chatRequest
	if !decodeBody(w, r, &req) {
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

	h.convlog.Log(chat.ConversationLogEvent{
		Identity:   id,
		AgentID:    agentID,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "user_message",
		ContentRaw: req.Message,
		Meta:       map[string]any{"remote_ip": identity.IPFromRequest(r)},
	})

	reply, err := session.PostUserMessage(r.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			Error(w, http.StatusBadRequest, "message must not be empty")
		case errors.Is(err, chat.ErrBusy):
			Error(w, http.StatusConflict, "a reply is still being generated")
		default:
			h.logger.Error("message delivery failed", "identity", id, "agent_id", agentID, "error", err)
			Error(w, http.StatusInternalServerError, "failed to deliver message")
		}
		return
	}

	h.convlog.Log(chat.ConversationLogEvent{
		Identity:   id,
		AgentID:    agentID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "agent_reply",
		ContentRaw: reply.Text,
		Meta:       map[string]any{"image_url": reply.ImageURL},
	})

	JSON(w, http.StatusOK, map[string]interface{}{
		"message":  reply,
		"messages": session.Transcript(),
	})
}
