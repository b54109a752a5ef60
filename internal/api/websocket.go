package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/averlon/instantagent/internal/chat"
	"github.com/averlon/instantagent/internal/domain"
	"github.com/averlon/instantagent/internal/identity"
	"github.com/averlon/instantagent/internal/registry"
)

// WebSocketHandler serves a chat session over a WebSocket so the
// frontend can show the generating indicator without polling.
type WebSocketHandler struct {
	*Handler
	allowedOrigin string
}

func NewWebSocketHandler(base *Handler, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{Handler: base, allowedOrigin: allowedOrigin}
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/agents/{agentID}/ws", h.ServeChat)
}

// wsInbound is a client frame.
type wsInbound struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// wsOutbound is a server frame. History frames carry the transcript,
// message frames a single appended message, state frames the
// generating indicator.
type wsOutbound struct {
	Type       string            `json:"type"`
	Message    *domain.Message   `json:"message,omitempty"`
	Messages   domain.Transcript `json:"messages,omitempty"`
	Generating bool              `json:"generating,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ServeChat upgrades to a WebSocket and relays messages for one agent.
func (h *WebSocketHandler) ServeChat(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == "" {
		Error(w, http.StatusUnauthorized, "sign in first")
		return
	}
	if !h.checkOrigin(r) {
		Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	reg, err := h.hub.ForIdentity(r.Context(), id)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load your agents")
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

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "identity", id)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "identity", id)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Replay the transcript so the client can render immediately.
	h.writeFrame(ctx, ws, wsOutbound{Type: "history", Messages: session.Transcript()})

	h.readLoop(ctx, ws, session, id, agentID)
	h.logger.Info("chat websocket ended", "identity", id, "agent_id", agentID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, session *chat.Session, id, agentID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "identity", id)
			} else if ctx.Err() == nil {
				h.logger.Warn("websocket read error", "error", err, "identity", id)
			}
			return
		}

		var frame wsInbound
		if err := json.Unmarshal(data, &frame); err != nil {
			h.writeFrame(ctx, ws, wsOutbound{Type: "error", Error: "invalid frame"})
			continue
		}

		switch frame.Type {
		case "ping":
			h.writeFrame(ctx, ws, wsOutbound{Type: "pong"})
		case "message":
			h.handleMessage(ctx, ws, session, id, agentID, frame.Message)
		default:
			h.writeFrame(ctx, ws, wsOutbound{Type: "error", Error: "unknown frame type"})
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, ws *websocket.Conn, session *chat.Session, id, agentID, text string) {
	if !h.limiter.Allow(id) {
		h.writeFrame(ctx, ws, wsOutbound{Type: "error", Error: "rate limit exceeded"})
		return
	}

	h.convlog.Log(chat.ConversationLogEvent{
		Identity:   id,
		AgentID:    agentID,
		Channel:    "chat_ws",
		Direction:  "inbound",
		EventType:  "user_message",
		ContentRaw: text,
	})

	h.writeFrame(ctx, ws, wsOutbound{Type: "state", Generating: true})
	reply, err := session.PostUserMessage(ctx, text)
	h.writeFrame(ctx, ws, wsOutbound{Type: "state", Generating: false})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			h.writeFrame(ctx, ws, wsOutbound{Type: "error", Error: "message must not be empty"})
		case errors.Is(err, chat.ErrBusy):
			h.writeFrame(ctx, ws, wsOutbound{Type: "error", Error: "a reply is still being generated"})
		default:
			h.logger.Error("websocket delivery failed", "identity", id, "agent_id", agentID, "error", err)
			h.writeFrame(ctx, ws, wsOutbound{Type: "error", Error: "failed to deliver message"})
		}
		return
	}

	h.convlog.Log(chat.ConversationLogEvent{
		Identity:   id,
		AgentID:    agentID,
		Channel:    "chat_ws",
		Direction:  "outbound",
		EventType:  "agent_reply",
		ContentRaw: reply.Text,
		Meta:       map[string]any{"image_url": reply.ImageURL},
	})
	h.writeFrame(ctx, ws, wsOutbound{Type: "message", Message: &reply})
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, frame wsOutbound) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Warn("failed to marshal websocket frame", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("websocket write error", "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
