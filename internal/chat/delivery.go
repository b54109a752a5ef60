package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/averlon/instantagent/internal/config"
	"github.com/averlon/instantagent/internal/domain"
)

// exhaustedReply is the agent-authored message a conversation receives
// when every delivery attempt fails. Deliveries surface failure as
// transcript content, never as an error to the caller.
const exhaustedReply = "❓ Error: Failed to communicate with agent. Please try again in a moment."

// DeliveryState tracks one outbound message through its lifecycle.
type DeliveryState int

const (
	StatePending DeliveryState = iota
	StateSent
	StateRetrying
	StateDelivered
	StateExhausted
)

func (s DeliveryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSent:
		return "sent"
	case StateRetrying:
		return "retrying"
	case StateDelivered:
		return "delivered"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// DeliveryResult is the terminal outcome of a Send: the agent message
// to append to the transcript, the state it ended in, and how many
// attempts were spent.
type DeliveryResult struct {
	Message  domain.Message
	State    DeliveryState
	Attempts int
}

// Delivery pushes user messages to the backend with bounded retries.
// Attempts are strictly sequential: each one runs under its own
// timeout and is canceled before the next begins, so a late completion
// can never race a retry.
type Delivery struct {
	backend Conversationalist
	cfg     config.DeliveryConfig
	logger  *slog.Logger
}

func NewDelivery(b Conversationalist, cfg config.DeliveryConfig, logger *slog.Logger) *Delivery {
	return &Delivery{backend: b, cfg: cfg, logger: logger}
}

// Send delivers text to agentID, retrying the unchanged payload up to
// the configured attempt count. Image agents route to the image
// endpoint, text agents to chat. The returned message is always
// usable: on exhaustion it carries a synthesized error reply.
func (d *Delivery) Send(ctx context.Context, agentID string, modelType domain.ModelType, text string) DeliveryResult {
	deliveryID := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendBudget())
	defer cancel()

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		msg, ok := d.attemptOnce(ctx, deliveryID, agentID, modelType, text, attempt)
		if ok {
			d.logger.Info("message delivered",
				"delivery_id", deliveryID, "agent_id", agentID, "attempts", attempt)
			return DeliveryResult{Message: msg, State: StateDelivered, Attempts: attempt}
		}
		if attempt < d.cfg.MaxAttempts {
			select {
			case <-time.After(d.cfg.RetryDelay):
			case <-ctx.Done():
				return d.exhausted(deliveryID, agentID, attempt)
			}
		}
	}

	return d.exhausted(deliveryID, agentID, d.cfg.MaxAttempts)
}

func (d *Delivery) attemptOnce(ctx context.Context, deliveryID, agentID string, modelType domain.ModelType, text string, attempt int) (domain.Message, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	var (
		resp interface {
			ReplyContent() string
			ImageURL() string
		}
		err error
	)
	switch modelType {
	case domain.ModelTypeImage:
		resp, err = d.backend.GenerateImage(attemptCtx, agentID, text)
	default:
		resp, err = d.backend.ChatAgent(attemptCtx, agentID, text)
	}
	if err != nil {
		d.logger.Warn("delivery attempt failed",
			"delivery_id", deliveryID, "agent_id", agentID, "attempt", attempt, "error", err)
		return domain.Message{}, false
	}

	content := resp.ReplyContent()
	imageURL := resp.ImageURL()
	if content == "" && imageURL == "" {
		d.logger.Warn("delivery attempt returned empty reply",
			"delivery_id", deliveryID, "agent_id", agentID, "attempt", attempt)
		return domain.Message{}, false
	}
	if content == "" {
		content = "Here is your image:"
	}
	return domain.Message{Sender: domain.SenderAgent, Text: content, ImageURL: imageURL}, true
}

func (d *Delivery) exhausted(deliveryID, agentID string, attempts int) DeliveryResult {
	d.logger.Error("delivery exhausted",
		"delivery_id", deliveryID, "agent_id", agentID, "attempts", attempts)
	return DeliveryResult{
		Message:  domain.Message{Sender: domain.SenderAgent, Text: exhaustedReply},
		State:    StateExhausted,
		Attempts: attempts,
	}
}
