package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/averlon/instantagent/internal/backend"
	"github.com/averlon/instantagent/internal/config"
	"github.com/averlon/instantagent/internal/domain"
)

// diagnosticPrompt is sent once per agent to discover whether it
// produces text or images.
const diagnosticPrompt = "What kind of model are you?"

// imageMarkers are the substrings in a diagnostic reply that mark
// an image model when the backend omits its explicit flag.
var imageMarkers = []string{"image generation", "stable diffusion"}

// Conversationalist is the slice of the backend client the chat layer
// needs. *backend.Client satisfies it; tests substitute fakes.
type Conversationalist interface {
	ChatAgent(ctx context.Context, agentID, message string) (*backend.ChatResponse, error)
	GenerateImage(ctx context.Context, agentID, message string) (*backend.ChatResponse, error)
}

// Classifier probes agents for their model type and caches the answer
// for its own lifetime. The cache is never persisted, so every process
// start re-probes.
type Classifier struct {
	backend Conversationalist
	cfg     config.ClassifierConfig
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]domain.ModelType
}

func NewClassifier(b Conversationalist, cfg config.ClassifierConfig, logger *slog.Logger) *Classifier {
	return &Classifier{
		backend: b,
		cfg:     cfg,
		logger:  logger,
		cache:   make(map[string]domain.ModelType),
	}
}

// Classify returns the model type for agentID, probing the backend on
// the first call and answering from cache afterwards. Classification
// never fails: when every probe attempt errors out or returns an
// unusable reply, the agent is treated as a text model.
func (c *Classifier) Classify(ctx context.Context, agentID string) domain.ModelType {
	c.mu.Lock()
	if mt, ok := c.cache[agentID]; ok {
		c.mu.Unlock()
		return mt
	}
	c.mu.Unlock()

	mt := c.probe(ctx, agentID)

	c.mu.Lock()
	c.cache[agentID] = mt
	c.mu.Unlock()
	return mt
}

// Forget drops the cached answer for agentID. Used when an agent is
// deleted so a recycled ID cannot inherit a stale type.
func (c *Classifier) Forget(agentID string) {
	c.mu.Lock()
	delete(c.cache, agentID)
	c.mu.Unlock()
}

func (c *Classifier) probe(ctx context.Context, agentID string) domain.ModelType {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		mt, ok := c.probeOnce(ctx, agentID, attempt)
		if ok {
			return mt
		}
		if attempt < c.cfg.MaxAttempts {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				c.logger.Warn("classification canceled, assuming text model", "agent_id", agentID)
				return domain.ModelTypeText
			}
		}
	}
	c.logger.Warn("classification exhausted, assuming text model",
		"agent_id", agentID, "attempts", c.cfg.MaxAttempts)
	return domain.ModelTypeText
}

func (c *Classifier) probeOnce(ctx context.Context, agentID string, attempt int) (domain.ModelType, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.backend.ChatAgent(probeCtx, agentID, diagnosticPrompt)
	if err != nil {
		c.logger.Warn("classification probe failed",
			"agent_id", agentID, "attempt", attempt, "error", err)
		return domain.ModelTypeText, false
	}

	// The explicit flag wins when present; a reply without it falls
	// back to substring matching on the diagnostic answer.
	if resp.IsImageModel {
		return domain.ModelTypeImage, true
	}
	reply := resp.ReplyContent()
	if reply == "" {
		c.logger.Warn("classification probe returned empty reply",
			"agent_id", agentID, "attempt", attempt)
		return domain.ModelTypeText, false
	}
	lower := strings.ToLower(reply)
	for _, marker := range imageMarkers {
		if strings.Contains(lower, marker) {
			return domain.ModelTypeImage, true
		}
	}
	return domain.ModelTypeText, true
}
