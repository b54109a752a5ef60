package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/averlon/instantagent/internal/domain"
)

var (
	// ErrBusy means a delivery is already in flight for this session.
	ErrBusy = errors.New("a message is already being delivered")
	// ErrEmptyMessage rejects whitespace-only input before it reaches
	// the transcript.
	ErrEmptyMessage = errors.New("message is empty")
)

// TranscriptPersister receives write-through transcript snapshots.
// Persistence failures are logged and swallowed; the in-memory
// conversation stays authoritative for the life of the session.
type TranscriptPersister interface {
	PersistTranscript(ctx context.Context, agentID string, transcript domain.Transcript) error
}

// Session is the live conversation with one agent. A session holds the
// authoritative transcript in memory, guards against concurrent
// deliveries, and writes every mutation through to the persister.
type Session struct {
	agent      *domain.Agent
	classifier *Classifier
	delivery   *Delivery
	persister  TranscriptPersister
	logger     *slog.Logger

	mu         sync.Mutex
	transcript domain.Transcript
	generating bool
}

// NewSession wraps agent with its restored transcript. Pass a nil or
// empty transcript for a brand-new agent; EnsureWelcome seeds it.
func NewSession(agent *domain.Agent, restored domain.Transcript, classifier *Classifier, delivery *Delivery, persister TranscriptPersister, logger *slog.Logger) *Session {
	return &Session{
		agent:      agent,
		classifier: classifier,
		delivery:   delivery,
		persister:  persister,
		logger:     logger,
		transcript: restored.Clone(),
	}
}

func (s *Session) Agent() *domain.Agent { return s.agent }

// Transcript returns a snapshot of the conversation so far.
func (s *Session) Transcript() domain.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Clone()
}

// Generating reports whether a delivery is currently in flight.
func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// ModelType classifies the session's agent, answering from the
// classifier cache after the first probe.
func (s *Session) ModelType(ctx context.Context) domain.ModelType {
	return s.classifier.Classify(ctx, s.agent.ID)
}

// EnsureWelcome seeds the opening agent greeting into an empty
// transcript. A restored conversation is left untouched.
func (s *Session) EnsureWelcome(ctx context.Context) domain.Transcript {
	s.mu.Lock()
	if len(s.transcript) > 0 {
		snapshot := s.transcript.Clone()
		s.mu.Unlock()
		return snapshot
	}
	s.mu.Unlock()

	// Classification happens outside the lock: it may hit the network.
	modelType := s.classifier.Classify(ctx, s.agent.ID)
	welcome := domain.Message{
		Sender: domain.SenderAgent,
		Text:   SynthesizeWelcome(s.agent.Goal, modelType),
	}

	s.mu.Lock()
	if len(s.transcript) == 0 {
		s.transcript = append(s.transcript, welcome)
	}
	snapshot := s.transcript.Clone()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return snapshot
}

// PostUserMessage appends text to the transcript, delivers it to the
// agent, and returns the agent's reply. The user message lands in the
// transcript before the delivery starts, so a crash mid-delivery never
// loses what the user typed. Only one delivery may be outstanding;
// further calls fail with ErrBusy until the reply is appended.
func (s *Session) PostUserMessage(ctx context.Context, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return domain.Message{}, ErrBusy
	}
	s.generating = true
	s.transcript = append(s.transcript, domain.Message{Sender: domain.SenderUser, Text: text})
	snapshot := s.transcript.Clone()
	s.mu.Unlock()

	s.persist(ctx, snapshot)

	modelType := s.classifier.Classify(ctx, s.agent.ID)
	result := s.delivery.Send(ctx, s.agent.ID, modelType, text)

	s.mu.Lock()
	s.transcript = append(s.transcript, result.Message)
	snapshot = s.transcript.Clone()
	s.generating = false
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return result.Message, nil
}

func (s *Session) persist(ctx context.Context, snapshot domain.Transcript) {
	if s.persister == nil {
		return
	}
	if err := s.persister.PersistTranscript(ctx, s.agent.ID, snapshot); err != nil {
		s.logger.Warn("transcript persistence failed, conversation continues in memory",
			"agent_id", s.agent.ID, "error", err)
	}
}
