package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/averlon/instantagent/internal/backend"
	"github.com/averlon/instantagent/internal/domain"
)

// recordingPersister captures every write-through snapshot.
type recordingPersister struct {
	mu        sync.Mutex
	snapshots []domain.Transcript
	err       error
}

func (p *recordingPersister) PersistTranscript(_ context.Context, _ string, tr domain.Transcript) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, tr.Clone())
	return p.err
}

func (p *recordingPersister) last() domain.Transcript {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil
	}
	return p.snapshots[len(p.snapshots)-1]
}

func testAgent() *domain.Agent {
	return &domain.Agent{
		ID:          "a1",
		DisplayName: "Trip Assistant",
		Goal:        "help me plan a trip to Japan",
		ModelID:     "mistralai/Mixtral-8x7B-Instruct-v0.1",
		Owner:       "alice",
	}
}

func newTestSession(fake *fakeBackend, persister TranscriptPersister) *Session {
	logger := slog.Default()
	classifier := NewClassifier(fake, classifierConfig(), logger)
	delivery := NewDelivery(fake, deliveryConfig(), logger)
	return NewSession(testAgent(), nil, classifier, delivery, persister, logger)
}

func TestSessionSeedsWelcomeOnce(t *testing.T) {
	t.Parallel()

	fake := &fakeBackend{script: []scriptedReply{textReply("I am a chat model")}}
	persister := &recordingPersister{}
	s := newTestSession(fake, persister)

	first := s.EnsureWelcome(context.Background())
	if len(first) != 1 {
		t.Fatalf("Expected 1 seeded message, got %d", len(first))
	}
	if first[0].Sender != domain.SenderAgent {
		t.Error("Expected welcome to be agent-authored")
	}
	if first[0].Text != SynthesizeWelcome(testAgent().Goal, domain.ModelTypeText) {
		t.Errorf("Unexpected welcome text: %q", first[0].Text)
	}

	second := s.EnsureWelcome(context.Background())
	if len(second) != 1 {
		t.Errorf("Expected welcome seeding to be idempotent, got %d messages", len(second))
	}
	if persister.last() == nil {
		t.Error("Expected welcome to be written through")
	}
}

func TestSessionRestoredTranscriptSkipsWelcome(t *testing.T) {
	t.Parallel()

	restored := domain.Transcript{
		{Sender: domain.SenderAgent, Text: "welcome back"},
		{Sender: domain.SenderUser, Text: "hi"},
	}
	fake := &fakeBackend{}
	logger := slog.Default()
	s := NewSession(testAgent(), restored, NewClassifier(fake, classifierConfig(), logger),
		NewDelivery(fake, deliveryConfig(), logger), &recordingPersister{}, logger)

	got := s.EnsureWelcome(context.Background())
	if len(got) != 2 {
		t.Fatalf("Expected restored transcript untouched, got %d messages", len(got))
	}
	if calls := fake.recorded(); len(calls) != 0 {
		t.Errorf("Expected no backend calls for restored transcript, got %d", len(calls))
	}
}

func TestSessionTranscriptAlternates(t *testing.T) {
	t.Parallel()

	fake := &fakeBackend{script: []scriptedReply{
		textReply("I am a chat model"), // classifier probe
		textReply("reply one"),
		textReply("reply two"),
	}}
	persister := &recordingPersister{}
	s := newTestSession(fake, persister)
	s.EnsureWelcome(context.Background())

	for _, text := range []string{"first question", "second question"} {
		if _, err := s.PostUserMessage(context.Background(), text); err != nil {
			t.Fatalf("PostUserMessage(%q) failed: %v", text, err)
		}
	}

	transcript := s.Transcript()
	if len(transcript) != 5 {
		t.Fatalf("Expected welcome + 2 exchanges = 5 messages, got %d", len(transcript))
	}
	wantSenders := []domain.Sender{
		domain.SenderAgent, domain.SenderUser, domain.SenderAgent,
		domain.SenderUser, domain.SenderAgent,
	}
	for i, msg := range transcript {
		if msg.Sender != wantSenders[i] {
			t.Errorf("Message %d: expected sender %s, got %s", i, wantSenders[i], msg.Sender)
		}
	}

	if got := persister.last(); len(got) != 5 {
		t.Errorf("Expected final snapshot written through, got %d messages", len(got))
	}
}

func TestSessionExhaustionAppendsSingleErrorMessage(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	fake := &fakeBackend{script: []scriptedReply{
		textReply("I am a chat model"), // classifier probe
		errorReply(boom), errorReply(boom), errorReply(boom),
	}}
	s := newTestSession(fake, &recordingPersister{})
	s.EnsureWelcome(context.Background())

	reply, err := s.PostUserMessage(context.Background(), "hello?")
	if err != nil {
		t.Fatalf("Expected no error from exhausted delivery, got %v", err)
	}
	if reply.Sender != domain.SenderAgent {
		t.Error("Expected synthesized reply to be agent-authored")
	}

	transcript := s.Transcript()
	if len(transcript) != 3 {
		t.Fatalf("Expected welcome + user + error = 3 messages, got %d", len(transcript))
	}
	if s.Generating() {
		t.Error("Expected generating indicator cleared after exhaustion")
	}
}

func TestSessionRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeBackend{script: []scriptedReply{textReply("chat model")}}, &recordingPersister{})
	if _, err := s.PostUserMessage(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}
}

func TestSessionRejectsConcurrentDelivery(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	fake := &blockingBackend{release: release}
	logger := slog.Default()
	classifier := NewClassifier(fake, classifierConfig(), logger)
	// Pre-warm the classifier cache so the blocked call is the delivery.
	classifier.Classify(context.Background(), "a1")

	s := NewSession(testAgent(), domain.Transcript{{Sender: domain.SenderAgent, Text: "hi"}},
		classifier, NewDelivery(fake, deliveryConfig(), logger), &recordingPersister{}, logger)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := s.PostUserMessage(context.Background(), "slow one")
		done <- err
	}()

	<-started
	waitUntil(t, s.Generating)

	if _, err := s.PostUserMessage(context.Background(), "impatient"); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy while delivery outstanding, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	if s.Generating() {
		t.Error("Expected generating indicator cleared")
	}
}

// blockingBackend answers the classifier probe immediately but holds
// chat deliveries until released.
type blockingBackend struct {
	release <-chan struct{}
	mu      sync.Mutex
	n       int
}

func (b *blockingBackend) ChatAgent(ctx context.Context, agentID, message string) (*backend.ChatResponse, error) {
	b.mu.Lock()
	b.n++
	first := b.n == 1
	b.mu.Unlock()
	if first {
		return &backend.ChatResponse{Choices: []backend.Choice{{Message: backend.ChoiceMessage{Content: "chat model"}}}}, nil
	}
	select {
	case <-b.release:
		return &backend.ChatResponse{Choices: []backend.Choice{{Message: backend.ChoiceMessage{Content: "finally"}}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingBackend) GenerateImage(ctx context.Context, agentID, message string) (*backend.ChatResponse, error) {
	return b.ChatAgent(ctx, agentID, message)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}
