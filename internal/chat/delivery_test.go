package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/averlon/instantagent/internal/config"
	"github.com/averlon/instantagent/internal/domain"
)

func deliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		AttemptTimeout: time.Second,
		RetryDelay:     time.Millisecond,
		MaxAttempts:    3,
	}
}

func TestSendDeliversOnFirstAttempt(t *testing.T) {
	t.Parallel()

	fake := &fakeBackend{script: []scriptedReply{textReply("hello there")}}
	d := NewDelivery(fake, deliveryConfig(), slog.Default())

	res := d.Send(context.Background(), "a1", domain.ModelTypeText, "hi")
	if res.State != StateDelivered {
		t.Fatalf("Expected delivered, got %s", res.State)
	}
	if res.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", res.Attempts)
	}
	if res.Message.Sender != domain.SenderAgent || res.Message.Text != "hello there" {
		t.Errorf("Unexpected message: %+v", res.Message)
	}
}

func TestSendRetriesUntilValidResponse(t *testing.T) {
	t.Parallel()

	fake := &fakeBackend{script: []scriptedReply{
		emptyReply(),
		emptyReply(),
		textReply("third time lucky"),
	}}
	d := NewDelivery(fake, deliveryConfig(), slog.Default())

	res := d.Send(context.Background(), "a1", domain.ModelTypeText, "original text")
	if res.State != StateDelivered {
		t.Fatalf("Expected delivered, got %s", res.State)
	}
	if res.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", res.Attempts)
	}
	if res.Message.Text != "third time lucky" {
		t.Errorf("Expected content from attempt 3, got %q", res.Message.Text)
	}

	calls := fake.recorded()
	if len(calls) != 3 {
		t.Fatalf("Expected 3 backend calls, got %d", len(calls))
	}
	for i, call := range calls {
		if call.message != "original text" {
			t.Errorf("Attempt %d resent %q, expected original text unchanged", i+1, call.message)
		}
		if call.endpoint != "chat" {
			t.Errorf("Attempt %d used %s endpoint", i+1, call.endpoint)
		}
	}
}

func TestSendExhaustionYieldsErrorMessage(t *testing.T) {
	t.Parallel()

	fake := &fakeBackend{script: []scriptedReply{
		errorReply(errors.New("connection refused")),
		emptyReply(),
		errorReply(errors.New("timeout")),
	}}
	d := NewDelivery(fake, deliveryConfig(), slog.Default())

	res := d.Send(context.Background(), "a1", domain.ModelTypeText, "hi")
	if res.State != StateExhausted {
		t.Fatalf("Expected exhausted, got %s", res.State)
	}
	if res.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", res.Attempts)
	}
	if res.Message.Sender != domain.SenderAgent {
		t.Error("Expected synthesized message to be agent-authored")
	}
	if !strings.Contains(res.Message.Text, "Error") {
		t.Errorf("Expected visible error text, got %q", res.Message.Text)
	}
}

func TestSendRoutesImageModelsToImageEndpoint(t *testing.T) {
	t.Parallel()

	fake := &fakeBackend{script: []scriptedReply{imageReply("", "https://img.example/cat.png")}}
	d := NewDelivery(fake, deliveryConfig(), slog.Default())

	res := d.Send(context.Background(), "a1", domain.ModelTypeImage, "a cat")
	if res.State != StateDelivered {
		t.Fatalf("Expected delivered, got %s", res.State)
	}
	if res.Message.ImageURL != "https://img.example/cat.png" {
		t.Errorf("Expected image url attached, got %q", res.Message.ImageURL)
	}
	if res.Message.Text == "" {
		t.Error("Expected placeholder text for image-only reply")
	}

	calls := fake.recorded()
	if len(calls) != 1 || calls[0].endpoint != "image" {
		t.Errorf("Expected one call to image endpoint, got %+v", calls)
	}
}

func TestSendStateStrings(t *testing.T) {
	t.Parallel()

	want := map[DeliveryState]string{
		StatePending:   "pending",
		StateSent:      "sent",
		StateRetrying:  "retrying",
		StateDelivered: "delivered",
		StateExhausted: "exhausted",
	}
	for state, s := range want {
		if state.String() != s {
			t.Errorf("Expected %q, got %q", s, state.String())
		}
	}
}
