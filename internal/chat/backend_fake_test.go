package chat

import (
	"context"
	"sync"

	"github.com/averlon/instantagent/internal/backend"
)

// scriptedCall records one backend invocation.
type scriptedCall struct {
	endpoint string // "chat" or "image"
	agentID  string
	message  string
}

// scriptedReply is what the fake returns for one call, in order.
type scriptedReply struct {
	resp *backend.ChatResponse
	err  error
}

// fakeBackend replays scripted replies and records every call. Once
// the script runs out it keeps returning the last entry.
type fakeBackend struct {
	mu     sync.Mutex
	script []scriptedReply
	calls  []scriptedCall
}

func textReply(content string) scriptedReply {
	return scriptedReply{resp: &backend.ChatResponse{
		Choices: []backend.Choice{{Message: backend.ChoiceMessage{Content: content}}},
	}}
}

func imageReply(content, url string) scriptedReply {
	return scriptedReply{resp: &backend.ChatResponse{
		Choices: []backend.Choice{{Message: backend.ChoiceMessage{Content: content, ImageURL: url}}},
	}}
}

func flaggedImageReply(content string) scriptedReply {
	r := textReply(content)
	r.resp.IsImageModel = true
	return r
}

func emptyReply() scriptedReply {
	return scriptedReply{resp: &backend.ChatResponse{}}
}

func errorReply(err error) scriptedReply {
	return scriptedReply{err: err}
}

func (f *fakeBackend) next(endpoint, agentID, message string) (*backend.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scriptedCall{endpoint: endpoint, agentID: agentID, message: message})

	idx := len(f.calls) - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	if idx < 0 {
		return &backend.ChatResponse{}, nil
	}
	return f.script[idx].resp, f.script[idx].err
}

func (f *fakeBackend) ChatAgent(_ context.Context, agentID, message string) (*backend.ChatResponse, error) {
	return f.next("chat", agentID, message)
}

func (f *fakeBackend) GenerateImage(_ context.Context, agentID, message string) (*backend.ChatResponse, error) {
	return f.next("image", agentID, message)
}

func (f *fakeBackend) recorded() []scriptedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scriptedCall, len(f.calls))
	copy(out, f.calls)
	return out
}
