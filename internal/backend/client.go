package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrUnavailable means no response reached us at all (connection
	// refused, DNS failure, transport-level timeout).
	ErrUnavailable = errors.New("backend unavailable")
	// ErrRejected means the backend answered with a non-success status
	// or a response that fails validation.
	ErrRejected = errors.New("backend rejected request")
)

const maxErrorBodyBytes = 2048

// Client talks to the agent backend over its HTTP/JSON contract.
// Per-call deadlines come from the caller's context; the embedded
// http.Client carries no timeout of its own so cancellation stays in
// the caller's hands.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Ping probes GET / once. Used at startup to surface a connectivity
// warning; failure is non-fatal for the caller.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("build liveness request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer drainAndClose(resp.Body, c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: liveness status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

// CreateAgent calls POST /create-agent. A response without an agent_id
// is a creation failure even on a 2xx status.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (*CreateAgentResponse, error) {
	if req.Tools == nil {
		req.Tools = []string{}
	}

	body, err := c.post(ctx, "/create-agent", req)
	if err != nil {
		return nil, err
	}

	out := &CreateAgentResponse{Raw: body}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("%w: malformed create response: %w", ErrRejected, err)
	}
	if out.AgentID == "" {
		return nil, fmt.Errorf("%w: create response missing agent_id", ErrRejected)
	}
	return out, nil
}

// GenerateName calls POST /agent-name. Callers bound it with their own
// deadline; it is a best-effort naming hint only.
func (c *Client) GenerateName(ctx context.Context, goal string) (string, error) {
	body, err := c.post(ctx, "/agent-name", NameRequest{Goal: goal})
	if err != nil {
		return "", err
	}

	var out NameResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: malformed name response: %w", ErrRejected, err)
	}
	if out.Name == "" {
		return "", fmt.Errorf("%w: name response empty", ErrRejected)
	}
	return out.Name, nil
}

// ChatAgent calls POST /chat-agent, the conversational endpoint.
func (c *Client) ChatAgent(ctx context.Context, agentID, message string) (*ChatResponse, error) {
	return c.chatShaped(ctx, "/chat-agent", agentID, message)
}

// GenerateImage calls POST /generate-image. The request shape matches
// the chat endpoint; the response may carry the image under data[0].url.
func (c *Client) GenerateImage(ctx context.Context, agentID, message string) (*ChatResponse, error) {
	return c.chatShaped(ctx, "/generate-image", agentID, message)
}

func (c *Client) chatShaped(ctx context.Context, path, agentID, message string) (*ChatResponse, error) {
	body, err := c.post(ctx, path, ChatRequest{AgentID: agentID, Message: message})
	if err != nil {
		return nil, err
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed chat response: %w", ErrRejected, err)
	}
	return &out, nil
}

// post sends a JSON body and returns the raw response bytes. Transport
// failures map to ErrUnavailable, non-2xx statuses to ErrRejected.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	defer drainAndClose(resp.Body, c.logger)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %w", ErrUnavailable, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(body)
		if len(detail) > maxErrorBodyBytes {
			detail = detail[:maxErrorBodyBytes]
		}
		return nil, fmt.Errorf("%w: %s status %d: %s", ErrRejected, path, resp.StatusCode, detail)
	}
	return body, nil
}

func drainAndClose(body io.ReadCloser, logger *slog.Logger) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		logger.Debug("failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		logger.Debug("failed to close response body", "error", err)
	}
}
