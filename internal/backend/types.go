// Package backend implements the HTTP client for the remote agent
// creation/chat/image service.
package backend

import (
	"encoding/json"
	"strings"
)

// CreateAgentRequest is the body of POST /create-agent.
type CreateAgentRequest struct {
	Goal           string   `json:"goal"`
	Model          string   `json:"model"`
	Tools          []string `json:"tools"`
	UserName       string   `json:"user_name,omitempty"`
	Specialization string   `json:"specialization,omitempty"`
}

// CreateAgentResponse carries the backend-issued agent id. Raw holds the
// untouched response body so extra fields pass through to callers.
type CreateAgentResponse struct {
	AgentID string          `json:"agent_id"`
	Raw     json.RawMessage `json:"-"`
}

// NameRequest is the body of POST /agent-name.
type NameRequest struct {
	Goal string `json:"goal"`
}

// NameResponse is the reply of POST /agent-name.
type NameResponse struct {
	Name string `json:"name"`
}

// ChatRequest is the body of POST /chat-agent and POST /generate-image.
type ChatRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

// ChatResponse is the reply of the conversational and image endpoints.
// The two endpoints disagree on where an image reference lives:
// chat replies put it on the message, image replies under data[0].url.
type ChatResponse struct {
	Choices      []Choice     `json:"choices"`
	IsImageModel bool         `json:"is_image_model"`
	Data         []ImageDatum `json:"data"`
}

// Choice is one reply alternative; the backend returns at most one.
type Choice struct {
	Message ChoiceMessage `json:"message"`
}

// ChoiceMessage is the assistant message inside a choice.
type ChoiceMessage struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

// ImageDatum is an image-generation result entry.
type ImageDatum struct {
	URL string `json:"url"`
}

// ReplyContent returns the reply text, or "" when the response carries
// no usable content. A whitespace-only reply counts as empty.
func (r *ChatResponse) ReplyContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	content := r.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return content
}

// ImageURL extracts an image reference from either known response shape.
func (r *ChatResponse) ImageURL() string {
	if r == nil {
		return ""
	}
	if len(r.Choices) > 0 && r.Choices[0].Message.ImageURL != "" {
		return r.Choices[0].Message.ImageURL
	}
	if len(r.Data) > 0 {
		return r.Data[0].URL
	}
	return ""
}
