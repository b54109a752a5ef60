// Package domain contains core domain types for the InstantAgent application.
package domain

import (
	"strings"
	"time"
)

// ModelType classifies an agent as conversational or image-generating.
type ModelType string

const (
	// ModelTypeText indicates a conversational (chat) agent.
	ModelTypeText ModelType = "text"
	// ModelTypeImage indicates an image-generation agent.
	ModelTypeImage ModelType = "image"
)

// Agent is a named, backend-hosted configuration bound to a model and goal.
// The ID is issued by the backend on creation and is unique within the
// owning identity's registry.
type Agent struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"name"`
	Goal           string    `json:"goal"`
	ModelID        string    `json:"model"`
	ModelName      string    `json:"model_name"`
	Specialization string    `json:"specialization,omitempty"`
	Owner          string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// knownModelNames maps backend model IDs to friendly display names.
var knownModelNames = map[string]string{
	"mistralai/Mixtral-8x7B-Instruct-v0.1":     "Mixtral 8x7B",
	"meta-llama/Llama-2-70b-chat-hf":           "Llama-2 70B",
	"togethercomputer/llama-2-7b-chat":         "Llama-2 7B",
	"google/gemma-7b-it":                       "Gemma 7B",
	"stabilityai/stable-diffusion-xl-base-1.0": "Stable Diffusion XL",
	"mistralai/Mistral-7B-Instruct-v0.2":       "Mistral 7B",
}

// ModelOption pairs a backend model ID with its friendly name for
// selection surfaces.
type ModelOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// knownModelOrder fixes the presentation order of the model catalog.
var knownModelOrder = []string{
	"mistralai/Mixtral-8x7B-Instruct-v0.1",
	"meta-llama/Llama-2-70b-chat-hf",
	"togethercomputer/llama-2-7b-chat",
	"google/gemma-7b-it",
	"mistralai/Mistral-7B-Instruct-v0.2",
	"stabilityai/stable-diffusion-xl-base-1.0",
}

// KnownModels returns the selectable model catalog in display order.
func KnownModels() []ModelOption {
	out := make([]ModelOption, 0, len(knownModelOrder))
	for _, id := range knownModelOrder {
		out = append(out, ModelOption{ID: id, Name: knownModelNames[id]})
	}
	return out
}

// FriendlyModelName derives a display name from a backend model ID.
// Unknown IDs fall back to the last path segment of the ID.
func FriendlyModelName(modelID string) string {
	if name, ok := knownModelNames[modelID]; ok {
		return name
	}
	if idx := strings.LastIndexByte(modelID, '/'); idx >= 0 && idx+1 < len(modelID) {
		return modelID[idx+1:]
	}
	return modelID
}
