// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/averlon/instantagent/internal/domain"
)

// Repository defines the durable key/value storage the registry and chat
// sessions write through. All records are partitioned by user identity;
// a partition is loadable by identity alone.
type Repository interface {
	// GetUser retrieves a user record by identity. Returns nil, nil
	// when the identity has never been seen.
	GetUser(ctx context.Context, identity string) (*domain.User, error)

	// UpsertUser creates or refreshes a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// LoadRegistry returns the ordered agent list persisted under identity.
	// An identity with no agents yields an empty slice, not an error.
	LoadRegistry(ctx context.Context, identity string) ([]*domain.Agent, error)

	// SaveAgent appends an agent to its owner's registry, preserving
	// creation order across restarts.
	SaveAgent(ctx context.Context, agent *domain.Agent) error

	// DeleteAgent removes an agent and cascades to its transcript.
	// Deleting an unknown id is a no-op.
	DeleteAgent(ctx context.Context, identity, agentID string) error

	// GetTranscript returns the transcript persisted for an agent, or
	// nil when none has been written yet.
	GetTranscript(ctx context.Context, identity, agentID string) (domain.Transcript, error)

	// SaveTranscript replaces the whole transcript for an agent
	// (last-writer-wins at transcript granularity).
	SaveTranscript(ctx context.Context, identity, agentID string, t domain.Transcript) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
