// Package registry owns the agent roster for one user identity:
// creation against the backend, naming, selection, deletion, and
// write-through persistence of agents and transcripts.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/averlon/instantagent/internal/backend"
	"github.com/averlon/instantagent/internal/chat"
	"github.com/averlon/instantagent/internal/config"
	"github.com/averlon/instantagent/internal/domain"
	"github.com/averlon/instantagent/internal/store"
)

// ErrNotFound means the referenced agent id is not in the registry.
var ErrNotFound = errors.New("agent not found")

// ErrNoUser means no identity has been bound yet via SwitchUser.
var ErrNoUser = errors.New("no user identity bound")

// AgentBackend is the slice of the backend client the registry uses.
type AgentBackend interface {
	CreateAgent(ctx context.Context, req backend.CreateAgentRequest) (*backend.CreateAgentResponse, error)
	GenerateName(ctx context.Context, goal string) (string, error)
}

// Registry is the working copy of one user's agents. The store stays
// authoritative across restarts; the registry writes every mutation
// through and reloads wholesale on SwitchUser.
type Registry struct {
	store      store.Repository
	backend    AgentBackend
	classifier *chat.Classifier
	delivery   *chat.Delivery
	naming     config.NamingConfig
	logger     *slog.Logger

	mu       sync.Mutex
	identity string
	agents   []*domain.Agent
	activeID string
	sessions map[string]*chat.Session
}

func New(repo store.Repository, b AgentBackend, classifier *chat.Classifier, delivery *chat.Delivery, naming config.NamingConfig, logger *slog.Logger) *Registry {
	return &Registry{
		store:      repo,
		backend:    b,
		classifier: classifier,
		delivery:   delivery,
		naming:     naming,
		logger:     logger,
		sessions:   make(map[string]*chat.Session),
	}
}

// SwitchUser rebinds the registry to identity, discarding every live
// session and selection and reloading the persisted roster. Agents of
// the previous identity stay in the store untouched.
func (r *Registry) SwitchUser(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return fmt.Errorf("identity must not be empty")
	}

	now := time.Now().UTC()
	if err := r.store.UpsertUser(ctx, &domain.User{
		Identity:  identity,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to record user: %w", err)
	}
	agents, err := r.store.LoadRegistry(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to load registry for %q: %w", identity, err)
	}

	r.mu.Lock()
	r.identity = identity
	r.agents = agents
	r.activeID = ""
	r.sessions = make(map[string]*chat.Session)
	r.mu.Unlock()

	r.logger.Info("switched user", "identity", identity, "agents", len(agents))
	return nil
}

// Identity returns the currently bound identity, empty before the
// first SwitchUser.
func (r *Registry) Identity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity
}

// CreateAgent provisions an agent on the backend, names it, appends it
// to the roster, and persists it. Backend failure propagates to the
// caller; an agent that could not be created remotely is never added
// locally.
func (r *Registry) CreateAgent(ctx context.Context, goal, modelID, specialization string, tools []string) (*domain.Agent, error) {
	r.mu.Lock()
	identity := r.identity
	r.mu.Unlock()
	if identity == "" {
		return nil, ErrNoUser
	}

	resp, err := r.backend.CreateAgent(ctx, backend.CreateAgentRequest{
		Goal:           goal,
		Model:          modelID,
		Tools:          tools,
		UserName:       identity,
		Specialization: specialization,
	})
	if err != nil {
		return nil, fmt.Errorf("agent creation failed: %w", err)
	}

	agent := &domain.Agent{
		ID:             resp.AgentID,
		DisplayName:    r.resolveDisplayName(ctx, goal, specialization),
		Goal:           goal,
		ModelID:        modelID,
		ModelName:      domain.FriendlyModelName(modelID),
		Specialization: specialization,
		Owner:          identity,
		CreatedAt:      time.Now().UTC(),
	}

	// Store errors are soft: the roster stays usable in memory and the
	// next successful write catches up.
	if err := r.store.SaveAgent(ctx, agent); err != nil {
		r.logger.Warn("failed to persist new agent", "agent_id", agent.ID, "error", err)
	}

	r.mu.Lock()
	r.agents = append(r.agents, agent)
	r.mu.Unlock()

	r.logger.Info("agent created",
		"agent_id", agent.ID, "name", agent.DisplayName, "model", agent.ModelID, "identity", identity)
	return agent, nil
}

// resolveDisplayName asks the backend naming service under a bounded
// deadline and falls back to a deterministic local rule.
func (r *Registry) resolveDisplayName(ctx context.Context, goal, specialization string) string {
	nameCtx, cancel := context.WithTimeout(ctx, r.naming.Timeout)
	defer cancel()

	name, err := r.backend.GenerateName(nameCtx, goal)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			r.logger.Warn("name generation failed, using local fallback", "error", err)
		}
		return localDisplayName(goal, specialization)
	}
	if specialization != "" {
		return fmt.Sprintf("%s (%s)", strings.TrimSpace(name), specialization)
	}
	return strings.TrimSpace(name)
}

// localDisplayName capitalizes the first word of the goal and appends
// "Assistant", with the specialization in parentheses when present.
func localDisplayName(goal, specialization string) string {
	word := "AI"
	if fields := strings.Fields(goal); len(fields) > 0 {
		word = capitalize(fields[0])
	}
	name := word + " Assistant"
	if specialization != "" {
		name = fmt.Sprintf("%s (%s)", name, specialization)
	}
	return name
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Agents returns the roster in creation order.
func (r *Registry) Agents() []*domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// ActiveAgent returns the currently selected agent, nil when none is
// selected.
func (r *Registry) ActiveAgent() *domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(r.activeID)
}

// SelectAgent makes id the active agent and returns its session,
// restoring the persisted transcript or seeding a welcome into a
// fresh one. Selecting an unknown id fails with ErrNotFound.
func (r *Registry) SelectAgent(ctx context.Context, id string) (*chat.Session, error) {
	r.mu.Lock()
	agent := r.findLocked(id)
	if agent == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.activeID = id
	session, ok := r.sessions[id]
	identity := r.identity
	r.mu.Unlock()

	if ok {
		return session, nil
	}

	transcript, err := r.store.GetTranscript(ctx, identity, id)
	if err != nil {
		r.logger.Warn("failed to load transcript, starting fresh",
			"agent_id", id, "error", err)
		transcript = nil
	}

	session = chat.NewSession(agent, transcript, r.classifier, r.delivery, r, r.logger)
	session.EnsureWelcome(ctx)

	r.mu.Lock()
	// Another caller may have raced the session in; keep the first.
	if existing, ok := r.sessions[id]; ok {
		session = existing
	} else {
		r.sessions[id] = session
	}
	r.mu.Unlock()
	return session, nil
}

// ActiveSession returns the session for the active agent, nil when no
// agent is selected or its session has not been opened yet.
func (r *Registry) ActiveSession() *chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[r.activeID]
}

// DeleteAgent removes id from the roster and cascades to its
// transcript, session, and cached classification. Deleting an unknown
// id is a no-op. Clearing the active selection happens when the
// deleted agent was active.
func (r *Registry) DeleteAgent(ctx context.Context, id string) error {
	r.mu.Lock()
	identity := r.identity
	found := false
	kept := r.agents[:0]
	for _, a := range r.agents {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	r.agents = kept
	delete(r.sessions, id)
	if r.activeID == id {
		r.activeID = ""
	}
	r.mu.Unlock()

	if !found {
		return nil
	}

	r.classifier.Forget(id)
	if err := r.store.DeleteAgent(ctx, identity, id); err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", id, err)
	}
	r.logger.Info("agent deleted", "agent_id", id, "identity", identity)
	return nil
}

// PersistTranscript satisfies chat.TranscriptPersister: sessions write
// every transcript mutation through here.
func (r *Registry) PersistTranscript(ctx context.Context, agentID string, transcript domain.Transcript) error {
	r.mu.Lock()
	identity := r.identity
	r.mu.Unlock()
	if identity == "" {
		return ErrNoUser
	}
	return r.store.SaveTranscript(ctx, identity, agentID, transcript)
}

func (r *Registry) findLocked(id string) *domain.Agent {
	if id == "" {
		return nil
	}
	for _, a := range r.agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}
