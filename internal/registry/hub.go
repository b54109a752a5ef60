package registry

import (
	"context"
	"sync"
)

// Hub hands out one Registry per identity for the HTTP surface. Each
// registry is bound once via SwitchUser and reused across requests, so
// concurrent requests from the same identity share roster and
// sessions.
type Hub struct {
	factory func() *Registry

	mu         sync.Mutex
	registries map[string]*Registry
}

func NewHub(factory func() *Registry) *Hub {
	return &Hub{
		factory:    factory,
		registries: make(map[string]*Registry),
	}
}

// ForIdentity returns the registry bound to identity, creating and
// loading it on first use.
func (h *Hub) ForIdentity(ctx context.Context, identity string) (*Registry, error) {
	h.mu.Lock()
	if reg, ok := h.registries[identity]; ok {
		h.mu.Unlock()
		return reg, nil
	}
	h.mu.Unlock()

	reg := h.factory()
	if err := reg.SwitchUser(ctx, identity); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.registries[identity]; ok {
		return existing, nil
	}
	h.registries[identity] = reg
	return reg, nil
}

// Evict drops the cached registry for identity. Sign-out calls this so
// the next sign-in reloads from the store.
func (h *Hub) Evict(identity string) {
	h.mu.Lock()
	delete(h.registries, identity)
	h.mu.Unlock()
}
