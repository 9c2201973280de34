package model

import (
	"fmt"
	"sync"
)

// Registry maps a provider name (as it appears in a DSL `model <name> =
// <provider/model>` declaration's provider half) to the constructed
// Client the config package built for it. Workflows here are discovered
// and loaded at process start, so the provider→client wiring happens
// once, at runtime, rather than being baked into generated source.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register installs the Client to use for a provider name. A second
// registration for the same provider overwrites the first, letting an
// optional CLI model override (<provider/model>) replace the
// configured default.
func (r *Registry) Register(provider string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = c
}

// RegisterLimited installs c wrapped in limiter's adaptive
// tokens-per-minute gate, so every completion/stream call for provider
// is rate-limited before it reaches the underlying client.
func (r *Registry) RegisterLimited(provider string, c Client, limiter *AdaptiveRateLimiter) {
	r.Register(provider, limiter.Middleware(c))
}

// ModelClient implements agentrunner.ModelResolver.
func (r *Registry) ModelClient(provider string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[provider]
	return c, ok
}

// MustModelClient is a convenience used at workload-construction time,
// where a missing provider is a configuration error worth failing fast
// on rather than deferring to the first turn that needs it.
func (r *Registry) MustModelClient(provider string) (Client, error) {
	c, ok := r.ModelClient(provider)
	if !ok {
		return nil, fmt.Errorf("model: no client registered for provider %q", provider)
	}
	return c, nil
}
