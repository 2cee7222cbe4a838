// Package dispatch implements the automatic service distribution policy:
// finalizing a service releases its agent and closes the service record,
// and per-tenant timeout configuration is resolved from here.
package dispatch

import (
	"sync"

	"github.com/renxuetao/cskefu/internal/types"
)

// PolicyStore holds per-tenant timeout policies. Operators tune these at
// runtime, so the sweep loops re-read them every cycle instead of caching.
type PolicyStore struct {
	mu         sync.RWMutex
	policies   map[string]types.SessionTimeoutPolicy
	assistants map[string]types.AssistantPolicy
}

// NewPolicyStore creates an empty PolicyStore.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		policies:   make(map[string]types.SessionTimeoutPolicy),
		assistants: make(map[string]types.AssistantPolicy),
	}
}

// SetPolicy installs or replaces a tenant's timeout policy.
func (p *PolicyStore) SetPolicy(pol types.SessionTimeoutPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policies[pol.Tenant] = pol
}

// SetAssistantPolicy installs or replaces a tenant's assistant policy.
func (p *PolicyStore) SetAssistantPolicy(pol types.AssistantPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assistants[pol.Tenant] = pol
}

// Resolve returns the timeout policy for a tenant.
func (p *PolicyStore) Resolve(tenant string) (types.SessionTimeoutPolicy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pol, ok := p.policies[tenant]
	return pol, ok
}

// ResolveAssistant returns the assistant policy for a tenant.
func (p *PolicyStore) ResolveAssistant(tenant string) (types.AssistantPolicy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pol, ok := p.assistants[tenant]
	return pol, ok
}

// All returns every installed timeout policy.
func (p *PolicyStore) All() []types.SessionTimeoutPolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]types.SessionTimeoutPolicy, 0, len(p.policies))
	for _, pol := range p.policies {
		out = append(out, pol)
	}
	return out
}
