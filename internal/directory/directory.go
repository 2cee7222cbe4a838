// Package directory resolves signaling identities and phone-number region
// metadata. The engine treats both lookups as pure functions.
package directory

import (
	"sync"

	"github.com/renxuetao/cskefu/internal/types"
)

// Lookup resolves signaling accounts to agents and phone numbers to
// regions. ResolveAgentsBySipAccount returns all matches; the caller
// decides the error policy (exactly-one is required on the event path).
type Lookup interface {
	ResolveAgentsBySipAccount(account string) []types.Agent
	ResolveRegion(phone string) types.RegionInfo
	AgentByID(id string) (types.Agent, bool)
	OrganByID(id string) (types.Organ, bool)
	SipAccountsByOrgan(organID string) []string
	CountAgentsByOrgan(organID string) int
}

// MemoryLookup is an in-memory directory, loaded at startup and updated
// by administrative tooling outside the engine.
type MemoryLookup struct {
	mu     sync.RWMutex
	agents map[string]types.Agent // by id
	bySip  map[string][]string    // sip account -> agent ids
	organs map[string]types.Organ
}

// NewMemoryLookup creates an empty in-memory directory.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{
		agents: make(map[string]types.Agent),
		bySip:  make(map[string][]string),
		organs: make(map[string]types.Organ),
	}
}

// PutAgent adds or replaces an agent.
func (l *MemoryLookup) PutAgent(a types.Agent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.agents[a.ID]; ok && old.SipAccount != "" {
		l.bySip[old.SipAccount] = removeID(l.bySip[old.SipAccount], a.ID)
	}
	l.agents[a.ID] = a
	if a.SipAccount != "" {
		l.bySip[a.SipAccount] = append(l.bySip[a.SipAccount], a.ID)
	}
}

// PutOrgan adds or replaces an organ.
func (l *MemoryLookup) PutOrgan(o types.Organ) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.organs[o.ID] = o
}

func (l *MemoryLookup) ResolveAgentsBySipAccount(account string) []types.Agent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.bySip[account]
	agents := make([]types.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := l.agents[id]; ok {
			agents = append(agents, a)
		}
	}
	return agents
}

func (l *MemoryLookup) ResolveRegion(phone string) types.RegionInfo {
	return regionForPhone(phone)
}

func (l *MemoryLookup) AgentByID(id string) (types.Agent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.agents[id]
	return a, ok
}

func (l *MemoryLookup) OrganByID(id string) (types.Organ, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.organs[id]
	return o, ok
}

func (l *MemoryLookup) SipAccountsByOrgan(organID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sips []string
	for _, a := range l.agents {
		if a.OrganID == organID && a.SipAccount != "" {
			sips = append(sips, a.SipAccount)
		}
	}
	return sips
}

func (l *MemoryLookup) CountAgentsByOrgan(organID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, a := range l.agents {
		if a.OrganID == organID {
			n++
		}
	}
	return n
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
