// Package cache is the process-wide presence cache. Both the event path
// and the sweep loops read it; it is passed by reference, never a hidden
// global, and its lifecycle is tied to process start/stop.
package cache

import (
	"sync"
	"time"

	"github.com/renxuetao/cskefu/internal/types"
)

// EntryKind tags the variant held by a presence entry.
type EntryKind string

const (
	KindVisitor   EntryKind = "visitor"
	KindAssistant EntryKind = "assistant"
)

// Entry is a tagged variant over the entity kinds sharing the cache. The
// reconciliation sweep switches on Kind explicitly; exactly one of the
// payload fields is set.
type Entry struct {
	Kind      EntryKind
	Visitor   *types.OnlineSession
	Assistant *types.AssistantSession
}

// PresenceCache holds live visitor sessions and assistant sessions,
// keyed per tenant.
type PresenceCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry // tenant -> id -> entry
}

// NewPresenceCache creates an empty PresenceCache.
func NewPresenceCache() *PresenceCache {
	return &PresenceCache{entries: make(map[string]map[string]Entry)}
}

// PutVisitor stores a visitor session snapshot.
func (c *PresenceCache) PutVisitor(tenant string, s types.OnlineSession) {
	c.put(tenant, s.ID, Entry{Kind: KindVisitor, Visitor: &s})
}

// PutAssistant stores an assistant session snapshot.
func (c *PresenceCache) PutAssistant(tenant string, s types.AssistantSession) {
	c.put(tenant, s.ID, Entry{Kind: KindAssistant, Assistant: &s})
}

func (c *PresenceCache) put(tenant, id string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.entries[tenant]
	if !ok {
		m = make(map[string]Entry)
		c.entries[tenant] = m
	}
	m[id] = e
}

// Get returns the entry for an id within a tenant.
func (c *PresenceCache) Get(tenant, id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tenant][id]
	return e, ok
}

// Delete removes an entry. Missing entries are a no-op.
func (c *PresenceCache) Delete(tenant, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries[tenant], id)
}

// All returns a snapshot of every entry for a tenant.
func (c *PresenceCache) All(tenant string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries[tenant]))
	for _, e := range c.entries[tenant] {
		out = append(out, e)
	}
	return out
}

// Size returns the total entry count across tenants.
func (c *PresenceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, m := range c.entries {
		n += len(m)
	}
	return n
}

// UpdatedWithin returns visitor entries whose UpdatedAt falls inside the
// freshness window ending now. The reconciliation sweep uses this to
// upsert only live presence into the durable store.
func (c *PresenceCache) UpdatedWithin(tenant string, window time.Duration, now time.Time) []Entry {
	cutoff := now.Add(-window)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Entry
	for _, e := range c.entries[tenant] {
		switch e.Kind {
		case KindVisitor:
			if e.Visitor.UpdatedAt.After(cutoff) {
				out = append(out, e)
			}
		case KindAssistant:
			out = append(out, e)
		}
	}
	return out
}
