package cache

import (
	"sync"
	"time"
)

// ClaimTable provides put-if-absent claim semantics so two sweep workers
// (or a sweep and the event path) never process the same entity twice.
type ClaimTable struct {
	mu     sync.Mutex
	claims map[string]time.Time // tenant|id -> claim time
}

// NewClaimTable creates an empty ClaimTable.
func NewClaimTable() *ClaimTable {
	return &ClaimTable{claims: make(map[string]time.Time)}
}

// Claim registers (tenant, id) if absent. Returns true when this caller
// won the claim.
func (t *ClaimTable) Claim(tenant, id string) bool {
	key := tenant + "|" + id

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, taken := t.claims[key]; taken {
		return false
	}
	t.claims[key] = time.Now()
	return true
}

// Held reports whether (tenant, id) is currently claimed.
func (t *ClaimTable) Held(tenant, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, taken := t.claims[tenant+"|"+id]
	return taken
}

// Release drops a claim. Releasing an unclaimed key is a no-op.
func (t *ClaimTable) Release(tenant, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.claims, tenant+"|"+id)
}

// Expire drops claims older than maxAge and returns how many were
// removed. Guards against leaked claims from crashed workers.
func (t *ClaimTable) Expire(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, at := range t.claims {
		if at.Before(cutoff) {
			delete(t.claims, key)
			removed++
		}
	}
	return removed
}
