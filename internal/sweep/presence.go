package sweep

import (
	"time"

	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/renxuetao/cskefu/internal/types"
)

// staleEvictionLimit caps how many sessions one eviction cycle touches.
const staleEvictionLimit = 100

// sweepStalePresence flips long-online sessions to offline. A session
// still marked online well past its creation with no fresher update is
// presumed leaked by a lost disconnect.
func (s *Sweeper) sweepStalePresence(now time.Time) {
	cutoff := now.Add(-s.intervals.StaleAge)
	stale := s.store.FindSessionsOnlineBefore(cutoff, staleEvictionLimit)
	if len(stale) == 0 {
		return
	}

	for _, session := range stale {
		session.Status = types.SessionOffline
		session.UpdatedAt = now
		s.store.SaveSession(session)
		s.presence.Delete(session.Tenant, session.ID)
	}

	metrics.Get().RecordStaleEvictions(len(stale))
	s.logger.Info().
		Int("count", len(stale)).
		Msg("evicted stale online sessions")
}

// reconcilePresence pushes fresh presence cache entries into the durable
// store and evicts assistant sessions past their ask window. Only
// entries updated inside the freshness window are written; everything
// older waits for the stale eviction sweep.
func (s *Sweeper) reconcilePresence(now time.Time) {
	for _, tenant := range s.store.Tenants() {
		tenant := tenant
		s.runIsolated("presence-reconcile", tenant, func() {
			for _, entry := range s.presence.UpdatedWithin(tenant, s.intervals.FreshnessWindow, now) {
				switch entry.Kind {
				case cache.KindVisitor:
					s.reconcileVisitor(tenant, *entry.Visitor, now)
				case cache.KindAssistant:
					s.reconcileAssistant(tenant, *entry.Assistant, now)
				}
			}
		})
	}
}

// reconcileVisitor upserts one live visitor session. On traced channels
// every other online session of the same user is flipped offline first,
// so a user holds at most one live session per tenant.
func (s *Sweeper) reconcileVisitor(tenant string, session types.OnlineSession, now time.Time) {
	source, ok := s.store.SessionSourceByChannel(session.Channel, tenant)
	if !ok {
		s.logger.Warn().
			Str("channel", session.Channel).
			Str("tenant", tenant).
			Msg("presence entry references unknown session source")
		return
	}

	if source.TraceUser && session.UserID != "" {
		for _, other := range s.store.FindSessionsByUser(session.UserID, tenant) {
			if other.ID == session.ID || other.Status != types.SessionOnline {
				continue
			}
			other.Status = types.SessionOffline
			other.UpdatedAt = now
			s.store.SaveSession(other)
		}
	}

	s.store.SaveSession(session)
}

// reconcileAssistant evicts assistant sessions idle past the tenant's
// ask window. A zero window disables eviction.
func (s *Sweeper) reconcileAssistant(tenant string, session types.AssistantSession, now time.Time) {
	policy, ok := s.policies.ResolveAssistant(tenant)
	if !ok || policy.AskWindow <= 0 {
		return
	}
	if now.Sub(session.LastActiveAt) <= policy.AskWindow {
		return
	}

	s.presence.Delete(tenant, session.ID)
	s.logger.Info().
		Str("session_id", session.ID).
		Str("tenant", tenant).
		Msg("assistant session evicted after ask window")
}
