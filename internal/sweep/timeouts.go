package sweep

import (
	"time"

	"github.com/google/uuid"
	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/renxuetao/cskefu/internal/types"
)

// sweepSessions applies the idle warning, the post-warning re-timeout,
// and queue aging to every tenant. Policies are resolved fresh each
// cycle so operator changes take effect on the next tick.
func (s *Sweeper) sweepSessions(now time.Time) {
	for _, tenant := range s.store.Tenants() {
		tenant := tenant
		s.runIsolated("session-timeout", tenant, func() {
			policy, ok := s.policies.Resolve(tenant)
			if !ok {
				return
			}
			s.sweepIdle(tenant, policy, now)
			s.sweepQueue(tenant, policy, now)
		})
	}
}

// sweepIdle warns idle in-service bindings once, then finalizes the ones
// still idle a full re-timeout after the warning. A zero idle timeout is
// a valid cutoff of "now": every binding with past activity is flagged
// on the next cycle.
func (s *Sweeper) sweepIdle(tenant string, policy types.SessionTimeoutPolicy, now time.Time) {
	if !policy.SessionTimeout {
		s.sweepDirectReTimeout(tenant, policy, now)
		return
	}
	if policy.IdleTimeout < 0 {
		return
	}

	cutoff := now.Add(-policy.IdleTimeout)
	for _, binding := range s.store.FindBindingsIdleSince(tenant, cutoff) {
		if !binding.IdleWarned {
			s.sendNotice(binding, policy, policy.IdleMessage, now)

			warnedAt := now
			binding.IdleWarned = true
			binding.IdleWarnedAt = &warnedAt
			binding.TimeoutCount++
			binding.UpdatedAt = now
			s.store.SaveBinding(binding)

			s.logger.Info().
				Str("binding_id", binding.ID).
				Str("tenant", tenant).
				Msg("idle warning sent")
			continue
		}

		if !policy.ResessionTimeout || policy.ReTimeout <= 0 || binding.IdleWarnedAt == nil {
			continue
		}
		if now.Sub(*binding.IdleWarnedAt) <= policy.ReTimeout {
			continue
		}

		s.sendNotice(binding, policy, policy.ReTimeoutMessage, now)
		if s.dist.FinalizeService(binding, tenant, now) {
			s.logger.Info().
				Str("binding_id", binding.ID).
				Str("tenant", tenant).
				Msg("session finalized after re-timeout")
		}
	}
}

// sweepDirectReTimeout finalizes idle bindings without a prior warning,
// for tenants that disabled the idle warning but kept the re-timeout.
// The re-timeout is measured from the last visitor activity here, since
// no warning timestamp exists.
func (s *Sweeper) sweepDirectReTimeout(tenant string, policy types.SessionTimeoutPolicy, now time.Time) {
	if !policy.ResessionTimeout || policy.ReTimeout <= 0 {
		return
	}

	cutoff := now.Add(-policy.ReTimeout)
	for _, binding := range s.store.FindBindingsIdleSince(tenant, cutoff) {
		s.sendNotice(binding, policy, policy.ReTimeoutMessage, now)
		if s.dist.FinalizeService(binding, tenant, now) {
			s.logger.Info().
				Str("binding_id", binding.ID).
				Str("tenant", tenant).
				Msg("session finalized after unwarned re-timeout")
		}
	}
}

// sweepQueue finalizes bindings that waited in queue past the tenant's
// maximum.
func (s *Sweeper) sweepQueue(tenant string, policy types.SessionTimeoutPolicy, now time.Time) {
	if !policy.QueueTimeout || policy.QueueMax <= 0 {
		return
	}

	cutoff := now.Add(-policy.QueueMax)
	for _, binding := range s.store.FindBindingsQueuedSince(tenant, cutoff) {
		s.sendNotice(binding, policy, policy.QueueTimeoutMessage, now)
		if s.dist.FinalizeService(binding, tenant, now) {
			s.logger.Info().
				Str("binding_id", binding.ID).
				Str("tenant", tenant).
				Msg("queued session finalized after aging out")
		}
	}
}

// sweepAgentReplies nudges agents who have not replied within the
// tenant's agent timeout. Each binding is nudged at most once; the
// flag resets only when the agent replies.
func (s *Sweeper) sweepAgentReplies(now time.Time) {
	for _, tenant := range s.store.Tenants() {
		tenant := tenant
		s.runIsolated("agent-reply", tenant, func() {
			policy, ok := s.policies.Resolve(tenant)
			if !ok || !policy.AgentReplyTimeout || policy.AgentTimeout <= 0 {
				return
			}

			cutoff := now.Add(-policy.AgentTimeout)
			for _, binding := range s.store.FindBindingsReplyIdleSince(tenant, cutoff) {
				if binding.ReplyWarned {
					continue
				}

				s.sendNotice(binding, policy, policy.AgentTimeoutMessage, now)

				warnedAt := now
				binding.ReplyWarned = true
				binding.ReplyWarnedAt = &warnedAt
				binding.TimeoutCount++
				binding.UpdatedAt = now
				s.store.SaveBinding(binding)

				s.logger.Info().
					Str("binding_id", binding.ID).
					Str("agent_id", binding.AgentID).
					Str("tenant", tenant).
					Msg("agent reply timeout nudge sent")
			}
		})
	}
}

// sendNotice pushes a system notice to the binding's agent. The sender
// name is the agent's own name for reply nudges and the tenant's service
// name otherwise; a missing message or a disconnected agent is a no-op.
func (s *Sweeper) sendNotice(binding types.AgentBinding, policy types.SessionTimeoutPolicy, message string, now time.Time) {
	if message == "" || s.notifier == nil {
		return
	}

	sender := policy.ServiceName
	if sender == "" {
		sender = binding.AgentName
	}

	metrics.Get().RecordTimeoutWarning()
	notice := types.ChatNotice{
		ID:        uuid.New().String(),
		Channel:   binding.Channel,
		UserID:    binding.UserID,
		USession:  binding.SessionID,
		ToUser:    binding.AgentID,
		Tenant:    binding.Tenant,
		Username:  sender,
		Message:   message,
		ServiceID: binding.ServiceID,
		CreatedAt: now,
	}
	s.notifier.NotifyAgent(binding.AgentID, types.MessageKindMessage, notice)
}
