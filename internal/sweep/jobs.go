package sweep

import (
	"context"
	"time"

	"github.com/renxuetao/cskefu/internal/types"
)

// jobBatchLimit caps how many jobs one dispatch cycle picks up.
const jobBatchLimit = 50

// dispatchJobs claims due outbound jobs and hands them to the worker
// pool. The claim table makes pickup exactly-once across cycles; a job
// whose submit fails keeps its status and is retried next tick.
func (s *Sweeper) dispatchJobs(now time.Time) {
	if s.runner == nil || s.pool == nil {
		return
	}

	if expired := s.claims.Expire(s.intervals.ClaimMaxAge); expired > 0 {
		s.logger.Warn().Int("count", expired).Msg("expired leaked job claims")
	}

	due := s.store.FindReadyJobs(jobBatchLimit)
	due = append(due, s.store.FindDuePlannedJobs(now, jobBatchLimit)...)

	for _, job := range due {
		job := job
		if !s.claims.Claim(job.Tenant, job.ID) {
			continue
		}

		submitted := s.pool.Submit(func(ctx context.Context) {
			defer s.claims.Release(job.Tenant, job.ID)
			if err := s.runner.RunJob(ctx, job.ID, job.Tenant); err != nil {
				s.logger.Error().Err(err).
					Str("job_id", job.ID).
					Str("tenant", job.Tenant).
					Msg("outbound job failed")
			}
		})
		if !submitted {
			s.claims.Release(job.Tenant, job.ID)
			s.logger.Warn().
				Str("job_id", job.ID).
				Int("pending", s.pool.Pending()).
				Msg("worker pool full, job deferred to next cycle")
			continue
		}

		job.Status = types.JobQueued
		s.store.SaveJob(job)
		s.logger.Info().
			Str("job_id", job.ID).
			Str("tenant", job.Tenant).
			Msg("outbound job queued")
	}
}
