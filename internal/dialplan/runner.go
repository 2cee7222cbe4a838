package dialplan

import (
	"context"
	"fmt"
	"time"

	"github.com/renxuetao/cskefu/internal/types"
)

// RunJob executes one claimed outbound job from the dispatch sweep.
// Planned jobs are returned to their waiting state afterward so they
// fire again at the next scheduled time.
func (s *Service) RunJob(ctx context.Context, jobID, tenant string) error {
	job, ok := s.store.JobByID(jobID)
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}

	plan, ok := s.store.DialplanByID(job.DialplanID)
	if !ok {
		return fmt.Errorf("job %s references unknown dialplan %s", jobID, job.DialplanID)
	}

	result := s.Execute(ctx, plan)
	if result.RC != RCSuccess {
		s.logger.Warn().
			Str("job_id", jobID).
			Str("dialplan_id", plan.ID).
			Int("rc", result.RC).
			Str("error", result.Error).
			Msg("outbound job did not start its campaign")
	}

	// Reschedule or retire the job before the claim is released, so the
	// next dispatch cycle never re-selects a fire time that already ran.
	if job.Planned {
		if job.FireInterval > 0 {
			job.Status = types.JobNormal
			job.NextFireAt = time.Now().Add(job.FireInterval)
		} else {
			job.Status = types.JobDone
		}
		s.store.SaveJob(job)
	}

	if result.RC != RCSuccess {
		return fmt.Errorf("campaign start rc %d: %s", result.RC, result.Error)
	}
	return nil
}
