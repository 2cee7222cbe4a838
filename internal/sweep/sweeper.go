// Package sweep runs the fixed-interval scans that detect stalled
// sessions, timed-out agent replies, aged queue entries, stale presence,
// and due outbound jobs, and drives them to termination or
// re-notification through the same finalize path as the event machine.
package sweep

import (
	"context"
	"time"

	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/dispatch"
	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/renxuetao/cskefu/internal/notify"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/renxuetao/cskefu/internal/worker"
	"github.com/rs/zerolog"
)

// Intervals configures the sweep cadence. Zero values fall back to the
// engine defaults.
type Intervals struct {
	Session        time.Duration // idle warning, re-timeout, queue aging
	AgentReply     time.Duration
	StaleEviction  time.Duration
	Reconcile      time.Duration
	JobDispatch    time.Duration
	JobInitialWait time.Duration

	FreshnessWindow time.Duration // presence entries younger than this are upserted
	StaleAge        time.Duration // online sessions older than this are evicted
	ClaimMaxAge     time.Duration // leaked job claims expire after this
}

func (iv Intervals) withDefaults() Intervals {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&iv.Session, 5*time.Second)
	def(&iv.AgentReply, 5*time.Second)
	def(&iv.StaleEviction, 600*time.Second)
	def(&iv.Reconcile, 10*time.Second)
	def(&iv.JobDispatch, 3*time.Second)
	def(&iv.JobInitialWait, 20*time.Second)
	def(&iv.FreshnessWindow, 15*time.Second)
	def(&iv.StaleAge, 60*time.Second)
	def(&iv.ClaimMaxAge, 10*time.Minute)
	return iv
}

// JobRunner executes one claimed outbound job on the worker pool.
type JobRunner interface {
	RunJob(ctx context.Context, jobID, tenant string) error
}

// Sweeper owns all sweep loops. Each loop ticks independently and
// iterates every tenant; a tenant failure is isolated and the cycle
// continues with the next tenant.
type Sweeper struct {
	store     store.Store
	dist      *dispatch.Dist
	policies  *dispatch.PolicyStore
	presence  *cache.PresenceCache
	claims    *cache.ClaimTable
	notifier  notify.Notifier
	pool      *worker.Pool
	runner    JobRunner
	intervals Intervals
	logger    zerolog.Logger
}

// NewSweeper creates the sweep scheduler.
func NewSweeper(st store.Store, dist *dispatch.Dist, policies *dispatch.PolicyStore, presence *cache.PresenceCache, claims *cache.ClaimTable, notifier notify.Notifier, pool *worker.Pool, runner JobRunner, intervals Intervals, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:     st,
		dist:      dist,
		policies:  policies,
		presence:  presence,
		claims:    claims,
		notifier:  notifier,
		pool:      pool,
		runner:    runner,
		intervals: intervals.withDefaults(),
		logger:    logger,
	}
}

// Start launches every sweep loop and blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	iv := s.intervals
	go s.loop(ctx, "session-timeout", iv.Session, 0, s.sweepSessions)
	go s.loop(ctx, "agent-reply", iv.AgentReply, 0, s.sweepAgentReplies)
	go s.loop(ctx, "stale-presence", iv.StaleEviction, 0, s.sweepStalePresence)
	go s.loop(ctx, "presence-reconcile", iv.Reconcile, 0, s.reconcilePresence)
	go s.loop(ctx, "job-dispatch", iv.JobDispatch, iv.JobInitialWait, s.dispatchJobs)
	<-ctx.Done()
}

// loop runs one sweep body on a fixed interval, optionally after an
// initial delay.
func (s *Sweeper) loop(ctx context.Context, name string, interval, initialWait time.Duration, body func(now time.Time)) {
	if initialWait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialWait):
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Str("sweep", name).Dur("interval", interval).Msg("sweep loop started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("sweep", name).Msg("sweep loop stopped")
			return
		case now := <-ticker.C:
			metrics.Get().RecordSweepCycle()
			s.runIsolated(name, "", func() { body(now) })
		}
	}
}

// runIsolated executes fn, converting a panic into a logged error so no
// single tenant or item can abort a sweep cycle.
func (s *Sweeper) runIsolated(name, tenant string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Get().RecordSweepFailure()
			s.logger.Error().
				Str("sweep", name).
				Str("tenant", tenant).
				Interface("panic", r).
				Msg("sweep iteration failed")
		}
	}()
	fn()
}
