package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/dispatch"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/renxuetao/cskefu/internal/types"
	"github.com/renxuetao/cskefu/internal/worker"
	"github.com/rs/zerolog"
)

type recordedNotice struct {
	agentID string
	kind    types.MessageKind
	payload any
}

type stubNotifier struct {
	sent []recordedNotice
}

func (n *stubNotifier) NotifyAgent(agentID string, kind types.MessageKind, payload any) bool {
	n.sent = append(n.sent, recordedNotice{agentID: agentID, kind: kind, payload: payload})
	return true
}

type stubRunner struct {
	ran []string
}

func (r *stubRunner) RunJob(_ context.Context, jobID, _ string) error {
	r.ran = append(r.ran, jobID)
	return nil
}

type fixture struct {
	store    *store.MemoryStore
	dist     *dispatch.Dist
	policies *dispatch.PolicyStore
	presence *cache.PresenceCache
	claims   *cache.ClaimTable
	notifier *stubNotifier
	pool     *worker.Pool
	runner   *stubRunner
	sweeper  *Sweeper
}

func newFixture() *fixture {
	st := store.NewMemoryStore()
	policies := dispatch.NewPolicyStore()
	presence := cache.NewPresenceCache()
	claims := cache.NewClaimTable()
	notifier := &stubNotifier{}
	// Workers deliberately not started; dispatch tests only exercise
	// queueing and claim semantics.
	pool := worker.NewPool(1, 4, zerolog.Nop())
	runner := &stubRunner{}
	dist := dispatch.NewDist(st, policies, presence, nil, zerolog.Nop())

	sweeper := NewSweeper(st, dist, policies, presence, claims, notifier, pool, runner, Intervals{}, zerolog.Nop())
	return &fixture{
		store:    st,
		dist:     dist,
		policies: policies,
		presence: presence,
		claims:   claims,
		notifier: notifier,
		pool:     pool,
		runner:   runner,
		sweeper:  sweeper,
	}
}

func (f *fixture) seedPolicy(pol types.SessionTimeoutPolicy) {
	pol.Tenant = "acme"
	f.policies.SetPolicy(pol)
}

func (f *fixture) seedBinding(b types.AgentBinding) types.AgentBinding {
	if b.Tenant == "" {
		b.Tenant = "acme"
	}
	if b.Status == "" {
		b.Status = types.BindingInService
	}
	f.store.SaveBinding(b)
	// Tenants() discovers tenants from state; the binding is enough.
	return b
}

func TestIdleWarningThenReTimeout(t *testing.T) {
	f := newFixture()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	f.seedPolicy(types.SessionTimeoutPolicy{
		ServiceName:      "Support Bot",
		SessionTimeout:   true,
		IdleTimeout:      time.Minute,
		IdleMessage:      "still there?",
		ResessionTimeout: true,
		ReTimeout:        time.Minute,
		ReTimeoutMessage: "closing now",
	})
	f.store.SaveServiceRecord(types.ServiceRecord{ID: "r-1", Status: types.ServiceInCall, StartTime: now.Add(-5 * time.Minute)})
	f.seedBinding(types.AgentBinding{
		ID: "b-1", SessionID: "s-1", AgentID: "agent-1", ServiceID: "r-1",
		LastMessageAt: now.Add(-2 * time.Minute),
	})

	// First pass: warning only, binding stays open.
	f.sweeper.sweepSessions(now)

	b, _ := f.store.BindingByID("b-1")
	if !b.IdleWarned {
		t.Fatal("expected idle warning flag set")
	}
	if b.Status != types.BindingInService {
		t.Fatalf("warning must not close the binding, got %s", b.Status)
	}
	if b.TimeoutCount != 1 {
		t.Errorf("expected timeout count 1, got %d", b.TimeoutCount)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(f.notifier.sent))
	}

	// Second pass before the re-timeout elapses: nothing happens.
	f.sweeper.sweepSessions(now.Add(30 * time.Second))
	b, _ = f.store.BindingByID("b-1")
	if b.Status != types.BindingInService {
		t.Fatalf("binding closed before the re-timeout elapsed")
	}

	// Third pass after the re-timeout: finalized.
	f.sweeper.sweepSessions(now.Add(2 * time.Minute))
	b, _ = f.store.BindingByID("b-1")
	if b.Status != types.BindingClosed {
		t.Errorf("expected closed binding, got %s", b.Status)
	}
	record, _ := f.store.ServiceRecordByID("r-1")
	if !record.Closed() {
		t.Error("expected service record closed with the binding")
	}
	if len(f.notifier.sent) != 2 {
		t.Errorf("expected 2 notices, got %d", len(f.notifier.sent))
	}
}

func TestIdleTimeoutDisabled(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.seedPolicy(types.SessionTimeoutPolicy{SessionTimeout: false, IdleTimeout: time.Minute})
	f.seedBinding(types.AgentBinding{ID: "b-1", LastMessageAt: now.Add(-time.Hour)})

	f.sweeper.sweepSessions(now)

	b, _ := f.store.BindingByID("b-1")
	if b.IdleWarned || b.Status != types.BindingInService {
		t.Error("disabled policy must leave bindings untouched")
	}
}

func TestZeroIdleTimeoutFlagsImmediately(t *testing.T) {
	f := newFixture()
	now := time.Now()

	// A zero timeout means the cutoff is now: any binding with past
	// activity is flagged on the next cycle.
	f.seedPolicy(types.SessionTimeoutPolicy{SessionTimeout: true, IdleTimeout: 0, IdleMessage: "still there?"})
	f.seedBinding(types.AgentBinding{ID: "b-1", AgentID: "agent-1", LastMessageAt: now.Add(-time.Hour)})

	f.sweeper.sweepSessions(now)

	b, _ := f.store.BindingByID("b-1")
	if !b.IdleWarned {
		t.Error("expected binding flagged with a zero idle timeout")
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("expected 1 notice, got %d", len(f.notifier.sent))
	}
}

func TestNegativeIdleTimeoutDisabled(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.seedPolicy(types.SessionTimeoutPolicy{SessionTimeout: true, IdleTimeout: -time.Second})
	f.seedBinding(types.AgentBinding{ID: "b-1", LastMessageAt: now.Add(-time.Hour)})

	f.sweeper.sweepSessions(now)

	b, _ := f.store.BindingByID("b-1")
	if b.IdleWarned {
		t.Error("negative idle timeout must never warn")
	}
}

func TestDirectReTimeoutWithoutWarning(t *testing.T) {
	f := newFixture()
	now := time.Now()

	// Idle warning off, re-timeout on: bindings finalize straight from
	// last visitor activity, no warning pass first.
	f.seedPolicy(types.SessionTimeoutPolicy{
		ResessionTimeout: true,
		ReTimeout:        time.Minute,
		ReTimeoutMessage: "closing now",
	})
	f.store.SaveServiceRecord(types.ServiceRecord{ID: "r-1", Status: types.ServiceInCall, StartTime: now.Add(-time.Hour)})
	f.seedBinding(types.AgentBinding{
		ID: "b-1", AgentID: "agent-1", ServiceID: "r-1",
		LastMessageAt: now.Add(-2 * time.Minute),
	})
	f.seedBinding(types.AgentBinding{
		ID: "b-fresh", AgentID: "agent-2",
		LastMessageAt: now,
	})

	f.sweeper.sweepSessions(now)

	b, _ := f.store.BindingByID("b-1")
	if b.Status != types.BindingClosed {
		t.Errorf("expected idle binding finalized, got %s", b.Status)
	}
	fresh, _ := f.store.BindingByID("b-fresh")
	if fresh.Status != types.BindingInService {
		t.Errorf("active binding must stay open, got %s", fresh.Status)
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("expected 1 notice, got %d", len(f.notifier.sent))
	}
}

func TestQueueAging(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.seedPolicy(types.SessionTimeoutPolicy{
		QueueTimeout:        true,
		QueueMax:            time.Minute,
		QueueTimeoutMessage: "queue timed out",
	})
	f.seedBinding(types.AgentBinding{
		ID: "b-q", AgentID: "agent-1", Status: types.BindingInQueue,
		LoginAt: now.Add(-2 * time.Minute),
	})
	f.seedBinding(types.AgentBinding{
		ID: "b-fresh", AgentID: "agent-2", Status: types.BindingInQueue,
		LoginAt: now,
	})

	f.sweeper.sweepSessions(now)

	aged, _ := f.store.BindingByID("b-q")
	if aged.Status != types.BindingClosed {
		t.Errorf("expected aged queue entry closed, got %s", aged.Status)
	}
	fresh, _ := f.store.BindingByID("b-fresh")
	if fresh.Status != types.BindingInQueue {
		t.Errorf("fresh queue entry must stay, got %s", fresh.Status)
	}
}

func TestAgentReplyNudgedOnce(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.seedPolicy(types.SessionTimeoutPolicy{
		AgentReplyTimeout:   true,
		AgentTimeout:        time.Minute,
		AgentTimeoutMessage: "caller is waiting",
	})
	f.seedBinding(types.AgentBinding{
		ID: "b-1", AgentID: "agent-1",
		LastAgentReplyAt: now.Add(-5 * time.Minute),
	})

	f.sweeper.sweepAgentReplies(now)
	f.sweeper.sweepAgentReplies(now.Add(time.Minute))

	if len(f.notifier.sent) != 1 {
		t.Errorf("expected exactly one nudge, got %d", len(f.notifier.sent))
	}
	b, _ := f.store.BindingByID("b-1")
	if !b.ReplyWarned {
		t.Error("expected reply warned flag set")
	}
	if b.Status != types.BindingInService {
		t.Errorf("reply nudge must never close the binding, got %s", b.Status)
	}
}

func TestStaleSessionEviction(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.store.SaveSession(types.OnlineSession{
		ID: "s-old", Tenant: "acme", Status: types.SessionOnline,
		CreatedAt: now.Add(-2 * time.Minute),
	})
	f.store.SaveSession(types.OnlineSession{
		ID: "s-new", Tenant: "acme", Status: types.SessionOnline,
		CreatedAt: now,
	})
	f.presence.PutVisitor("acme", types.OnlineSession{ID: "s-old", Tenant: "acme"})

	f.sweeper.sweepStalePresence(now)

	old, _ := f.store.SessionByID("s-old")
	if old.Status != types.SessionOffline {
		t.Errorf("expected stale session offline, got %s", old.Status)
	}
	fresh, _ := f.store.SessionByID("s-new")
	if fresh.Status != types.SessionOnline {
		t.Errorf("fresh session must stay online, got %s", fresh.Status)
	}
	if _, ok := f.presence.Get("acme", "s-old"); ok {
		t.Error("expected stale presence entry removed")
	}
}

func TestReconcileVisitorDedupesByUser(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.store.SaveSessionSource(types.SessionSource{ID: "app-1", Tenant: "acme", TraceUser: true})
	f.store.SaveSession(types.OnlineSession{
		ID: "s-old", UserID: "u-1", Tenant: "acme", Channel: "app-1",
		Status: types.SessionOnline, UpdatedAt: now.Add(-time.Hour),
	})

	live := types.OnlineSession{
		ID: "s-new", UserID: "u-1", Tenant: "acme", Channel: "app-1",
		Status: types.SessionOnline, UpdatedAt: now,
	}
	f.presence.PutVisitor("acme", live)

	f.sweeper.reconcilePresence(now)

	old, _ := f.store.SessionByID("s-old")
	if old.Status != types.SessionOffline {
		t.Errorf("expected duplicate session offline, got %s", old.Status)
	}
	saved, ok := f.store.SessionByID("s-new")
	if !ok || saved.Status != types.SessionOnline {
		t.Error("expected live presence entry persisted")
	}
}

func TestReconcileSkipsStalePresenceEntries(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.store.SaveSessionSource(types.SessionSource{ID: "app-1", Tenant: "acme"})
	// Tenants() needs some state for the tenant.
	f.store.SaveSession(types.OnlineSession{ID: "s-seed", Tenant: "acme"})

	f.presence.PutVisitor("acme", types.OnlineSession{
		ID: "s-stale", Tenant: "acme", Channel: "app-1",
		UpdatedAt: now.Add(-time.Hour),
	})

	f.sweeper.reconcilePresence(now)

	if _, ok := f.store.SessionByID("s-stale"); ok {
		t.Error("stale presence entries must not be persisted")
	}
}

func TestReconcileEvictsIdleAssistants(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.policies.SetAssistantPolicy(types.AssistantPolicy{Tenant: "acme", AskWindow: time.Minute})
	f.store.SaveSession(types.OnlineSession{ID: "s-seed", Tenant: "acme"})

	f.presence.PutAssistant("acme", types.AssistantSession{
		ID: "a-idle", Tenant: "acme", LastActiveAt: now.Add(-2 * time.Minute),
	})
	f.presence.PutAssistant("acme", types.AssistantSession{
		ID: "a-live", Tenant: "acme", LastActiveAt: now,
	})

	f.sweeper.reconcilePresence(now)

	if _, ok := f.presence.Get("acme", "a-idle"); ok {
		t.Error("expected idle assistant evicted")
	}
	if _, ok := f.presence.Get("acme", "a-live"); !ok {
		t.Error("active assistant must stay cached")
	}
}

func TestDispatchJobsClaimsExactlyOnce(t *testing.T) {
	f := newFixture()
	now := time.Now()

	f.store.SaveJob(types.Job{ID: "j-1", Tenant: "acme", DialplanID: "plan-1", Status: types.JobReady})

	f.sweeper.dispatchJobs(now)

	job, _ := f.store.JobByID("j-1")
	if job.Status != types.JobQueued {
		t.Fatalf("expected queued job, got %s", job.Status)
	}
	if f.pool.Pending() != 1 {
		t.Fatalf("expected 1 pending task, got %d", f.pool.Pending())
	}

	// The claim is still held; a second sweep must not re-submit.
	f.sweeper.dispatchJobs(now.Add(3 * time.Second))
	if f.pool.Pending() != 1 {
		t.Errorf("job submitted twice despite held claim, pending %d", f.pool.Pending())
	}
}

func TestDispatchJobsReleasesClaimWhenPoolFull(t *testing.T) {
	f := newFixture()
	now := time.Now()

	// Fill the queue so the next submit is rejected.
	for f.pool.Submit(func(context.Context) {}) {
	}

	f.store.SaveJob(types.Job{ID: "j-1", Tenant: "acme", Status: types.JobReady})
	f.sweeper.dispatchJobs(now)

	job, _ := f.store.JobByID("j-1")
	if job.Status != types.JobReady {
		t.Errorf("deferred job must keep its status, got %s", job.Status)
	}
	if f.claims.Held("acme", "j-1") {
		t.Error("expected claim released after a failed submit")
	}
}
