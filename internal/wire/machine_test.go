package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/directory"
	"github.com/renxuetao/cskefu/internal/dispatch"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/renxuetao/cskefu/internal/types"
	"github.com/rs/zerolog"
)

type stubNotification struct {
	agentID string
	kind    types.MessageKind
}

type stubNotifier struct {
	sent []stubNotification
}

func (n *stubNotifier) NotifyAgent(agentID string, kind types.MessageKind, payload any) bool {
	n.sent = append(n.sent, stubNotification{agentID: agentID, kind: kind})
	return true
}

type captureArchiver struct {
	ch chan types.ServiceRecord
}

func (c *captureArchiver) SaveServiceRecord(r types.ServiceRecord) error {
	c.ch <- r
	return nil
}

type fixture struct {
	store    *store.MemoryStore
	dir      *directory.MemoryLookup
	dist     *dispatch.Dist
	presence *cache.PresenceCache
	notifier *stubNotifier
	archive  *captureArchiver
	machine  *Machine
}

func newFixture() *fixture {
	st := store.NewMemoryStore()
	dir := directory.NewMemoryLookup()
	presence := cache.NewPresenceCache()
	notifier := &stubNotifier{}
	archive := &captureArchiver{ch: make(chan types.ServiceRecord, 8)}

	st.SaveSessionSource(types.SessionSource{ID: "app-1", Name: "Hotline", Tenant: "acme", TraceUser: true})
	dir.PutOrgan(types.Organ{ID: "org-1", Name: "Sales", Tenant: "acme"})
	dir.PutAgent(types.Agent{ID: "agent-1", Username: "alice", DisplayName: "Alice", SipAccount: "1001", OrganID: "org-1", Tenant: "acme"})

	dist := dispatch.NewDist(st, dispatch.NewPolicyStore(), presence, archive, zerolog.Nop())
	machine := NewMachine(st, dir, dist, presence, notifier, zerolog.Nop())

	return &fixture{
		store:    st,
		dir:      dir,
		dist:     dist,
		presence: presence,
		notifier: notifier,
		archive:  archive,
		machine:  machine,
	}
}

func connectEvent(at time.Time) types.CallEvent {
	return types.CallEvent{
		Kind:      types.EventConnect,
		From:      "1001",
		To:        "13912345678",
		Ops:       "bridge",
		Channel:   "app-1",
		CallID:    "call-1",
		CreatedAt: at,
		Tenant:    "acme",
		Direction: types.DirectionOut,
	}
}

func (f *fixture) awaitArchive(t *testing.T) types.ServiceRecord {
	t.Helper()
	select {
	case r := <-f.archive.ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("no record archived")
		return types.ServiceRecord{}
	}
}

func TestConnectBindsSessionToAgent(t *testing.T) {
	f := newFixture()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := f.machine.Handle(connectEvent(at)); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	session, ok := f.store.FindActiveSessionByPhone("13912345678", "acme")
	if !ok {
		t.Fatal("expected an online session")
	}
	if session.Status != types.SessionOnline {
		t.Errorf("expected online status, got %s", session.Status)
	}
	if _, ok := f.presence.Get("acme", session.ID); !ok {
		t.Error("expected session in the presence cache")
	}

	bindings := f.store.FindBindingsByStatus("acme", types.BindingInService)
	if len(bindings) != 1 {
		t.Fatalf("expected 1 in-service binding, got %d", len(bindings))
	}
	binding := bindings[0]
	if binding.AgentID != "agent-1" {
		t.Errorf("expected agent-1, got %s", binding.AgentID)
	}

	record, ok := f.store.FindServiceRecordByBinding(binding.ID)
	if !ok {
		t.Fatal("expected a service record for the binding")
	}
	if record.Closed() {
		t.Error("record must stay open until disconnect")
	}
	if record.DateKey != "2024-03-01" || record.HourKey != "10" {
		t.Errorf("unexpected partition keys %s/%s", record.DateKey, record.HourKey)
	}

	if serving, ok := f.dist.Serving("agent-1"); !ok || serving != binding.ID {
		t.Errorf("expected agent-1 serving binding %s", binding.ID)
	}

	if len(f.notifier.sent) != 1 || f.notifier.sent[0].kind != types.MessageKindNew {
		t.Fatalf("expected one bridge notification, got %+v", f.notifier.sent)
	}
}

func TestConnectReusesExistingSession(t *testing.T) {
	f := newFixture()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := f.machine.Handle(connectEvent(at)); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	second := connectEvent(at.Add(time.Minute))
	second.CallID = "call-2"
	if err := f.machine.Handle(second); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}

	session, _ := f.store.FindActiveSessionByPhone("13912345678", "acme")
	if !session.Reactivated {
		t.Error("expected the session to be marked reactivated")
	}
	if session.InvitationCount != 1 {
		t.Errorf("expected invitation count 1, got %d", session.InvitationCount)
	}

	// Both bindings stay open; the stragglers are closed by disconnect
	// or by the sweep.
	bindings := f.store.FindBindingsByStatus("acme", types.BindingInService)
	if len(bindings) != 2 {
		t.Errorf("expected 2 in-service bindings, got %d", len(bindings))
	}
}

func TestConnectLinksKnownContact(t *testing.T) {
	f := newFixture()
	f.store.SaveContact(types.Contact{ID: "c-1", Name: "Bob", Phone: "13912345678", Tenant: "acme"})
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := f.machine.Handle(connectEvent(at)); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	session, _ := f.store.FindActiveSessionByPhone("13912345678", "acme")
	if session.ContactRef != "c-1" {
		t.Errorf("expected contact c-1 linked, got %q", session.ContactRef)
	}

	bindings := f.store.FindBindingsByStatus("acme", types.BindingInService)
	if len(bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(bindings))
	}
	record, _ := f.store.ServiceRecordByID(bindings[0].ServiceID)
	if record.ContactRef != "c-1" {
		t.Errorf("expected contact denormalized onto the record, got %q", record.ContactRef)
	}

	rels := f.store.AgentContactsByAgent("agent-1", "acme")
	if len(rels) != 1 {
		t.Fatalf("expected 1 agent-contact relation, got %d", len(rels))
	}
	if rels[0].ContactID != "c-1" || rels[0].ServiceID != record.ID {
		t.Errorf("relation fields wrong: %+v", rels[0])
	}
}

func TestConnectValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.CallEvent)
		wantErr error
	}{
		{
			name:    "bad phone number",
			mutate:  func(e *types.CallEvent) { e.To = "123" },
			wantErr: ErrValidation,
		},
		{
			name:    "missing call id",
			mutate:  func(e *types.CallEvent) { e.CallID = "" },
			wantErr: ErrDecode,
		},
		{
			name:    "unknown channel",
			mutate:  func(e *types.CallEvent) { e.Channel = "nope" },
			wantErr: ErrDecode,
		},
		{
			name:    "unknown sip account",
			mutate:  func(e *types.CallEvent) { e.From = "9999" },
			wantErr: ErrAmbiguousDirectory,
		},
		{
			name:    "unknown dialplan",
			mutate:  func(e *types.CallEvent) { e.DialplanID = "nope" },
			wantErr: ErrUnknownReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			event := connectEvent(time.Now().UTC())
			tt.mutate(&event)

			err := f.machine.Handle(event)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}

			if got := f.store.FindBindingsByStatus("acme", types.BindingInService); len(got) != 0 {
				t.Errorf("no state must be committed on a rejected connect, found %d bindings", len(got))
			}
		})
	}
}

func TestConnectAmbiguousSipAccount(t *testing.T) {
	f := newFixture()
	f.dir.PutAgent(types.Agent{ID: "agent-2", Username: "bob", SipAccount: "1001", Tenant: "acme"})

	err := f.machine.Handle(connectEvent(time.Now().UTC()))
	if !errors.Is(err, ErrAmbiguousDirectory) {
		t.Errorf("expected ErrAmbiguousDirectory for duplicate sip accounts, got %v", err)
	}
}

func TestDisconnectFinalizesService(t *testing.T) {
	f := newFixture()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := f.machine.Handle(connectEvent(start)); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	binding := f.store.FindBindingsByStatus("acme", types.BindingInService)[0]

	disconnect := types.CallEvent{
		Kind:         types.EventDisconnect,
		To:           "13912345678",
		Ops:          "hangup",
		Channel:      "app-1",
		CallID:       "call-1",
		RecordingRef: "rec/call-1.wav",
		CreatedAt:    start.Add(95 * time.Second),
		Tenant:       "acme",
		Direction:    types.DirectionOut,
	}
	if err := f.machine.Handle(disconnect); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}

	session, _ := f.store.FindSessionByPhone("13912345678", "acme")
	if session.Status != types.SessionOffline {
		t.Errorf("expected offline session, got %s", session.Status)
	}
	if _, ok := f.presence.Get("acme", session.ID); ok {
		t.Error("expected presence entry removed")
	}

	got, _ := f.store.BindingByID(binding.ID)
	if got.Status != types.BindingClosed {
		t.Errorf("expected closed binding, got %s", got.Status)
	}

	record, _ := f.store.FindServiceRecordByBinding(binding.ID)
	if !record.Closed() {
		t.Fatal("expected closed service record")
	}
	if record.Duration != 95 {
		t.Errorf("expected duration 95s, got %d", record.Duration)
	}
	if record.RecordingFile != "rec/call-1.wav" {
		t.Errorf("expected recording ref to survive, got %q", record.RecordingFile)
	}

	if _, ok := f.dist.Serving("agent-1"); ok {
		t.Error("expected agent released after finalize")
	}

	f.awaitArchive(t)
}

func TestDisconnectWithoutSessionFallsBackToFail(t *testing.T) {
	f := newFixture()

	disconnect := types.CallEvent{
		Kind:      types.EventDisconnect,
		From:      "1001",
		To:        "13912345678",
		Ops:       "hangup",
		Channel:   "app-1",
		CallID:    "call-x",
		CreatedAt: time.Now().UTC(),
		Tenant:    "acme",
		Direction: types.DirectionOut,
	}
	if err := f.machine.Handle(disconnect); err != nil {
		t.Fatalf("disconnect fallback failed: %v", err)
	}

	record := f.awaitArchive(t)
	if !record.Closed() {
		t.Error("fail record must be born closed")
	}
	if record.Duration != 0 {
		t.Errorf("fail record duration must be 0, got %d", record.Duration)
	}
	if record.AgentID != "agent-1" {
		t.Errorf("expected fail record attributed to agent-1, got %q", record.AgentID)
	}
}

func TestFailWithDialplanDenormalizesCampaign(t *testing.T) {
	f := newFixture()
	f.store.SaveDialplan(types.Dialplan{
		ID:           "plan-1",
		Name:         "Spring",
		Tenant:       "acme",
		OrganID:      "org-1",
		OrganName:    "Sales",
		VoiceChannel: "http://fs-1",
		Status:       types.DialplanStopped,
	})

	fail := types.CallEvent{
		Kind:       types.EventFail,
		To:         "13912345678",
		Ops:        "fail",
		Channel:    "app-1",
		DialplanID: "plan-1",
		CallID:     "call-f",
		CreatedAt:  time.Now().UTC(),
		Tenant:     "acme",
		Direction:  types.DirectionOut,
	}
	if err := f.machine.Handle(fail); err != nil {
		t.Fatalf("fail handling failed: %v", err)
	}

	record := f.awaitArchive(t)
	if record.OrganID != "org-1" || record.OrganName != "Sales" {
		t.Errorf("expected organ denormalized, got %q/%q", record.OrganID, record.OrganName)
	}
	if record.Channel != "http://fs-1" {
		t.Errorf("expected voice channel denormalized, got %q", record.Channel)
	}
}

func TestFailUnknownDialplan(t *testing.T) {
	f := newFixture()

	fail := types.CallEvent{
		Kind:       types.EventFail,
		To:         "13912345678",
		Ops:        "fail",
		Channel:    "app-1",
		DialplanID: "nope",
		CallID:     "call-f",
		CreatedAt:  time.Now().UTC(),
		Tenant:     "acme",
	}
	if err := f.machine.Handle(fail); !errors.Is(err, ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
}

func TestInformationalEventsAreNoOps(t *testing.T) {
	f := newFixture()

	for _, kind := range []types.EventKind{types.EventRinging, types.EventProgress, types.EventMedia} {
		event := connectEvent(time.Now().UTC())
		event.Kind = kind
		if err := f.machine.Handle(event); err != nil {
			t.Errorf("kind %d: expected no-op, got %v", kind, err)
		}
	}

	if got := f.store.FindBindingsByStatus("acme", types.BindingInService); len(got) != 0 {
		t.Errorf("informational events must not create bindings, found %d", len(got))
	}
}
