package wire

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/directory"
	"github.com/renxuetao/cskefu/internal/dispatch"
	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/renxuetao/cskefu/internal/notify"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/renxuetao/cskefu/internal/types"
	"github.com/rs/zerolog"
)

// Machine is the call event state machine. One Machine instance serves
// one tenant shard of the signaling stream; it never blocks on the sweep
// loops and coordinates with them only through the store and the
// presence cache.
type Machine struct {
	store    store.Store
	dir      directory.Lookup
	dist     *dispatch.Dist
	presence *cache.PresenceCache
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewMachine creates a call event state machine.
func NewMachine(st store.Store, dir directory.Lookup, dist *dispatch.Dist, presence *cache.PresenceCache, notifier notify.Notifier, logger zerolog.Logger) *Machine {
	return &Machine{
		store:    st,
		dir:      dir,
		dist:     dist,
		presence: presence,
		notifier: notifier,
		logger:   logger,
	}
}

// Handle routes one decoded event. Connect/disconnect/fail and their
// inbound variants share handling; the direction rides on the event.
func (m *Machine) Handle(event types.CallEvent) error {
	switch event.Kind {
	case types.EventConnect, types.EventInboundConnect:
		return m.Connect(event)
	case types.EventDisconnect, types.EventInboundDisconnect:
		return m.Disconnect(event)
	case types.EventFail, types.EventInboundFail:
		return m.Fail(event)
	default:
		// Ringing/progress/media carry no state change.
		m.logger.Info().
			Int("type", int(event.Kind)).
			Str("call_id", event.CallID).
			Str("channel", event.Channel).
			Msg("informational signaling event")
		return nil
	}
}

// Connect binds a visitor session to the agent behind the event's SIP
// account and opens a service record. No state is mutated until every
// precondition has passed.
func (m *Machine) Connect(event types.CallEvent) error {
	if event.From == "" || event.To == "" || event.CallID == "" {
		return fmt.Errorf("%w: connect requires from, to and uuid", ErrDecode)
	}
	if !validPhoneNumber(event.To) {
		return fmt.Errorf("%w: phone number %q must be 11 digits", ErrValidation, event.To)
	}

	source, ok := m.store.SessionSourceByChannel(event.Channel, event.Tenant)
	if !ok {
		return fmt.Errorf("%w: unknown channel %q", ErrDecode, event.Channel)
	}

	var plan types.Dialplan
	if event.DialplanID != "" {
		plan, ok = m.store.DialplanByID(event.DialplanID)
		if !ok {
			return fmt.Errorf("%w: dialplan %q", ErrUnknownReference, event.DialplanID)
		}
	}

	agent, err := m.resolveAgent(event.From)
	if err != nil {
		return err
	}

	var organName string
	if agent.OrganID != "" {
		if organ, ok := m.dir.OrganByID(agent.OrganID); ok {
			organName = organ.Name
		}
	}

	m.logger.Info().
		Str("sip", event.From).
		Str("phone", event.To).
		Str("agent", agent.Username).
		Str("channel", source.ID).
		Msg("bridging caller to agent")

	binding := m.online(event, agent, organName, plan)

	m.notifier.NotifyAgent(agent.ID, types.MessageKindNew, types.BridgeNotice{
		Type:     "bridge_connect",
		Phone:    event.To,
		UserID:   binding.UserID,
		Username: binding.Username,
		USession: binding.UserID,
		ToUser:   binding.UserID,
		Tenant:   binding.Tenant,
		CallType: event.Direction,
		Channel:  binding.Channel,
	})
	return nil
}

// online looks up or creates the visitor session, then creates the
// in-service binding and its open service record. The binding is written
// last so a concurrent sweep observes either nothing or the complete
// session+binding pair.
func (m *Machine) online(event types.CallEvent, agent types.Agent, organName string, plan types.Dialplan) types.AgentBinding {
	region := m.dir.ResolveRegion(event.To)

	session, found := m.store.FindSessionByPhone(event.To, event.Tenant)
	if !found {
		metrics.Get().RecordSessionOpened()
		id := uuid.New().String()
		session = types.OnlineSession{
			ID:        id,
			UserID:    id,
			Username:  "guest_" + id[:8],
			Phone:     event.To,
			Tenant:    event.Tenant,
			Channel:   event.Channel,
			Region:    region,
			CreatedAt: event.CreatedAt,
		}
	} else {
		session.Reactivated = true
		session.InvitationCount++
	}

	if contact, ok := m.store.FindContactByPhone(event.To, event.Tenant); ok {
		session.ContactRef = contact.ID
	}

	session.Status = types.SessionOnline
	session.LoginAt = event.CreatedAt
	session.UpdatedAt = event.CreatedAt
	m.store.SaveSession(session)
	m.presence.PutVisitor(session.Tenant, session)

	// The previous binding, if still in service, stays open: a second
	// accept from another device is allowed and stragglers are closed by
	// disconnect or by the sweep.
	if open := m.store.FindBindingsBySession(session.ID, types.BindingInService); len(open) > 0 {
		m.logger.Warn().
			Str("session_id", session.ID).
			Int("open_bindings", len(open)).
			Msg("connect while a binding is still in service")
	}

	bindingID := uuid.New().String()
	record := m.openServiceRecord(event, session, agent, organName, plan, region, bindingID)

	binding := types.AgentBinding{
		ID:               bindingID,
		SessionID:        session.ID,
		UserID:           session.ID,
		Username:         session.Username,
		AgentID:          agent.ID,
		AgentName:        agent.DisplayName,
		Status:           types.BindingInService,
		ServiceID:        record.ID,
		Channel:          event.Channel,
		Tenant:           event.Tenant,
		Phone:            event.To,
		Region:           fmt.Sprintf("%s [%s]", region.Province, event.To),
		Country:          region.Country,
		Province:         region.Province,
		City:             region.City,
		LoginAt:          event.CreatedAt,
		ServiceAt:        event.CreatedAt,
		LastMessageAt:    event.CreatedAt,
		LastAgentReplyAt: event.CreatedAt,
		UpdatedAt:        event.CreatedAt,
	}
	m.store.SaveBinding(binding)
	m.dist.MarkServing(agent.ID, binding.ID)

	if session.ContactRef != "" {
		m.store.SaveAgentContact(types.AgentContactRelation{
			ID:        uuid.New().String(),
			AgentID:   agent.ID,
			ContactID: session.ContactRef,
			ServiceID: record.ID,
			Tenant:    event.Tenant,
			CreatedAt: event.CreatedAt,
		})
	}

	m.logger.Info().
		Str("session_id", session.ID).
		Str("binding_id", binding.ID).
		Str("service_id", record.ID).
		Bool("reactivated", session.Reactivated).
		Msg("session bound to agent")
	return binding
}

// openServiceRecord opens the audit record for a new service.
func (m *Machine) openServiceRecord(event types.CallEvent, session types.OnlineSession, agent types.Agent, organName string, plan types.Dialplan, region types.RegionInfo, bindingID string) types.ServiceRecord {
	record := types.ServiceRecord{
		ID:         uuid.New().String(),
		ServiceID:  uuid.New().String(),
		BindingID:  bindingID,
		Status:     types.ServiceInCall,
		Direction:  event.Direction,
		CallClass:  types.CallOutsideLine,
		Called:     event.To,
		CallID:     event.CallID,
		Channel:    event.Channel,
		Tenant:     event.Tenant,
		OrganID:    agent.OrganID,
		OrganName:  organName,
		AgentID:    agent.ID,
		AgentName:  agent.DisplayName,
		ContactRef: session.ContactRef,
		Country:    region.Country,
		Province:   region.Province,
		City:       region.City,
		ISP:        region.ISP,
		AreaCode:   region.Code,
		Recording:  true,
		StartTime:  event.CreatedAt,
		DateKey:    event.CreatedAt.Format("2006-01-02"),
		HourKey:    event.CreatedAt.Format("15"),
		UpdatedAt:  event.CreatedAt,
	}
	if plan.ID != "" {
		record.DialplanID = plan.ID
	}
	m.store.SaveServiceRecord(record)
	return record
}

// Disconnect takes the visitor offline and finalizes every in-service
// binding of the session. A disconnect without a matching online session
// is reclassified as a fail event rather than dropped: the signaling
// layer loses and duplicates events, and the record must still be kept.
func (m *Machine) Disconnect(event types.CallEvent) error {
	if !validPhoneNumber(event.To) {
		return fmt.Errorf("%w: phone number %q must be 11 digits", ErrValidation, event.To)
	}

	if event.From != "" {
		agent, err := m.resolveAgent(event.From)
		if err != nil {
			return err
		}
		m.logger.Info().
			Str("sip", event.From).
			Str("agent", agent.Username).
			Str("phone", event.To).
			Msg("disconnect for agent")
	}

	session, ok := m.store.FindActiveSessionByPhone(event.To, event.Tenant)
	if !ok {
		m.logger.Info().
			Str("phone", event.To).
			Msg("disconnect without online session, falling back to fail handling")
		return m.Fail(event)
	}

	m.presence.Delete(session.Tenant, session.ID)
	session.Status = types.SessionOffline
	session.UpdatedAt = event.CreatedAt
	m.store.SaveSession(session)

	bindings := m.store.FindBindingsBySession(session.ID, types.BindingInService)
	if len(bindings) > 1 {
		// There should only be one record unless bad things happened;
		// close them all either way.
		m.logger.Warn().
			Str("session_id", session.ID).
			Int("bindings", len(bindings)).
			Msg("multiple in-service bindings on disconnect")
	}

	for _, binding := range bindings {
		// Close the record first so the recording reference survives;
		// FinalizeService's own record close then observes a no-op.
		if binding.ServiceID != "" {
			m.dist.CloseServiceRecord(binding.ServiceID, event.CreatedAt, event.RecordingRef)
		}
		m.dist.FinalizeService(binding, event.Tenant, event.CreatedAt)
	}
	return nil
}

// Fail records a terminal zero-duration service record from whatever
// subset of {from, to, dialplan} the event carries. Always succeeds for
// attributable events; an unknown campaign or ambiguous agent is fatal
// for the event because the record could not be attributed.
func (m *Machine) Fail(event types.CallEvent) error {
	record := types.ServiceRecord{
		ID:            uuid.New().String(),
		Status:        types.ServiceHangup,
		Direction:     event.Direction,
		CallClass:     types.CallOutsideLine,
		CallID:        event.CallID,
		Channel:       event.Channel,
		Tenant:        event.Tenant,
		RecordingFile: event.RecordingRef,
		StartTime:     event.CreatedAt,
		EndTime:       event.CreatedAt,
		Duration:      0,
		DateKey:       event.CreatedAt.Format("2006-01-02"),
		HourKey:       event.CreatedAt.Format("15"),
		UpdatedAt:     event.CreatedAt,
	}

	if event.DialplanID != "" {
		plan, ok := m.store.DialplanByID(event.DialplanID)
		if !ok {
			return fmt.Errorf("%w: dialplan %q", ErrUnknownReference, event.DialplanID)
		}
		record.DialplanID = plan.ID
		record.OrganID = plan.OrganID
		record.OrganName = plan.OrganName
		record.Channel = plan.VoiceChannel
	}

	if event.From != "" {
		agent, err := m.resolveAgent(event.From)
		if err != nil {
			return err
		}
		record.AgentID = agent.ID
		record.AgentName = agent.DisplayName
	}

	if event.To != "" {
		region := m.dir.ResolveRegion(event.To)
		record.Called = event.To
		record.Country = region.Country
		record.Province = region.Province
		record.City = region.City
		record.ISP = region.ISP
		record.AreaCode = region.Code
	}

	m.store.SaveServiceRecord(record)
	m.dist.Archive(record)

	m.logger.Info().
		Str("record_id", record.ID).
		Str("call_id", event.CallID).
		Str("dialplan", event.DialplanID).
		Msg("failed call recorded")
	return nil
}

// resolveAgent maps a signaling account to exactly one agent. Zero or
// multiple matches mean the directory is in an ambiguous state and the
// event must not silently proceed.
func (m *Machine) resolveAgent(sipAccount string) (types.Agent, error) {
	agents := m.dir.ResolveAgentsBySipAccount(sipAccount)
	switch len(agents) {
	case 1:
		return agents[0], nil
	case 0:
		return types.Agent{}, fmt.Errorf("%w: no agent for sip account %q", ErrAmbiguousDirectory, sipAccount)
	default:
		return types.Agent{}, fmt.Errorf("%w: %d agents for sip account %q", ErrAmbiguousDirectory, len(agents), sipAccount)
	}
}
