// Package store holds the durable session state: online sessions, agent
// bindings, service records, and the campaign/job tables. The event path
// and the sweep loops coordinate exclusively through it, so every status
// transition that must happen at most once is a conditional write here.
package store

import (
	"time"

	"github.com/renxuetao/cskefu/internal/types"
)

// Store is the session store contract. Implementations must make
// CloseBinding and CloseServiceRecord atomic check-and-set operations:
// concurrent close attempts yield exactly one winner, losers see false.
type Store interface {
	// Sessions.
	SessionByID(id string) (types.OnlineSession, bool)
	FindSessionByPhone(phone, tenant string) (types.OnlineSession, bool)
	FindActiveSessionByPhone(phone, tenant string) (types.OnlineSession, bool)
	SaveSession(s types.OnlineSession)
	FindSessionsOnlineBefore(cutoff time.Time, limit int) []types.OnlineSession
	FindSessionsByUser(userID, tenant string) []types.OnlineSession
	DeleteSession(id string)

	// Bindings.
	BindingByID(id string) (types.AgentBinding, bool)
	SaveBinding(b types.AgentBinding)
	FindBindingsBySession(sessionID string, status types.BindingStatus) []types.AgentBinding
	FindBindingsByStatus(tenant string, status types.BindingStatus) []types.AgentBinding
	FindBindingsIdleSince(tenant string, cutoff time.Time) []types.AgentBinding
	FindBindingsReplyIdleSince(tenant string, cutoff time.Time) []types.AgentBinding
	FindBindingsQueuedSince(tenant string, cutoff time.Time) []types.AgentBinding
	// CloseBinding flips in-service/in-queue to closed. Returns false if
	// the binding is unknown or already closed.
	CloseBinding(id string, at time.Time) bool

	// Service records.
	ServiceRecordByID(id string) (types.ServiceRecord, bool)
	FindServiceRecordByBinding(bindingID string) (types.ServiceRecord, bool)
	SaveServiceRecord(r types.ServiceRecord)
	// CloseServiceRecord sets hangup/endtime/duration once. Returns the
	// closed record and false if it was already closed or unknown.
	CloseServiceRecord(id string, endTime time.Time, recordingFile string) (types.ServiceRecord, bool)

	// Session sources, contacts, campaigns, jobs.
	SessionSourceByChannel(channel, tenant string) (types.SessionSource, bool)
	SaveSessionSource(s types.SessionSource)
	FindContactByPhone(phone, tenant string) (types.Contact, bool)
	SaveContact(c types.Contact)
	SaveAgentContact(rel types.AgentContactRelation)
	AgentContactsByAgent(agentID, tenant string) []types.AgentContactRelation
	DialplanByID(id string) (types.Dialplan, bool)
	SaveDialplan(d types.Dialplan)
	JobByID(id string) (types.Job, bool)
	FindReadyJobs(limit int) []types.Job
	FindDuePlannedJobs(now time.Time, limit int) []types.Job
	SaveJob(j types.Job)

	// Tenants returns every tenant that currently has state, for the
	// sweep loops to iterate.
	Tenants() []string
}
