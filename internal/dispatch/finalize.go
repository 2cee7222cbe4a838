package dispatch

import (
	"sync"
	"time"

	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/renxuetao/cskefu/internal/types"
	"github.com/rs/zerolog"
)

// Archiver receives closed service records for durable reporting storage.
type Archiver interface {
	SaveServiceRecord(r types.ServiceRecord) error
}

// Dist is the automatic service distribution policy. The event path and
// the sweep loops both call FinalizeService for the same bindings; the
// store's conditional close guarantees exactly one of them wins.
type Dist struct {
	store    store.Store
	policies *PolicyStore
	presence *cache.PresenceCache
	archive  Archiver
	logger   zerolog.Logger

	mu   sync.Mutex
	busy map[string]string // agentID -> bindingID currently served
}

// NewDist creates the distribution policy.
func NewDist(st store.Store, policies *PolicyStore, presence *cache.PresenceCache, archive Archiver, logger zerolog.Logger) *Dist {
	return &Dist{
		store:    st,
		policies: policies,
		presence: presence,
		archive:  archive,
		logger:   logger,
		busy:     make(map[string]string),
	}
}

// MarkServing records that an agent is serving a binding.
func (d *Dist) MarkServing(agentID, bindingID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy[agentID] = bindingID
}

// Serving returns the binding an agent is currently bound to, if any.
func (d *Dist) Serving(agentID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.busy[agentID]
	return id, ok
}

// FinalizeService closes a binding and its open service record, and
// releases the agent for reassignment. Idempotent: finalizing an
// already-closed binding is a no-op, not an error. Safe to call
// concurrently for the same binding; only the status CAS winner performs
// the side effects.
func (d *Dist) FinalizeService(binding types.AgentBinding, tenant string, at time.Time) bool {
	if !d.store.CloseBinding(binding.ID, at) {
		metrics.Get().RecordServiceFinalized(false)
		d.logger.Debug().
			Str("binding_id", binding.ID).
			Str("tenant", tenant).
			Msg("binding already closed, finalize is a no-op")
		return false
	}
	metrics.Get().RecordServiceFinalized(true)

	if binding.ServiceID != "" {
		if record, closed := d.store.CloseServiceRecord(binding.ServiceID, at, ""); closed {
			d.archiveRecord(record)
		}
	}

	d.mu.Lock()
	if cur, ok := d.busy[binding.AgentID]; ok && cur == binding.ID {
		delete(d.busy, binding.AgentID)
	}
	d.mu.Unlock()

	d.presence.Delete(tenant, binding.SessionID)

	d.logger.Info().
		Str("binding_id", binding.ID).
		Str("agent_id", binding.AgentID).
		Str("tenant", tenant).
		Msg("service finalized, agent released")
	return true
}

// CloseServiceRecord closes a record with an explicit end time and
// recording reference, archiving it on success. Used by the disconnect
// path, which carries the recording file the finalize path does not.
func (d *Dist) CloseServiceRecord(serviceID string, endTime time.Time, recordingFile string) bool {
	record, closed := d.store.CloseServiceRecord(serviceID, endTime, recordingFile)
	if !closed {
		return false
	}
	d.archiveRecord(record)
	return true
}

// Archive pushes an already-terminal record to the reporting archive.
// Fail events produce records that are born closed and never pass
// through CloseServiceRecord.
func (d *Dist) Archive(record types.ServiceRecord) {
	d.archiveRecord(record)
}

// ResolveTimeoutPolicy returns the tenant's timeout configuration.
func (d *Dist) ResolveTimeoutPolicy(tenant string) (types.SessionTimeoutPolicy, bool) {
	return d.policies.Resolve(tenant)
}

func (d *Dist) archiveRecord(record types.ServiceRecord) {
	if d.archive == nil {
		return
	}
	// Archive failures must not affect the transition that produced the
	// record; the store copy stays authoritative.
	go func() {
		err := d.archive.SaveServiceRecord(record)
		metrics.Get().RecordArchive(err)
		if err != nil {
			d.logger.Error().Err(err).
				Str("record_id", record.ID).
				Msg("failed to archive service record")
		}
	}()
}
