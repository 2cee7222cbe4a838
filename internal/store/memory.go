package store

import (
	"sort"
	"sync"
	"time"

	"github.com/renxuetao/cskefu/internal/types"
)

// MemoryStore is the in-process Store implementation. All maps are guarded
// by one RWMutex; values are copied in and out so callers never share
// memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]types.OnlineSession
	bindings map[string]types.AgentBinding
	records  map[string]types.ServiceRecord
	sources  map[string]types.SessionSource // key channel|tenant
	contacts map[string]types.Contact       // key phone|tenant
	agentRel map[string]types.AgentContactRelation
	plans    map[string]types.Dialplan
	jobs     map[string]types.Job
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]types.OnlineSession),
		bindings: make(map[string]types.AgentBinding),
		records:  make(map[string]types.ServiceRecord),
		sources:  make(map[string]types.SessionSource),
		contacts: make(map[string]types.Contact),
		agentRel: make(map[string]types.AgentContactRelation),
		plans:    make(map[string]types.Dialplan),
		jobs:     make(map[string]types.Job),
	}
}

func key2(a, b string) string { return a + "|" + b }

func (s *MemoryStore) SessionByID(id string) (types.OnlineSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *MemoryStore) FindSessionByPhone(phone, tenant string) (types.OnlineSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Phone == phone && sess.Tenant == tenant {
			return sess, true
		}
	}
	return types.OnlineSession{}, false
}

func (s *MemoryStore) FindActiveSessionByPhone(phone, tenant string) (types.OnlineSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Phone == phone && sess.Tenant == tenant && sess.Status == types.SessionOnline {
			return sess, true
		}
	}
	return types.OnlineSession{}, false
}

func (s *MemoryStore) SaveSession(sess types.OnlineSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *MemoryStore) FindSessionsOnlineBefore(cutoff time.Time, limit int) []types.OnlineSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.OnlineSession
	for _, sess := range s.sessions {
		if sess.Status == types.SessionOnline && sess.CreatedAt.Before(cutoff) {
			out = append(out, sess)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (s *MemoryStore) FindSessionsByUser(userID, tenant string) []types.OnlineSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.OnlineSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Tenant == tenant {
			out = append(out, sess)
		}
	}
	return out
}

func (s *MemoryStore) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *MemoryStore) BindingByID(id string) (types.AgentBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[id]
	return b, ok
}

func (s *MemoryStore) SaveBinding(b types.AgentBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A closed binding is terminal. Drop writes that would resurrect one.
	if cur, ok := s.bindings[b.ID]; ok && cur.Status == types.BindingClosed {
		return
	}
	s.bindings[b.ID] = b
}

func (s *MemoryStore) FindBindingsBySession(sessionID string, status types.BindingStatus) []types.AgentBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AgentBinding
	for _, b := range s.bindings {
		if b.SessionID == sessionID && b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

func (s *MemoryStore) FindBindingsByStatus(tenant string, status types.BindingStatus) []types.AgentBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AgentBinding
	for _, b := range s.bindings {
		if b.Tenant == tenant && b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

func (s *MemoryStore) FindBindingsIdleSince(tenant string, cutoff time.Time) []types.AgentBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AgentBinding
	for _, b := range s.bindings {
		if b.Tenant == tenant && b.Status == types.BindingInService && b.LastMessageAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

func (s *MemoryStore) FindBindingsReplyIdleSince(tenant string, cutoff time.Time) []types.AgentBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AgentBinding
	for _, b := range s.bindings {
		if b.Tenant == tenant && b.Status == types.BindingInService && b.LastAgentReplyAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

func (s *MemoryStore) FindBindingsQueuedSince(tenant string, cutoff time.Time) []types.AgentBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AgentBinding
	for _, b := range s.bindings {
		if b.Tenant == tenant && b.Status == types.BindingInQueue && b.LoginAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

func (s *MemoryStore) CloseBinding(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[id]
	if !ok || b.Status == types.BindingClosed {
		return false
	}
	b.Status = types.BindingClosed
	b.UpdatedAt = at
	s.bindings[id] = b
	return true
}

func (s *MemoryStore) ServiceRecordByID(id string) (types.ServiceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *MemoryStore) FindServiceRecordByBinding(bindingID string) (types.ServiceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.BindingID == bindingID {
			return r, true
		}
	}
	return types.ServiceRecord{}, false
}

func (s *MemoryStore) SaveServiceRecord(r types.ServiceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

func (s *MemoryStore) CloseServiceRecord(id string, endTime time.Time, recordingFile string) (types.ServiceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Closed() {
		return r, false
	}

	r.Status = types.ServiceHangup
	r.EndTime = endTime
	if recordingFile != "" {
		r.RecordingFile = recordingFile
	}
	dur := int(endTime.Sub(r.StartTime) / time.Second)
	if dur < 0 {
		dur = 0
	}
	r.Duration = dur
	r.UpdatedAt = endTime
	s.records[id] = r
	return r, true
}

func (s *MemoryStore) SessionSourceByChannel(channel, tenant string) (types.SessionSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[key2(channel, tenant)]
	return src, ok
}

func (s *MemoryStore) SaveSessionSource(src types.SessionSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[key2(src.ID, src.Tenant)] = src
}

func (s *MemoryStore) FindContactByPhone(phone, tenant string) (types.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[key2(phone, tenant)]
	return c, ok
}

func (s *MemoryStore) SaveContact(c types.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[key2(c.Phone, c.Tenant)] = c
}

func (s *MemoryStore) SaveAgentContact(rel types.AgentContactRelation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentRel[rel.ID] = rel
}

func (s *MemoryStore) AgentContactsByAgent(agentID, tenant string) []types.AgentContactRelation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AgentContactRelation
	for _, rel := range s.agentRel {
		if rel.AgentID == agentID && rel.Tenant == tenant {
			out = append(out, rel)
		}
	}
	return out
}

func (s *MemoryStore) DialplanByID(id string) (types.Dialplan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.plans[id]
	return d, ok
}

func (s *MemoryStore) SaveDialplan(d types.Dialplan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[d.ID] = d
}

func (s *MemoryStore) JobByID(id string) (types.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *MemoryStore) FindReadyJobs(limit int) []types.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Job
	for _, j := range s.jobs {
		if j.Status == types.JobReady {
			out = append(out, j)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (s *MemoryStore) FindDuePlannedJobs(now time.Time, limit int) []types.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Job
	for _, j := range s.jobs {
		if j.Planned && j.Status == types.JobNormal && j.NextFireAt.Before(now) {
			out = append(out, j)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (s *MemoryStore) SaveJob(j types.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

func (s *MemoryStore) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, src := range s.sources {
		seen[src.Tenant] = struct{}{}
	}
	for _, sess := range s.sessions {
		seen[sess.Tenant] = struct{}{}
	}
	for _, b := range s.bindings {
		seen[b.Tenant] = struct{}{}
	}

	tenants := make([]string, 0, len(seen))
	for t := range seen {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants
}
