package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all engine metrics
type Metrics struct {
	mu sync.RWMutex

	// Signaling metrics
	EventsConsumedTotal int64
	EventsFailedTotal   int64
	EventsDroppedTotal  int64 // undecodable payloads
	eventsByKind        map[int]int64

	// Lifecycle metrics
	SessionsOpenedTotal    int64
	ServicesFinalizedTotal int64
	FinalizeNoopsTotal     int64 // lost the close race
	RecordsArchivedTotal   int64
	ArchiveErrorsTotal     int64

	// Sweep metrics
	SweepCyclesTotal     int64
	SweepFailuresTotal   int64
	TimeoutWarningsTotal int64
	StaleEvictionsTotal  int64

	// Notification metrics
	NotificationsSentTotal    int64
	NotificationsDroppedTotal int64

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			eventsByKind: make(map[int]int64),
			startTime:    time.Now(),
		}
	})
	return instance
}

// RecordEventConsumed counts one handled signaling event by kind
func (m *Metrics) RecordEventConsumed(kind int) {
	m.mu.Lock()
	m.EventsConsumedTotal++
	m.eventsByKind[kind]++
	m.mu.Unlock()
}

// RecordEventFailed counts one event that failed handling
func (m *Metrics) RecordEventFailed() {
	m.mu.Lock()
	m.EventsFailedTotal++
	m.mu.Unlock()
}

// RecordEventDropped counts one undecodable payload
func (m *Metrics) RecordEventDropped() {
	m.mu.Lock()
	m.EventsDroppedTotal++
	m.mu.Unlock()
}

// RecordSessionOpened counts one new visitor session
func (m *Metrics) RecordSessionOpened() {
	m.mu.Lock()
	m.SessionsOpenedTotal++
	m.mu.Unlock()
}

// RecordServiceFinalized counts a finalize, won or lost
func (m *Metrics) RecordServiceFinalized(won bool) {
	m.mu.Lock()
	if won {
		m.ServicesFinalizedTotal++
	} else {
		m.FinalizeNoopsTotal++
	}
	m.mu.Unlock()
}

// RecordArchive counts one archive attempt
func (m *Metrics) RecordArchive(err error) {
	m.mu.Lock()
	if err != nil {
		m.ArchiveErrorsTotal++
	} else {
		m.RecordsArchivedTotal++
	}
	m.mu.Unlock()
}

// RecordSweepCycle counts one sweep iteration
func (m *Metrics) RecordSweepCycle() {
	m.mu.Lock()
	m.SweepCyclesTotal++
	m.mu.Unlock()
}

// RecordSweepFailure counts one isolated sweep failure
func (m *Metrics) RecordSweepFailure() {
	m.mu.Lock()
	m.SweepFailuresTotal++
	m.mu.Unlock()
}

// RecordTimeoutWarning counts one timeout notice sent by a sweep
func (m *Metrics) RecordTimeoutWarning() {
	m.mu.Lock()
	m.TimeoutWarningsTotal++
	m.mu.Unlock()
}

// RecordStaleEvictions counts sessions flipped offline by the eviction sweep
func (m *Metrics) RecordStaleEvictions(n int) {
	m.mu.Lock()
	m.StaleEvictionsTotal += int64(n)
	m.mu.Unlock()
}

// RecordNotification counts one agent notification attempt
func (m *Metrics) RecordNotification(delivered bool) {
	m.mu.Lock()
	if delivered {
		m.NotificationsSentTotal++
	} else {
		m.NotificationsDroppedTotal++
	}
	m.mu.Unlock()
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("engine_uptime_seconds", time.Since(m.startTime).Seconds())

		// Signaling metrics
		write("engine_events_consumed_total", m.EventsConsumedTotal)
		write("engine_events_failed_total", m.EventsFailedTotal)
		write("engine_events_dropped_total", m.EventsDroppedTotal)
		for kind, count := range m.eventsByKind {
			write("engine_events_by_kind", count, "kind", strconv.Itoa(kind))
		}

		// Calculate events per second
		uptimeSeconds := time.Since(m.startTime).Seconds()
		if uptimeSeconds > 0 {
			write("engine_events_per_second", float64(m.EventsConsumedTotal)/uptimeSeconds)
		}

		// Lifecycle metrics
		write("engine_sessions_opened_total", m.SessionsOpenedTotal)
		write("engine_services_finalized_total", m.ServicesFinalizedTotal)
		write("engine_finalize_noops_total", m.FinalizeNoopsTotal)
		write("engine_records_archived_total", m.RecordsArchivedTotal)
		write("engine_archive_errors_total", m.ArchiveErrorsTotal)

		// Sweep metrics
		write("engine_sweep_cycles_total", m.SweepCyclesTotal)
		write("engine_sweep_failures_total", m.SweepFailuresTotal)
		write("engine_timeout_warnings_total", m.TimeoutWarningsTotal)
		write("engine_stale_evictions_total", m.StaleEvictionsTotal)

		// Notification metrics
		write("engine_notifications_sent_total", m.NotificationsSentTotal)
		write("engine_notifications_dropped_total", m.NotificationsDroppedTotal)
	}
}
