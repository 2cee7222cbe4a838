package types

import "time"

// DialplanStatus is the run state of an outbound campaign.
type DialplanStatus string

const (
	DialplanStopped DialplanStatus = "stopped"
	DialplanRunning DialplanStatus = "running"
)

// Dialplan is an outbound-calling campaign definition. Fail/connect events
// from outbound lines reference it by id.
type Dialplan struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Tenant       string         `json:"orgi"`
	OrganID      string         `json:"organid"`
	OrganName    string         `json:"organ"`
	VoiceChannel string         `json:"voicechannel"` // voice gateway base URL
	Status       DialplanStatus `json:"status"`
	Archived     bool           `json:"isarchive"`

	// Concurrency quota: ceil(agents in organ * ConcurrenceRatio).
	ConcurrenceRatio float64 `json:"concurrenceratio"`
	CurConcurrence   int     `json:"curconcurrence"`
	Executed         int     `json:"executed"`

	UpdatedAt time.Time `json:"updatetime"`
}

// JobStatus is the dispatch state of a queued outbound job.
type JobStatus string

const (
	JobReady  JobStatus = "ready"
	JobNormal JobStatus = "normal" // planned, waiting for its fire time
	JobQueued JobStatus = "queued"
	JobDone   JobStatus = "done" // one-shot planned job that already fired
)

// Job is a queued outbound-campaign work item picked up by the job
// dispatch sweep and handed to the worker pool. A planned job with a
// fire interval repeats; without one it fires once and is done.
type Job struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Tenant       string        `json:"orgi"`
	DialplanID   string        `json:"dialplan"`
	Status       JobStatus     `json:"taskstatus"`
	Planned      bool          `json:"plantask"`
	NextFireAt   time.Time     `json:"nextfiretime"`
	FireInterval time.Duration `json:"fireinterval,omitempty"`
}
