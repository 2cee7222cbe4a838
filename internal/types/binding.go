package types

import "time"

// BindingStatus is the lifecycle state of an agent binding.
type BindingStatus string

const (
	BindingInService BindingStatus = "inservice"
	BindingInQueue   BindingStatus = "inqueue"
	BindingClosed    BindingStatus = "closed"
)

// AgentBinding ties one OnlineSession to one agent for the duration of a
// service. Closed is terminal; a new connect creates a fresh binding.
type AgentBinding struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionid"`
	UserID    string        `json:"userid"` // visitor id (== session id)
	Username  string        `json:"username"`
	AgentID   string        `json:"agentno"`
	AgentName string        `json:"agentname,omitempty"`
	Status    BindingStatus `json:"status"`
	ServiceID string        `json:"agentserviceid"` // active ServiceRecord
	Channel   string        `json:"channel"`
	Tenant    string        `json:"orgi"`
	Phone     string        `json:"phone"`
	Region    string        `json:"region,omitempty"`
	Country   string        `json:"country,omitempty"`
	Province  string        `json:"province,omitempty"`
	City      string        `json:"city,omitempty"`

	LoginAt          time.Time `json:"logindate"`
	ServiceAt        time.Time `json:"servicetime"`
	LastMessageAt    time.Time `json:"lastmessage"`    // last visitor activity
	LastAgentReplyAt time.Time `json:"lastgetmessage"` // last agent reply
	UpdatedAt        time.Time `json:"updatetime"`

	// Sweep bookkeeping. A binding is warned at most once per concern;
	// the re-timeout is measured from IdleWarnedAt.
	IdleWarned    bool       `json:"idlewarned"`
	IdleWarnedAt  *time.Time `json:"idlewarnedat,omitempty"`
	ReplyWarned   bool       `json:"replywarned"`
	ReplyWarnedAt *time.Time `json:"replywarnedat,omitempty"`
	TimeoutCount  int        `json:"timeouttimes"`
}
