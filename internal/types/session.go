package types

import "time"

// SessionStatus is the presence state of a visitor session.
type SessionStatus string

const (
	SessionOnline  SessionStatus = "online"
	SessionOffline SessionStatus = "offline"
)

// RegionInfo is the region metadata derived from a phone number.
type RegionInfo struct {
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
	ISP      string `json:"isp"`
	Code     string `json:"code"` // area code
}

// OnlineSession is a visitor's live presence record. Keyed by ID, natural
// key (Phone, Tenant). Never hard-deleted; status flips to offline instead.
type OnlineSession struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userid"`
	Username        string        `json:"username"`
	Phone           string        `json:"phone"`
	Tenant          string        `json:"orgi"`
	Channel         string        `json:"channel"` // session source (app id)
	Status          SessionStatus `json:"status"`
	Region          RegionInfo    `json:"region"`
	InvitationCount int           `json:"invitetimes"`
	Reactivated     bool          `json:"olduser"` // seen before, re-activated
	ContactRef      string        `json:"contactsid,omitempty"`
	LoginAt         time.Time     `json:"logintime"`
	CreatedAt       time.Time     `json:"createtime"`
	UpdatedAt       time.Time     `json:"updatetime"`
}

// SessionSource is a tenant-scoped channel a session may originate from.
// Lookup failure during connect is a fatal decode condition.
type SessionSource struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tenant    string `json:"orgi"`
	TraceUser bool   `json:"traceuser"` // durable presence tracking enabled
}

// Contact is a known person matched by phone number and linked to sessions.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Tenant string `json:"orgi"`
}

// AgentContactRelation records that an agent served a known contact,
// written once per service that links a contact.
type AgentContactRelation struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentno"`
	ContactID string    `json:"contactsid"`
	ServiceID string    `json:"agentserviceid"`
	Tenant    string    `json:"orgi"`
	CreatedAt time.Time `json:"createtime"`
}

// AssistantSession is an AI-assistant conversation sharing the presence
// cache with visitor sessions. Evicted by its own ask-window policy.
type AssistantSession struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userid"`
	AssistantID  string    `json:"aiid"`
	Tenant       string    `json:"orgi"`
	LastActiveAt time.Time `json:"lastactive"`
}
