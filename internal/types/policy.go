package types

import "time"

// SessionTimeoutPolicy is per-tenant timeout configuration. Owned by
// configuration management; read-only to the engine and re-read every
// sweep cycle so operators can tune values without restart.
type SessionTimeoutPolicy struct {
	Tenant      string `json:"orgi"`
	ServiceName string `json:"servicename"` // sender name on system notices

	SessionTimeout bool          `json:"sessiontimeout"`
	IdleTimeout    time.Duration `json:"timeout"`
	IdleMessage    string        `json:"timeoutmsg"`

	ResessionTimeout bool          `json:"resessiontimeout"`
	ReTimeout        time.Duration `json:"retimeout"`
	ReTimeoutMessage string        `json:"retimeoutmsg"`

	AgentReplyTimeout   bool          `json:"agentreplytimeout"`
	AgentTimeout        time.Duration `json:"agenttimeout"`
	AgentTimeoutMessage string        `json:"agenttimeoutmsg"`

	QueueTimeout        bool          `json:"quenetimeout"`
	QueueMax            time.Duration `json:"quenemax"`
	QueueTimeoutMessage string        `json:"quenetimeoutmsg"`
}

// AssistantPolicy bounds how long an assistant session may sit idle.
type AssistantPolicy struct {
	Tenant    string        `json:"orgi"`
	AskWindow time.Duration `json:"asktimes"` // zero disables eviction
}
