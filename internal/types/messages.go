package types

import "time"

// MessageKind selects the envelope type on the agent notification channel.
type MessageKind string

const (
	MessageKindNew     MessageKind = "new"     // new session bound to agent
	MessageKindMessage MessageKind = "message" // chat/system notice
)

// BridgeNotice tells an agent a caller was bridged to them. Field names
// match the wire shape the agent console expects.
type BridgeNotice struct {
	Type     string    `json:"type"`
	Phone    string    `json:"phone"`
	UserID   string    `json:"userid"`
	Username string    `json:"username"`
	USession string    `json:"usession"`
	ToUser   string    `json:"touser"`
	Tenant   string    `json:"orgi"`
	CallType Direction `json:"calltype"`
	Channel  string    `json:"channel"`
}

// ChatNotice is a system text message pushed to an agent, used by the
// sweep loops for timeout warnings and finalization notices.
type ChatNotice struct {
	ID        string    `json:"id"`
	Channel   string    `json:"appid"`
	UserID    string    `json:"userid"`
	USession  string    `json:"usession"`
	ToUser    string    `json:"touser"`
	Tenant    string    `json:"orgi"`
	Username  string    `json:"username"` // sender display name
	Message   string    `json:"message"`
	ServiceID string    `json:"agentserviceid,omitempty"`
	CallType  Direction `json:"calltype"`
	CreatedAt time.Time `json:"createtime"`
}

// AgentRegister is the first frame an agent console sends after the
// websocket upgrade, claiming its agent identity.
type AgentRegister struct {
	Type    string `json:"type"` // "register"
	AgentID string `json:"agentId"`
	Tenant  string `json:"orgi,omitempty"`
}

// ServerAck acknowledges a register frame.
type ServerAck struct {
	Type    string `json:"type"` // "ack"
	AgentID string `json:"agentId"`
}
