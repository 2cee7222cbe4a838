package types

import "time"

// EventKind is the numeric event selector carried by the signaling wire.
type EventKind int

const (
	EventConnect           EventKind = 1
	EventDisconnect        EventKind = 2
	EventFail              EventKind = 3
	EventInboundConnect    EventKind = 4
	EventInboundDisconnect EventKind = 5
	EventInboundFail       EventKind = 6
	EventRinging           EventKind = 7
	EventProgress          EventKind = 8
	EventMedia             EventKind = 9
)

// Informational reports whether the kind requires no state change.
func (k EventKind) Informational() bool {
	return k == EventRinging || k == EventProgress || k == EventMedia
}

// Direction distinguishes outbound campaign calls from inbound ones.
type Direction string

const (
	DirectionOut Direction = "out"
	DirectionIn  Direction = "in"
)

// DirectionFor maps an event kind to its call direction. The inbound
// variants (4-6) share handling with 1-3, only the direction differs.
func DirectionFor(k EventKind) Direction {
	if k >= EventInboundConnect && k <= EventInboundFail {
		return DirectionIn
	}
	return DirectionOut
}

// CallEvent is a decoded signaling payload from the telephony layer.
type CallEvent struct {
	Kind         EventKind `json:"type"`
	From         string    `json:"from,omitempty"` // SIP-style signaling account
	To           string    `json:"to"`             // visitor phone number
	Ops          string    `json:"ops"`
	Channel      string    `json:"channel"` // tenant-scoped session source
	DialplanID   string    `json:"dialplan,omitempty"`
	CallID       string    `json:"uuid,omitempty"` // telephony call identifier
	Status       string    `json:"status,omitempty"`
	RecordingRef string    `json:"record,omitempty"`
	CreatedAt    time.Time `json:"createtime"`
	Tenant       string    `json:"orgi,omitempty"`
	Direction    Direction `json:"direction,omitempty"`
}
