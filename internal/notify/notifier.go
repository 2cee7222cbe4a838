// Package notify delivers engine notifications to connected agent
// consoles over websocket. Delivery is best-effort and at-most-once: a
// disconnected agent is logged and skipped, never retried, and a failed
// send never rolls back the state transition that produced it.
package notify

import "github.com/renxuetao/cskefu/internal/types"

// Notifier is the outbound notification contract used by the state
// machine and the sweep loops.
type Notifier interface {
	// NotifyAgent sends a payload to one agent. Returns false when the
	// agent has no live connection.
	NotifyAgent(agentID string, kind types.MessageKind, payload any) bool
}

// envelope is the frame written to the agent console socket.
type envelope struct {
	Kind types.MessageKind `json:"kind"`
	Body any               `json:"body"`
}
