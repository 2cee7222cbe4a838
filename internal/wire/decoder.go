// Package wire consumes decoded telephony signaling events and drives
// session, binding, and service-record transitions.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/renxuetao/cskefu/internal/types"
)

// rawEvent is the wire shape published by the voice gateway. The
// createtime field is epoch milliseconds.
type rawEvent struct {
	Type       *int    `json:"type"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Ops        *string `json:"ops"`
	Channel    string  `json:"channel"`
	Dialplan   string  `json:"dialplan"`
	UUID       string  `json:"uuid"`
	Status     string  `json:"status"`
	Record     string  `json:"record"`
	CreateTime *int64  `json:"createtime"`
	Tenant     string  `json:"orgi"`
}

// Decode parses a signaling payload into a CallEvent. Missing required
// fields (type, to, ops, channel, createtime) or an unknown event kind
// yield ErrDecode; such messages are dropped without retry.
func Decode(payload []byte) (types.CallEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return types.CallEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if raw.Type == nil || raw.To == "" || raw.Ops == nil || raw.Channel == "" || raw.CreateTime == nil {
		return types.CallEvent{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}

	kind := types.EventKind(*raw.Type)
	if kind < types.EventConnect || kind > types.EventMedia {
		return types.CallEvent{}, fmt.Errorf("%w: unknown event type %d", ErrDecode, *raw.Type)
	}

	tenant := raw.Tenant
	if tenant == "" {
		tenant = types.SystemTenant
	}

	return types.CallEvent{
		Kind:         kind,
		From:         raw.From,
		To:           raw.To,
		Ops:          *raw.Ops,
		Channel:      raw.Channel,
		DialplanID:   raw.Dialplan,
		CallID:       raw.UUID,
		Status:       raw.Status,
		RecordingRef: raw.Record,
		CreatedAt:    time.UnixMilli(*raw.CreateTime).UTC(),
		Tenant:       tenant,
		Direction:    types.DirectionFor(kind),
	}, nil
}

// validPhoneNumber reports whether the visitor number is exactly 11
// digits, the only shape the voice gateway hands out.
func validPhoneNumber(phone string) bool {
	if len(phone) != 11 {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
