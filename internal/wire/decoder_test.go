package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/renxuetao/cskefu/internal/types"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(*testing.T, types.CallEvent)
	}{
		{
			name:    "valid connect event",
			payload: `{"type":1,"from":"1001","to":"13912345678","ops":"bridge","channel":"app-1","uuid":"call-1","createtime":1700000000000}`,
			check: func(t *testing.T, e types.CallEvent) {
				if e.Kind != types.EventConnect {
					t.Errorf("expected kind %d, got %d", types.EventConnect, e.Kind)
				}
				if e.Direction != types.DirectionOut {
					t.Errorf("expected outbound direction, got %s", e.Direction)
				}
				if e.CallID != "call-1" {
					t.Errorf("expected call id call-1, got %s", e.CallID)
				}
				want := time.UnixMilli(1700000000000).UTC()
				if !e.CreatedAt.Equal(want) {
					t.Errorf("expected createtime %v, got %v", want, e.CreatedAt)
				}
			},
		},
		{
			name:    "missing tenant defaults to system tenant",
			payload: `{"type":2,"to":"13912345678","ops":"hangup","channel":"app-1","createtime":1700000000000}`,
			check: func(t *testing.T, e types.CallEvent) {
				if e.Tenant != types.SystemTenant {
					t.Errorf("expected tenant %s, got %s", types.SystemTenant, e.Tenant)
				}
			},
		},
		{
			name:    "explicit tenant kept",
			payload: `{"type":2,"to":"13912345678","ops":"hangup","channel":"app-1","createtime":1700000000000,"orgi":"acme"}`,
			check: func(t *testing.T, e types.CallEvent) {
				if e.Tenant != "acme" {
					t.Errorf("expected tenant acme, got %s", e.Tenant)
				}
			},
		},
		{
			name:    "inbound kind gets inbound direction",
			payload: `{"type":4,"to":"13912345678","ops":"bridge","channel":"app-1","createtime":1700000000000}`,
			check: func(t *testing.T, e types.CallEvent) {
				if e.Direction != types.DirectionIn {
					t.Errorf("expected inbound direction, got %s", e.Direction)
				}
			},
		},
		{
			name:    "zero type is rejected, not treated as missing default",
			payload: `{"type":0,"to":"13912345678","ops":"x","channel":"app-1","createtime":1700000000000}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			payload: `{"to":"13912345678","ops":"x","channel":"app-1","createtime":1700000000000}`,
			wantErr: true,
		},
		{
			name:    "missing to",
			payload: `{"type":1,"ops":"x","channel":"app-1","createtime":1700000000000}`,
			wantErr: true,
		},
		{
			name:    "missing ops",
			payload: `{"type":1,"to":"13912345678","channel":"app-1","createtime":1700000000000}`,
			wantErr: true,
		},
		{
			name:    "missing channel",
			payload: `{"type":1,"to":"13912345678","ops":"x","createtime":1700000000000}`,
			wantErr: true,
		},
		{
			name:    "missing createtime",
			payload: `{"type":1,"to":"13912345678","ops":"x","channel":"app-1"}`,
			wantErr: true,
		},
		{
			name:    "kind out of range",
			payload: `{"type":10,"to":"13912345678","ops":"x","channel":"app-1","createtime":1700000000000}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			payload: `{"type":1,`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode([]byte(tt.payload))

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !errors.Is(err, ErrDecode) {
					t.Errorf("expected ErrDecode, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, event)
			}
		})
	}
}

func TestValidPhoneNumber(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"13912345678", true},
		{"1391234567", false},   // 10 digits
		{"139123456789", false}, // 12 digits
		{"1391234567a", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := validPhoneNumber(tt.phone); got != tt.want {
			t.Errorf("validPhoneNumber(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}
