package storage

import "github.com/renxuetao/cskefu/internal/types"

// Archive is durable reporting storage for closed service records.
type Archive interface {
	SaveServiceRecord(record types.ServiceRecord) error
	RecordsByDate(dateKey string) ([]types.ServiceRecord, error)
	RecordsByAgentAndDate(agentID, dateKey string) ([]types.ServiceRecord, error)
	TruncateAll() error
}

// NoopArchive is a no-op implementation when DynamoDB is disabled
type NoopArchive struct{}

func NewNoopArchive() *NoopArchive { return &NoopArchive{} }

func (a *NoopArchive) SaveServiceRecord(_ types.ServiceRecord) error { return nil }
func (a *NoopArchive) RecordsByDate(_ string) ([]types.ServiceRecord, error) {
	return nil, nil
}
func (a *NoopArchive) RecordsByAgentAndDate(_, _ string) ([]types.ServiceRecord, error) {
	return nil, nil
}
func (a *NoopArchive) TruncateAll() error { return nil }
