package storage

import "github.com/dennisdiepolder/switchboard/internal/types"

// Store defines the storage interface
type Store interface {
	SaveCallRecord(record types.CallRecord) error
	AddTierDailyStats(stats types.TierDailyStats) error
	GetCallRecords(dateKey string) ([]types.CallRecord, error)
	GetTierDailyStats(tier string) ([]types.TierDailyStats, error)
	GetWorkerCallsByDate(workerID, date string) ([]types.CallRecord, error)
	TruncateAll() error
}

// NoopStore is a no-op implementation when persistence is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveCallRecord(_ types.CallRecord) error { return nil }
func (s *NoopStore) AddTierDailyStats(_ types.TierDailyStats) error { return nil }
func (s *NoopStore) GetCallRecords(_ string) ([]types.CallRecord, error) { return nil, nil }
func (s *NoopStore) GetTierDailyStats(_ string) ([]types.TierDailyStats, error) { return nil, nil }
func (s *NoopStore) GetWorkerCallsByDate(_, _ string) ([]types.CallRecord, error) { return nil, nil }
func (s *NoopStore) TruncateAll() error { return nil }
