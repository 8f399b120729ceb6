package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCallRecords(t *testing.T) {
	s := newTestSQLiteStore(t)

	records := []types.CallRecord{
		{DateKey: "2024-05-01", CallID: "a", Status: "resolved", RequiredTier: "manager", ResolvedBy: "manager", WorkerID: "manager-1", Escalations: 1, EnqueueTime: "2024-05-01T10:00:00Z", WaitTime: 1.5, HandleTime: 0.2},
		{DateKey: "2024-05-01", CallID: "b", Status: "failed", RequiredTier: "respondent", WorkerID: "respondent-1", EnqueueTime: "2024-05-01T10:00:01Z", Error: "decide failed"},
		{DateKey: "2024-05-02", CallID: "c", Status: "resolved", RequiredTier: "director", ResolvedBy: "director", WorkerID: "director-1", EnqueueTime: "2024-05-02T09:00:00Z"},
	}
	for _, r := range records {
		if err := s.SaveCallRecord(r); err != nil {
			t.Fatalf("SaveCallRecord: %v", err)
		}
	}

	got, err := s.GetCallRecords("2024-05-01")
	if err != nil {
		t.Fatalf("GetCallRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0] != records[0] || got[1] != records[1] {
		t.Errorf("records did not round-trip: %+v", got)
	}

	byWorker, err := s.GetWorkerCallsByDate("manager-1", "2024-05-01")
	if err != nil {
		t.Fatalf("GetWorkerCallsByDate: %v", err)
	}
	if len(byWorker) != 1 || byWorker[0].CallID != "a" {
		t.Errorf("unexpected worker records: %+v", byWorker)
	}

	// Saving the same call again replaces it
	updated := records[2]
	updated.Status = "abandoned"
	if err := s.SaveCallRecord(updated); err != nil {
		t.Fatalf("SaveCallRecord: %v", err)
	}
	got, _ = s.GetCallRecords("2024-05-02")
	if len(got) != 1 || got[0].Status != "abandoned" {
		t.Errorf("expected replaced record, got %+v", got)
	}
}

func TestSQLiteTierDailyStats(t *testing.T) {
	s := newTestSQLiteStore(t)

	for _, date := range []string{"2024-05-02", "2024-05-01"} {
		err := s.AddTierDailyStats(types.TierDailyStats{
			Tier: "respondent", Date: date, Workers: 3, Handled: 10, Resolved: 7, Escalated: 3,
			AnsweredInSL: 9, TotalAnswered: 10, ServiceLevel: 90,
		})
		if err != nil {
			t.Fatalf("AddTierDailyStats: %v", err)
		}
	}

	stats, err := s.GetTierDailyStats("respondent")
	if err != nil {
		t.Fatalf("GetTierDailyStats: %v", err)
	}
	if len(stats) != 2 || stats[0].Date != "2024-05-01" {
		t.Fatalf("expected 2 stats ordered by date, got %+v", stats)
	}
	if stats[1].ServiceLevel != 90 || stats[1].Handled != 10 {
		t.Errorf("unexpected stats: %+v", stats[1])
	}

	if other, _ := s.GetTierDailyStats("director"); len(other) != 0 {
		t.Errorf("expected no director stats, got %d", len(other))
	}
}

func TestSQLiteTierDailyStatsAccumulate(t *testing.T) {
	s := newTestSQLiteStore(t)

	parts := []types.TierDailyStats{
		{Tier: "manager", Date: "2024-05-01", Workers: 2, Handled: 4, Resolved: 3, Escalated: 1, AnsweredInSL: 4, TotalAnswered: 4, ServiceLevel: 100},
		{Tier: "manager", Date: "2024-05-01", Workers: 2, Handled: 2, Resolved: 1, Abandoned: 1, AnsweredInSL: 0, TotalAnswered: 4, ServiceLevel: 0},
	}
	for _, p := range parts {
		if err := s.AddTierDailyStats(p); err != nil {
			t.Fatalf("AddTierDailyStats: %v", err)
		}
	}

	stats, err := s.GetTierDailyStats("manager")
	if err != nil {
		t.Fatalf("GetTierDailyStats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected one row, got %+v", stats)
	}
	got := stats[0]
	want := types.TierDailyStats{
		Tier: "manager", Date: "2024-05-01", Workers: 2, Handled: 6, Resolved: 4, Escalated: 1,
		Abandoned: 1, AnsweredInSL: 4, TotalAnswered: 8, ServiceLevel: 50,
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestSQLiteConcurrentSaves(t *testing.T) {
	s := newTestSQLiteStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.SaveCallRecord(types.CallRecord{
				DateKey: "2024-05-03", CallID: fmt.Sprintf("call-%02d", i), Status: "resolved",
				RequiredTier: "respondent", EnqueueTime: "2024-05-03T08:00:00Z",
			})
			if err != nil {
				t.Errorf("SaveCallRecord: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetCallRecords("2024-05-03")
	if err != nil {
		t.Fatalf("GetCallRecords: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 records, got %d", len(got))
	}
}

func TestSQLiteTruncateAll(t *testing.T) {
	s := newTestSQLiteStore(t)
	s.SaveCallRecord(types.CallRecord{DateKey: "2024-05-01", CallID: "x", Status: "resolved", RequiredTier: "respondent", EnqueueTime: "t"})
	s.AddTierDailyStats(types.TierDailyStats{Tier: "manager", Date: "2024-05-01"})

	if err := s.TruncateAll(); err != nil {
		t.Fatalf("TruncateAll: %v", err)
	}
	if got, _ := s.GetCallRecords("2024-05-01"); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
	if got, _ := s.GetTierDailyStats("manager"); len(got) != 0 {
		t.Errorf("expected no stats, got %d", len(got))
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		env  string
		want Mode
	}{
		{"", ModeNone},
		{"sqlite", ModeSQLite},
		{"dynamo-local", ModeDynamoLocal},
		{"dynamo-aws", ModeDynamoAWS},
		{"postgres", ModeNone},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("STORE_MODE", tt.env)
			if got := LoadConfig().Mode; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewStoreNoop(t *testing.T) {
	s, err := NewStore(context.Background(), Config{Mode: ModeNone}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := s.(*NoopStore); !ok {
		t.Errorf("expected NoopStore, got %T", s)
	}
}
