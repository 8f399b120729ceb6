package storage

import (
	"database/sql"
	"fmt"

	"github.com/dennisdiepolder/switchboard/internal/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS call_records (
	date_key      TEXT NOT NULL,
	call_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	required_tier TEXT NOT NULL,
	resolved_by   TEXT DEFAULT '',
	worker_id     TEXT DEFAULT '',
	escalations   INTEGER NOT NULL DEFAULT 0,
	enqueue_time  TEXT NOT NULL,
	start_time    TEXT DEFAULT '',
	end_time      TEXT DEFAULT '',
	wait_time     REAL NOT NULL DEFAULT 0,
	handle_time   REAL NOT NULL DEFAULT 0,
	error         TEXT DEFAULT '',
	PRIMARY KEY (date_key, call_id)
);
CREATE INDEX IF NOT EXISTS idx_call_records_worker ON call_records(worker_id);

CREATE TABLE IF NOT EXISTS tier_daily_stats (
	tier            TEXT NOT NULL,
	date            TEXT NOT NULL,
	workers         INTEGER NOT NULL DEFAULT 0,
	handled         INTEGER NOT NULL DEFAULT 0,
	resolved        INTEGER NOT NULL DEFAULT 0,
	escalated       INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	abandoned       INTEGER NOT NULL DEFAULT 0,
	answered_in_sl  INTEGER NOT NULL DEFAULT 0,
	total_answered  INTEGER NOT NULL DEFAULT 0,
	service_level   REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (tier, date)
);
`

const callRecordColumns = `date_key, call_id, status, required_tier, resolved_by, worker_id,
	escalations, enqueue_time, start_time, end_time, wait_time, handle_time, error`

// SQLiteStore implements Store on a local SQLite file
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at path
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Saves arrive from many goroutines; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("SQLite store initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCallRecord(r types.CallRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO call_records (`+callRecordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DateKey, r.CallID, r.Status, r.RequiredTier, r.ResolvedBy, r.WorkerID,
		r.Escalations, r.EnqueueTime, r.StartTime, r.EndTime, r.WaitTime, r.HandleTime, r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	return nil
}

// AddTierDailyStats adds the counters of st to the stored row of its tier
// and date, creating the row if needed
func (s *SQLiteStore) AddTierDailyStats(st types.TierDailyStats) error {
	_, err := s.db.Exec(
		`INSERT INTO tier_daily_stats
		 (tier, date, workers, handled, resolved, escalated, failed, abandoned, answered_in_sl, total_answered, service_level)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tier, date) DO UPDATE SET
			workers        = excluded.workers,
			handled        = handled + excluded.handled,
			resolved       = resolved + excluded.resolved,
			escalated      = escalated + excluded.escalated,
			failed         = failed + excluded.failed,
			abandoned      = abandoned + excluded.abandoned,
			answered_in_sl = answered_in_sl + excluded.answered_in_sl,
			total_answered = total_answered + excluded.total_answered,
			service_level  = CASE
				WHEN total_answered + excluded.total_answered > 0
				THEN 100.0 * (answered_in_sl + excluded.answered_in_sl) / (total_answered + excluded.total_answered)
				ELSE 100 END`,
		st.Tier, st.Date, st.Workers, st.Handled, st.Resolved, st.Escalated, st.Failed,
		st.Abandoned, st.AnsweredInSL, st.TotalAnswered, st.ServiceLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to add tier daily stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCallRecords(dateKey string) ([]types.CallRecord, error) {
	return s.queryCallRecords(
		`SELECT `+callRecordColumns+` FROM call_records WHERE date_key = ? ORDER BY enqueue_time, call_id`,
		dateKey,
	)
}

func (s *SQLiteStore) GetWorkerCallsByDate(workerID, date string) ([]types.CallRecord, error) {
	return s.queryCallRecords(
		`SELECT `+callRecordColumns+` FROM call_records WHERE date_key = ? AND worker_id = ? ORDER BY enqueue_time, call_id`,
		date, workerID,
	)
}

func (s *SQLiteStore) queryCallRecords(query string, args ...interface{}) ([]types.CallRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	defer rows.Close()

	var records []types.CallRecord
	for rows.Next() {
		var r types.CallRecord
		if err := rows.Scan(
			&r.DateKey, &r.CallID, &r.Status, &r.RequiredTier, &r.ResolvedBy, &r.WorkerID,
			&r.Escalations, &r.EnqueueTime, &r.StartTime, &r.EndTime, &r.WaitTime, &r.HandleTime, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) GetTierDailyStats(tier string) ([]types.TierDailyStats, error) {
	rows, err := s.db.Query(
		`SELECT tier, date, workers, handled, resolved, escalated, failed, abandoned, answered_in_sl, total_answered, service_level
		 FROM tier_daily_stats WHERE tier = ? ORDER BY date`,
		tier,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier daily stats: %w", err)
	}
	defer rows.Close()

	var stats []types.TierDailyStats
	for rows.Next() {
		var st types.TierDailyStats
		if err := rows.Scan(
			&st.Tier, &st.Date, &st.Workers, &st.Handled, &st.Resolved, &st.Escalated, &st.Failed,
			&st.Abandoned, &st.AnsweredInSL, &st.TotalAnswered, &st.ServiceLevel,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tier daily stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// TruncateAll deletes every stored row
func (s *SQLiteStore) TruncateAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"call_records", "tier_daily_stats"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info().Msg("sqlite store truncated")
	return nil
}
