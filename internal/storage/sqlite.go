// Package storage persists run metadata, per-window samples, and block
// observations to SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/txprobe/pkg/types"
)

// SQLiteStorage is the probe's durable store.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps the 1s writer from blocking API reads.
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		address TEXT NOT NULL,
		target_tps REAL NOT NULL,
		concurrency INTEGER NOT NULL,
		tx_submitted INTEGER DEFAULT 0,
		tx_succeeded INTEGER DEFAULT 0,
		tx_failed INTEGER DEFAULT 0,
		rpc_calls INTEGER DEFAULT 0,
		gas_used INTEGER DEFAULT 0,
		status TEXT DEFAULT 'running'
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS window_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		block_number INTEGER NOT NULL,
		tx_submitted INTEGER NOT NULL,
		tx_failed INTEGER NOT NULL,
		rpc_calls INTEGER NOT NULL,
		gas_used INTEGER NOT NULL,
		tps REAL NOT NULL,
		rps REAL NOT NULL,
		mgas_per_sec REAL NOT NULL,
		failure_rate REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_window_samples_run ON window_samples(run_id, timestamp_ms);

	CREATE TABLE IF NOT EXISTS block_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		block_number INTEGER NOT NULL,
		block_timestamp INTEGER NOT NULL,
		tx_count INTEGER NOT NULL,
		gas_used INTEGER NOT NULL,
		since_last_ms INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_block_observations_run ON block_observations(run_id, block_number);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateRun inserts the run row at startup.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, address, target_tps, concurrency, status)
		VALUES (?, ?, ?, ?, ?, 'running')`,
		run.ID, run.StartedAt, run.Address, run.TargetTPS, run.Concurrency)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun finalizes the run row with lifetime totals.
func (s *SQLiteStorage) CompleteRun(ctx context.Context, runID string, totals RunTotals, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET completed_at = ?, tx_submitted = ?, tx_succeeded = ?,
			tx_failed = ?, rpc_calls = ?, gas_used = ?, status = ?
		WHERE id = ?`,
		time.Now(), totals.Submitted, totals.Succeeded, totals.Failed,
		totals.RPCCalls, totals.GasUsed, status, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// GetRun fetches a run row by id.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, address, target_tps, concurrency,
			tx_submitted, tx_succeeded, tx_failed, rpc_calls, gas_used, status
		FROM runs WHERE id = ?`, runID)

	var run Run
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.StartedAt, &completedAt, &run.Address,
		&run.TargetTPS, &run.Concurrency, &run.Totals.Submitted,
		&run.Totals.Succeeded, &run.Totals.Failed, &run.Totals.RPCCalls,
		&run.Totals.GasUsed, &run.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// SaveWindow persists one closed metrics window.
func (s *SQLiteStorage) SaveWindow(ctx context.Context, runID string, w types.WindowSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO window_samples (run_id, timestamp_ms, block_number,
			tx_submitted, tx_failed, rpc_calls, gas_used, tps, rps,
			mgas_per_sec, failure_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, w.TimestampMS, w.BlockNumber, w.Submitted, w.Failed,
		w.RPCCalls, w.GasUsed, w.TPS, w.RPS, w.MGasPerSec, w.FailureRate)
	if err != nil {
		return fmt.Errorf("insert window sample: %w", err)
	}
	return nil
}

// RecentWindows returns up to limit samples for a run, newest first.
func (s *SQLiteStorage) RecentWindows(ctx context.Context, runID string, limit int) ([]types.WindowSample, error) {
	if limit <= 0 {
		limit = 60
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, block_number, tx_submitted, tx_failed, rpc_calls,
			gas_used, tps, rps, mgas_per_sec, failure_rate
		FROM window_samples WHERE run_id = ?
		ORDER BY timestamp_ms DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query window samples: %w", err)
	}
	defer rows.Close()

	var samples []types.WindowSample
	for rows.Next() {
		var w types.WindowSample
		if err := rows.Scan(&w.TimestampMS, &w.BlockNumber, &w.Submitted,
			&w.Failed, &w.RPCCalls, &w.GasUsed, &w.TPS, &w.RPS,
			&w.MGasPerSec, &w.FailureRate); err != nil {
			return nil, fmt.Errorf("scan window sample: %w", err)
		}
		samples = append(samples, w)
	}
	return samples, rows.Err()
}

// SaveBlockObservation persists one head advance.
func (s *SQLiteStorage) SaveBlockObservation(ctx context.Context, runID string, obs types.BlockObservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_observations (run_id, block_number, block_timestamp,
			tx_count, gas_used, since_last_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, obs.Number, obs.Timestamp.Unix(), obs.TxCount, obs.GasUsed,
		obs.SinceLast.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert block observation: %w", err)
	}
	return nil
}

// BlockObservations returns up to limit head advances for a run, newest first.
func (s *SQLiteStorage) BlockObservations(ctx context.Context, runID string, limit int) ([]types.BlockObservation, error) {
	if limit <= 0 {
		limit = 60
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_number, block_timestamp, tx_count, gas_used, since_last_ms
		FROM block_observations WHERE run_id = ?
		ORDER BY block_number DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query block observations: %w", err)
	}
	defer rows.Close()

	var observations []types.BlockObservation
	for rows.Next() {
		var obs types.BlockObservation
		var ts int64
		var sinceMs int64
		if err := rows.Scan(&obs.Number, &ts, &obs.TxCount, &obs.GasUsed, &sinceMs); err != nil {
			return nil, fmt.Errorf("scan block observation: %w", err)
		}
		obs.Timestamp = time.Unix(ts, 0)
		obs.SinceLast = time.Duration(sinceMs) * time.Millisecond
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
