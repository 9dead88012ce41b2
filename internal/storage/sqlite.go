package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/txbench/pkg/types"
)

// unmarshalJSON unmarshals JSON and logs any errors without failing.
// Used for non-critical fields so one corrupt column does not hide a run.
func unmarshalJSON(data string, v any, field string, runID string) {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		slog.Warn("failed to unmarshal JSON field",
			"field", field,
			"runID", runID,
			"error", err.Error(),
			"dataLen", len(data))
	}
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (and creates if needed) the archive at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		rpc_url TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		sender TEXT NOT NULL,
		tx_count INTEGER NOT NULL,
		submit_order TEXT NOT NULL,
		sign_failures INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		balance_at_start TEXT,
		nonce_at_start INTEGER NOT NULL,
		total_submitted INTEGER DEFAULT 0,
		total_accepted INTEGER DEFAULT 0,
		total_rejected INTEGER DEFAULT 0,
		total_confirmed INTEGER DEFAULT 0,
		total_reverted INTEGER DEFAULT 0,
		total_timed_out INTEGER DEFAULT 0,
		total_failed INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		throughput REAL DEFAULT 0,
		throughput_defined INTEGER DEFAULT 0,
		latency_stats TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS tx_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tx_index INTEGER NOT NULL,
		tx_hash TEXT NOT NULL,
		nonce INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		status TEXT,
		submitted_at_ms INTEGER,
		confirmed_at_ms INTEGER,
		latency_ms INTEGER,
		block_number INTEGER,
		gas_used INTEGER,
		error_reason TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tx_logs_run ON tx_logs(run_id);
	CREATE INDEX IF NOT EXISTS idx_tx_logs_hash ON tx_logs(tx_hash);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its transaction log.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *Run, logs []TxLog) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	var latencyJSON sql.NullString
	if run.Stats.Latency != nil {
		data, err := json.Marshal(run.Stats.Latency)
		if err != nil {
			return fmt.Errorf("marshal latency stats: %w", err)
		}
		latencyJSON = sql.NullString{String: string(data), Valid: true}
	}
	var balance sql.NullString
	if run.Stats.AccountBalanceAtStart != nil {
		balance = sql.NullString{String: run.Stats.AccountBalanceAtStart.String(), Valid: true}
	}

	// One transaction for the run and all its rows; the fsync dominates.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	st := run.Stats
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, completed_at, rpc_url, chain_id, sender, tx_count,
			submit_order, sign_failures, status, balance_at_start, nonce_at_start,
			total_submitted, total_accepted, total_rejected, total_confirmed, total_reverted,
			total_timed_out, total_failed, duration_ms, throughput, throughput_defined, latency_stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.CompletedAt.UTC(), run.RPCURL, run.ChainID, run.Sender, run.Count,
		run.Order, run.SignFailures, run.Status, balance, st.NonceAtStart,
		st.TotalSubmitted, st.TotalAccepted, st.TotalRejected, st.TotalConfirmed, st.TotalReverted,
		st.TotalTimedOut, st.TotalFailed, st.WallClockDuration.Milliseconds(), st.Throughput,
		boolToInt(st.ThroughputDefined), latencyJSON)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(logs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tx_logs (run_id, tx_index, tx_hash, nonce, outcome, status, submitted_at_ms,
				confirmed_at_ms, latency_ms, block_number, gas_used, error_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, l := range logs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, err := stmt.ExecContext(ctx, run.ID, l.Index, l.TxHash, l.Nonce, l.Outcome,
				nullString(l.Status), nullInt64(l.SubmittedAtMs), nullInt64(l.ConfirmedAtMs),
				nullInt64(l.LatencyMs), nullInt64(int64(l.BlockNumber)), nullInt64(int64(l.GasUsed)),
				nullString(l.ErrorReason))
			if err != nil {
				return fmt.Errorf("insert tx log: %w", err)
			}
		}
	}

	return tx.Commit()
}

const runColumns = `id, started_at, completed_at, rpc_url, chain_id, sender, tx_count,
	submit_order, sign_failures, status, balance_at_start, nonce_at_start,
	total_submitted, total_accepted, total_rejected, total_confirmed, total_reverted,
	total_timed_out, total_failed, duration_ms, throughput, throughput_defined, latency_stats`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var balance, latencyJSON sql.NullString
	var durationMs int64
	var throughputDefined int

	st := &run.Stats
	err := row.Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.RPCURL, &run.ChainID, &run.Sender,
		&run.Count, &run.Order, &run.SignFailures, &run.Status, &balance, &st.NonceAtStart,
		&st.TotalSubmitted, &st.TotalAccepted, &st.TotalRejected, &st.TotalConfirmed, &st.TotalReverted,
		&st.TotalTimedOut, &st.TotalFailed, &durationMs, &st.Throughput, &throughputDefined, &latencyJSON)
	if err != nil {
		return nil, err
	}

	st.WallClockDuration = time.Duration(durationMs) * time.Millisecond
	st.ThroughputDefined = throughputDefined != 0
	if balance.Valid {
		if v, ok := new(big.Int).SetString(balance.String, 10); ok {
			st.AccountBalanceAtStart = v
		}
	}
	if latencyJSON.Valid {
		var latency types.LatencyStats
		unmarshalJSON(latencyJSON.String, &latency, "latency_stats", run.ID)
		st.Latency = &latency
	}

	return &run, nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns runs newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedRuns{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// GetTxLogs returns the transaction log of a run in input order.
func (s *SQLiteStorage) GetTxLogs(ctx context.Context, runID string, limit, offset int) (*PaginatedTxLogs, error) {
	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_logs WHERE run_id = ?", runID).Scan(&total)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_index, tx_hash, nonce, outcome, status, submitted_at_ms, confirmed_at_ms,
			latency_ms, block_number, gas_used, error_reason
		FROM tx_logs
		WHERE run_id = ?
		ORDER BY tx_index
		LIMIT ? OFFSET ?
	`, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []TxLog{}
	for rows.Next() {
		var l TxLog
		var status, errorReason sql.NullString
		var submittedAt, confirmedAt, latency, blockNumber, gasUsed sql.NullInt64

		err := rows.Scan(&l.Index, &l.TxHash, &l.Nonce, &l.Outcome, &status, &submittedAt,
			&confirmedAt, &latency, &blockNumber, &gasUsed, &errorReason)
		if err != nil {
			return nil, err
		}

		l.Status = status.String
		l.ErrorReason = errorReason.String
		l.SubmittedAtMs = submittedAt.Int64
		l.ConfirmedAtMs = confirmedAt.Int64
		l.LatencyMs = latency.Int64
		l.BlockNumber = uint64(blockNumber.Int64)
		l.GasUsed = uint64(gasUsed.Int64)

		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedTxLogs{
		Transactions: logs,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// Helper functions

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
