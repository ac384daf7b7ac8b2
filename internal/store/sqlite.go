package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/courier/internal/model"

	_ "modernc.org/sqlite"
)

const createTransfersTable = `
CREATE TABLE IF NOT EXISTS transfers (
    id          TEXT PRIMARY KEY,
    method      TEXT NOT NULL,
    url         TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT,
    bytes       INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

// ErrNotFound is returned when a transfer is not found.
var ErrNotFound = errors.New("transfer not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createTransfersTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transfers table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTransfer inserts a new transfer record.
func (s *SQLiteStore) CreateTransfer(ctx context.Context, tr *model.TransferRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transfers (
			id, method, url, status, error, bytes,
			duration_ms, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Method, tr.URL, tr.Status, tr.Error, tr.Bytes,
		tr.DurationMS, tr.CreatedAt, tr.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetTransfer retrieves a transfer by ID.
func (s *SQLiteStore) GetTransfer(ctx context.Context, id string) (*model.TransferRecord, error) {
	tr := &model.TransferRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, method, url, status, error, bytes,
			duration_ms, created_at, finished_at
		FROM transfers WHERE id = ?`, id,
	).Scan(
		&tr.ID, &tr.Method, &tr.URL, &tr.Status, &tr.Error, &tr.Bytes,
		&tr.DurationMS, &tr.CreatedAt, &tr.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return tr, nil
}

// ListTransfers returns a paginated list of transfers ordered by created_at DESC,
// along with the total count of all transfers.
func (s *SQLiteStore) ListTransfers(ctx context.Context, limit, offset int) ([]*model.TransferRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM transfers").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, method, url, status, error, bytes,
			duration_ms, created_at, finished_at
		FROM transfers ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*model.TransferRecord
	for rows.Next() {
		tr := &model.TransferRecord{}
		if err := rows.Scan(
			&tr.ID, &tr.Method, &tr.URL, &tr.Status, &tr.Error, &tr.Bytes,
			&tr.DurationMS, &tr.CreatedAt, &tr.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transfers: %w", err)
	}

	return transfers, total, nil
}

// UpdateTransferStatus moves a transfer to a new status, enforcing the
// transition rules. Terminal statuses also set finished_at.
func (s *SQLiteStore) UpdateTransferStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM transfers WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read transfer status: %w", err)
	}

	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	if isTerminal(status) {
		_, err = tx.ExecContext(ctx,
			"UPDATE transfers SET status = ?, finished_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE transfers SET status = ? WHERE id = ?",
			status, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}

	return tx.Commit()
}

// MarkTransferDone records the outcome of a resolved transfer in one write.
func (s *SQLiteStore) MarkTransferDone(ctx context.Context, id, status, errMsg string, bytes int64, durationMS int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transfers SET status = ?, error = ?, bytes = ?,
			duration_ms = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, bytes, durationMS, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark transfer done: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTransferStats aggregates journal-wide statistics.
func (s *SQLiteStore) GetTransferStats(ctx context.Context) (*TransferStats, error) {
	stats := &TransferStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM transfers GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	// AVG skips NULL durations on its own.
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(bytes), 0), COALESCE(AVG(duration_ms), 0) FROM transfers`,
	).Scan(&stats.TotalBytes, &stats.AvgDurationMS)
	if err != nil {
		return nil, fmt.Errorf("aggregate transfers: %w", err)
	}

	return stats, nil
}

func isTerminal(status string) bool {
	switch status {
	case model.StatusCompleted, model.StatusFailed, model.StatusCancelled:
		return true
	}
	return false
}
