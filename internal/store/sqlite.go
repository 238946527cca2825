package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"marketwatch/internal/provider"
)

// Snapshot is one recorded quote.
type Snapshot struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Refreshed  time.Time `json:"last_refreshed"`
	CreatedAt  time.Time `json:"created_at"`
}

// History keeps an append-only log of accepted quotes in SQLite.
type History struct {
	db *sql.DB
}

// OpenHistory opens (and migrates) the database at path.
func OpenHistory(path string) (*History, error) {
	if path == "" {
		path = "data/marketwatch.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	h := &History{db: db}
	if err := h.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the database.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *History) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quote_snapshot (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			instrument TEXT NOT NULL,
			price REAL NOT NULL,
			bid REAL,
			ask REAL,
			refreshed_at INTEGER,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quote_snapshot_instrument ON quote_snapshot(instrument, id);`,
	}
	for _, stmt := range stmts {
		if _, err := h.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Record appends q under runID, keyed by inst so Previous(inst) finds it
// whatever currency codes the payload carried.
func (h *History) Record(ctx context.Context, runID string, inst provider.Instrument, q provider.Quote) error {
	if h == nil || h.db == nil {
		return nil
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO quote_snapshot (run_id, instrument, price, bid, ask, refreshed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, inst.String(), q.Price, q.Bid, q.Ask, q.LastRefreshed.Unix(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert quote snapshot: %w", err)
	}
	return nil
}

// Previous returns the most recently recorded price for inst. ok is false
// when nothing has been recorded yet.
func (h *History) Previous(ctx context.Context, inst provider.Instrument) (float64, bool, error) {
	if h == nil || h.db == nil {
		return 0, false, nil
	}
	var price float64
	row := h.db.QueryRowContext(ctx,
		`SELECT price FROM quote_snapshot WHERE instrument = ? ORDER BY id DESC LIMIT 1`,
		inst.String(),
	)
	if err := row.Scan(&price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query previous price: %w", err)
	}
	return price, true, nil
}

// Recent returns up to limit snapshots for inst, newest first.
func (h *History) Recent(ctx context.Context, inst provider.Instrument, limit int) ([]Snapshot, error) {
	if h == nil || h.db == nil {
		return nil, fmt.Errorf("history not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, run_id, instrument, price, bid, ask, refreshed_at, created_at
		FROM quote_snapshot WHERE instrument = ?
		ORDER BY id DESC LIMIT ?`,
		inst.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var refreshed, created int64
		if err := rows.Scan(&s.ID, &s.RunID, &s.Instrument, &s.Price, &s.Bid, &s.Ask, &refreshed, &created); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Refreshed = time.Unix(refreshed, 0).UTC()
		s.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
