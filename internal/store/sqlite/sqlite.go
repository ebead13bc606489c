// Package sqlite persists the ledger snapshot to SQLite. The snapshot
// lives in a single-row table; executed trades are additionally written
// to an append-only audit table for offline analysis.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertradingv1/internal/model"
)

// Store implements store.Store on a SQLite database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens (or creates) the snapshot database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshot (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		version    INTEGER NOT NULL,
		mode       TEXT NOT NULL,
		data       TEXT NOT NULL,
		saved_at   DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS trades (
		id           TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		side         TEXT NOT NULL,
		qty          TEXT NOT NULL,
		price        TEXT NOT NULL,
		realized_pnl TEXT,
		executed_at  DATETIME NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[sqlite] opened snapshot store at %s", dbPath)
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Load restores the snapshot row. Returns (nil, nil) when the table is
// empty (first run).
func (s *Store) Load(ctx context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshot WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("sqlite load: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save replaces the snapshot row and appends any trades not yet in the
// audit table, in one transaction.
func (s *Store) Save(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("sqlite save: marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshot (id, version, mode, data, saved_at) VALUES (1, ?, ?, ?, ?)`,
		snap.Version, string(snap.Mode), string(data), snap.SavedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite save: snapshot row: %w", err)
	}

	for _, t := range snap.Portfolio.Trades {
		var realized sql.NullString
		if t.RealizedPnL != nil {
			realized = sql.NullString{String: t.RealizedPnL.String(), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO trades (id, symbol, side, qty, price, realized_pnl, executed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Symbol, string(t.Side), t.Quantity.String(), t.Price.String(),
			realized, t.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("sqlite save: trade %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
