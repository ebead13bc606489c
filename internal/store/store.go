// Package store defines the persistence contract for the ledger
// snapshot. Implementations include SQLite (file-backed), Redis, and
// in-memory (for testing).
//
// The ledger tolerates a missing snapshot on first run: Load returns
// (nil, nil) when nothing has been persisted yet.
package store

import (
	"context"

	"papertradingv1/internal/model"
)

// Store persists and restores the ledger snapshot.
type Store interface {
	// Load returns the persisted snapshot, or (nil, nil) on first run.
	Load(ctx context.Context) (*model.Snapshot, error)

	// Save persists the snapshot, replacing any previous one.
	Save(ctx context.Context, snap *model.Snapshot) error

	// Close releases the underlying resources.
	Close() error
}
