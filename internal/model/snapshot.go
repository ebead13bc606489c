package model

import "time"

// SnapshotVersion is the current persisted-snapshot schema version.
// Loaders must reject snapshots with any other version.
const SnapshotVersion = 1

// Snapshot is the durable representation of the ledger: the portfolio
// plus the trading mode, so both survive process restarts.
type Snapshot struct {
	Version   int            `json:"version"`
	Mode      Mode           `json:"mode"`
	SavedAt   time.Time      `json:"saved_at"`
	Portfolio PaperPortfolio `json:"portfolio"`
}
