package ledger

import "errors"

// Trade and restore errors. All are expected, recoverable outcomes
// returned to the caller — never process-fatal. A rejected operation
// leaves the ledger completely unchanged.
var (
	// ErrInvalidQuantity — trade quantity is zero or negative.
	ErrInvalidQuantity = errors.New("quantity must be strictly positive")

	// ErrInvalidPrice — trade price is zero or negative.
	ErrInvalidPrice = errors.New("price must be strictly positive")

	// ErrInvalidSide — trade side is neither buy nor sell.
	ErrInvalidSide = errors.New("side must be buy or sell")

	// ErrInsufficientBalance — buy cost exceeds available cash. No
	// partial fills.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientPosition — sell quantity exceeds the held
	// quantity. No short selling.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrUnknownSymbol — the symbol is not in the active position set
	// where presence is required.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrModeMismatch — trade attempted while the ledger is in live
	// mode. Live order routing belongs to an external collaborator.
	ErrModeMismatch = errors.New("trading is only allowed in demo mode")

	// ErrSnapshotVersion — persisted snapshot has an unrecognized
	// schema version.
	ErrSnapshotVersion = errors.New("unrecognized snapshot version")

	// ErrSnapshotInvalid — persisted snapshot has a recognized version
	// but violates a ledger invariant (negative balance, non-positive
	// position quantity or price).
	ErrSnapshotInvalid = errors.New("snapshot violates ledger invariants")
)
