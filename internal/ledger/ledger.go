// Package ledger implements the paper-trading ledger: a simulated
// brokerage account with a cash balance, open positions, an append-only
// trade log, and derived performance statistics.
//
// One Ledger instance is shared by all callers in a process. Every
// mutating operation (trade, price sweep, reset) holds an exclusive
// lock for its full validate-then-apply duration, so a rejected
// operation leaves the state untouched and readers never observe a
// half-applied mutation. Persistence is a best-effort side effect
// performed after the in-memory mutation succeeds.
package ledger

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertradingv1/internal/model"
	"papertradingv1/internal/store"
)

// DefaultInitialCapital is the virtual cash granted on first run and
// on every reset, in currency units.
var DefaultInitialCapital = decimal.NewFromInt(100000)

const defaultSaveTimeout = 5 * time.Second

// Config configures a Ledger.
type Config struct {
	// InitialCapital is the starting (and post-reset) cash balance.
	// Zero means DefaultInitialCapital.
	InitialCapital decimal.Decimal
}

// Ledger owns the portfolio state. Construct one at application start
// and pass it to consumers; do not share state through package globals.
type Ledger struct {
	mu sync.RWMutex

	balance        decimal.Decimal
	initialCapital decimal.Decimal
	positions      map[string]*model.PaperPosition
	trades         []model.PaperTrade

	modes *ModeManager
	store store.Store // may be nil (purely in-memory ledger)

	// seq stamps each snapshot in mutation order (guarded by mu); the
	// saver compares it against savedSeq (guarded by saveMu) so a slow
	// save carrying an older snapshot can never overwrite a newer one.
	seq      uint64
	saveMu   sync.Mutex
	savedSeq uint64

	saveTimeout time.Duration

	// Hooks (optional, set before serving traffic).
	OnMutation     func(model.PaperPortfolio) // after every applied mutation
	OnSaveError    func(error)                // after a failed background save
	OnSaveDuration func(time.Duration)        // after every save attempt
}

// New creates a fresh ledger in demo mode. st may be nil to disable
// persistence.
func New(cfg Config, st store.Store) *Ledger {
	capital := cfg.InitialCapital
	if capital.LessThanOrEqual(decimal.Zero) {
		capital = DefaultInitialCapital
	}
	return &Ledger{
		balance:        capital,
		initialCapital: capital,
		positions:      make(map[string]*model.PaperPosition),
		modes:          NewModeManager(),
		store:          st,
		saveTimeout:    defaultSaveTimeout,
	}
}

// Restore replaces the in-memory state with a persisted snapshot.
// Called once during startup, before the ledger is shared. A snapshot
// that violates the ledger invariants (negative balance, non-positive
// position quantity or price) is rejected without touching state, so
// the caller can fall back to a fresh portfolio.
func (l *Ledger) Restore(snap *model.Snapshot) error {
	if snap.Version != model.SnapshotVersion {
		return ErrSnapshotVersion
	}
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = snap.Portfolio.Balance
	if !snap.Portfolio.InitialCapital.IsZero() {
		l.initialCapital = snap.Portfolio.InitialCapital
	}
	l.positions = make(map[string]*model.PaperPosition, len(snap.Portfolio.Positions))
	for sym, pos := range snap.Portfolio.Positions {
		p := pos
		l.positions[sym] = &p
	}
	l.trades = make([]model.PaperTrade, len(snap.Portfolio.Trades))
	copy(l.trades, snap.Portfolio.Trades)

	l.modes.restore(snap.Mode)

	log.Printf("[ledger] restored snapshot: balance=%s positions=%d trades=%d mode=%s",
		l.balance, len(l.positions), len(l.trades), snap.Mode)
	return nil
}

// validateSnapshot checks a version-valid snapshot against the same
// invariants the ledger enforces at runtime.
func validateSnapshot(snap *model.Snapshot) error {
	p := snap.Portfolio
	if p.Balance.IsNegative() || p.InitialCapital.IsNegative() {
		return ErrSnapshotInvalid
	}
	for sym, pos := range p.Positions {
		if pos.Symbol != sym ||
			pos.Quantity.LessThanOrEqual(decimal.Zero) ||
			pos.AvgPrice.LessThanOrEqual(decimal.Zero) ||
			pos.CurrentPrice.LessThanOrEqual(decimal.Zero) {
			return ErrSnapshotInvalid
		}
	}
	return nil
}

// PlaceTrade validates and applies a single buy or sell. The first
// failing check wins and returns without touching state:
// mode, quantity, price, then funds (buy) or held quantity (sell).
func (l *Ledger) PlaceTrade(symbol string, side model.TradeSide, qty, price decimal.Decimal) (model.PaperTrade, error) {
	l.mu.Lock()

	if l.modes.Mode() != model.ModeDemo {
		l.mu.Unlock()
		return model.PaperTrade{}, ErrModeMismatch
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		l.mu.Unlock()
		return model.PaperTrade{}, ErrInvalidQuantity
	}
	if price.LessThanOrEqual(decimal.Zero) {
		l.mu.Unlock()
		return model.PaperTrade{}, ErrInvalidPrice
	}

	trade := model.PaperTrade{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}

	switch side {
	case model.SideBuy:
		cost := qty.Mul(price)
		if cost.GreaterThan(l.balance) {
			l.mu.Unlock()
			return model.PaperTrade{}, ErrInsufficientBalance
		}
		if pos, ok := l.positions[symbol]; ok {
			// Weighted-average cost basis across all open lots.
			totalCost := pos.AvgPrice.Mul(pos.Quantity).Add(cost)
			pos.Quantity = pos.Quantity.Add(qty)
			pos.AvgPrice = totalCost.Div(pos.Quantity)
		} else {
			l.positions[symbol] = &model.PaperPosition{
				Symbol:       symbol,
				Quantity:     qty,
				AvgPrice:     price,
				CurrentPrice: price,
			}
		}
		l.balance = l.balance.Sub(cost)

	case model.SideSell:
		pos, ok := l.positions[symbol]
		if !ok || pos.Quantity.LessThan(qty) {
			l.mu.Unlock()
			return model.PaperTrade{}, ErrInsufficientPosition
		}
		// Sells never alter the cost basis of what remains.
		realized := price.Sub(pos.AvgPrice).Mul(qty)
		trade.RealizedPnL = &realized
		l.balance = l.balance.Add(qty.Mul(price))
		pos.Quantity = pos.Quantity.Sub(qty)
		if pos.Quantity.IsZero() {
			delete(l.positions, symbol)
		}

	default:
		l.mu.Unlock()
		return model.PaperTrade{}, ErrInvalidSide
	}

	l.trades = append(l.trades, trade)
	snapshot, seq := l.stampLocked()
	l.mu.Unlock()

	log.Printf("[ledger] %s %s qty=%s price=%s trade=%s", side, symbol, qty, price, trade.ID)
	l.afterMutation(snapshot, seq)
	return trade, nil
}

// ApplyPriceUpdates applies a batch of external quotes to the open
// positions. Symbols not currently held are ignored; balance, cost
// basis, and the trade log are never touched. This is the only writer
// of CurrentPrice. Returns the number of positions updated.
func (l *Ledger) ApplyPriceUpdates(quotes map[string]decimal.Decimal) int {
	l.mu.Lock()

	updated := 0
	for sym, price := range quotes {
		if pos, ok := l.positions[sym]; ok {
			pos.CurrentPrice = price
			updated++
		}
	}
	if updated == 0 {
		l.mu.Unlock()
		return 0
	}

	snapshot, seq := l.stampLocked()
	l.mu.Unlock()

	l.afterMutation(snapshot, seq)
	return updated
}

// Reset unconditionally replaces the portfolio with a freshly
// constructed one: balance = initial capital, no positions, no trades.
// The trading mode is left unchanged. Destructive and irreversible —
// callers are expected to confirm before invoking.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.balance = l.initialCapital
	l.positions = make(map[string]*model.PaperPosition)
	l.trades = nil
	snapshot, seq := l.stampLocked()
	l.mu.Unlock()

	log.Printf("[ledger] portfolio reset: balance=%s", snapshot.Balance)
	l.afterMutation(snapshot, seq)
}

// Portfolio returns a deep-copy snapshot of the current portfolio.
func (l *Ledger) Portfolio() model.PaperPortfolio {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.portfolioLocked()
}

// Positions returns the open positions, sorted by symbol.
func (l *Ledger) Positions() []model.PaperPosition {
	l.mu.RLock()
	result := make([]model.PaperPosition, 0, len(l.positions))
	for _, p := range l.positions {
		result = append(result, *p)
	}
	l.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// Position returns a single open position. Fails with ErrUnknownSymbol
// when the symbol is not held.
func (l *Ledger) Position(symbol string) (model.PaperPosition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return model.PaperPosition{}, ErrUnknownSymbol
	}
	return *pos, nil
}

// TradeHistory returns all trades, oldest first.
func (l *Ledger) TradeHistory() []model.PaperTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.PaperTrade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// Mode returns the current trading mode.
func (l *Ledger) Mode() model.Mode { return l.modes.Mode() }

// EnableDemoMode switches to demo mode (idempotent).
func (l *Ledger) EnableDemoMode() bool {
	changed := l.modes.EnableDemoMode()
	if changed {
		l.persistCurrent()
	}
	return changed
}

// EnableLiveMode switches to live mode (idempotent). While live, all
// trade execution fails with ErrModeMismatch.
func (l *Ledger) EnableLiveMode() bool {
	changed := l.modes.EnableLiveMode()
	if changed {
		l.persistCurrent()
	}
	return changed
}

// persistCurrent stamps and saves the current state without mutating
// the portfolio. Used when only the mode changed.
func (l *Ledger) persistCurrent() {
	l.mu.Lock()
	snapshot, seq := l.stampLocked()
	l.mu.Unlock()
	l.persist(snapshot, seq)
}

// Snapshot assembles the persisted representation of the current state.
func (l *Ledger) Snapshot() *model.Snapshot {
	return l.snapshotOf(l.Portfolio())
}

// SaveNow persists the current state synchronously. Used for graceful
// shutdown; the steady-state path saves in the background. It holds
// the saver lock for the duration, so a background save still in
// flight either finishes first or is discarded as stale afterwards.
func (l *Ledger) SaveNow(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.mu.Lock()
	snapshot, seq := l.stampLocked()
	l.mu.Unlock()
	snap := l.snapshotOf(snapshot)

	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	start := time.Now()
	err := l.store.Save(ctx, snap)
	if l.OnSaveDuration != nil {
		l.OnSaveDuration(time.Since(start))
	}
	if err != nil {
		return err
	}
	if seq > l.savedSeq {
		l.savedSeq = seq
	}
	return nil
}

// stampLocked deep-copies the portfolio and assigns it the next
// snapshot sequence number. Callers must hold l.mu for writing, so the
// sequence order matches the order mutations were applied.
func (l *Ledger) stampLocked() (model.PaperPortfolio, uint64) {
	l.seq++
	return l.portfolioLocked(), l.seq
}

// portfolioLocked deep-copies the portfolio. Callers must hold l.mu.
func (l *Ledger) portfolioLocked() model.PaperPortfolio {
	positions := make(map[string]model.PaperPosition, len(l.positions))
	for sym, pos := range l.positions {
		positions[sym] = *pos
	}
	trades := make([]model.PaperTrade, len(l.trades))
	copy(trades, l.trades)
	return model.PaperPortfolio{
		Balance:        l.balance,
		InitialCapital: l.initialCapital,
		Positions:      positions,
		Trades:         trades,
	}
}

func (l *Ledger) snapshotOf(p model.PaperPortfolio) *model.Snapshot {
	return &model.Snapshot{
		Version:   model.SnapshotVersion,
		Mode:      l.modes.Mode(),
		SavedAt:   time.Now().UTC(),
		Portfolio: p,
	}
}

// afterMutation runs the mutation hook and kicks off the background
// save. The mutation lock is already released; a save failure is
// reported but never rolls back in-memory state.
func (l *Ledger) afterMutation(p model.PaperPortfolio, seq uint64) {
	if l.OnMutation != nil {
		l.OnMutation(p)
	}
	l.persist(p, seq)
}

func (l *Ledger) persist(p model.PaperPortfolio, seq uint64) {
	if l.store == nil {
		return
	}
	snap := l.snapshotOf(p)
	go l.saveSnapshot(snap, seq)
}

// saveSnapshot writes one stamped snapshot to the store. Writes are
// serialized under saveMu, and a snapshot is skipped when a newer one
// already reached the store, so the durable state never moves backwards
// no matter how long an individual save takes.
func (l *Ledger) saveSnapshot(snap *model.Snapshot, seq uint64) {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	if seq <= l.savedSeq {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.saveTimeout)
	defer cancel()

	start := time.Now()
	err := l.store.Save(ctx, snap)
	if l.OnSaveDuration != nil {
		l.OnSaveDuration(time.Since(start))
	}
	if err != nil {
		log.Printf("[ledger] WARNING: snapshot save failed: %v", err)
		if l.OnSaveError != nil {
			l.OnSaveError(err)
		}
		return
	}
	l.savedSeq = seq
}
