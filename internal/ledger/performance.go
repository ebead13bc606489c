package ledger

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PerformanceMetrics is the aggregate statistics summary derived from
// the trade log and the current portfolio.
type PerformanceMetrics struct {
	TotalTrades   int             `json:"total_trades"`   // buys and sells
	ClosingTrades int             `json:"closing_trades"` // sells only
	WinningTrades int             `json:"winning_trades"` // sells with realized P&L > 0
	WinRate       decimal.Decimal `json:"win_rate"`       // % of closing trades, 0 when none
	TotalReturn   decimal.Decimal `json:"total_return"`   // % of initial capital
	Equity        decimal.Decimal `json:"equity"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
}

// PerformanceMetrics recomputes the statistics from the current state.
// Never cached, so it always reflects the latest applied mutation.
// Side-effect free.
func (l *Ledger) PerformanceMetrics() PerformanceMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m := PerformanceMetrics{TotalTrades: len(l.trades)}

	// Only sells close a position and realize P&L; buys never count
	// toward the win rate.
	for _, t := range l.trades {
		if t.RealizedPnL == nil {
			continue
		}
		m.ClosingTrades++
		if t.RealizedPnL.GreaterThan(decimal.Zero) {
			m.WinningTrades++
		}
	}

	if m.ClosingTrades > 0 {
		m.WinRate = decimal.NewFromInt(int64(m.WinningTrades)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(m.ClosingTrades)))
	}

	p := l.portfolioLocked()
	m.Equity = p.Equity()
	m.TotalPnL = m.Equity.Sub(l.initialCapital)
	if !l.initialCapital.IsZero() {
		m.TotalReturn = m.TotalPnL.Mul(hundred).Div(l.initialCapital)
	}
	return m
}
