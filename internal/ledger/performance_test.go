package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPerformanceMetrics_NoClosingTrades(t *testing.T) {
	l := newTestLedger()
	mustBuy(t, l, "AAPL", "1", "150")
	mustBuy(t, l, "TSLA", "2", "300")

	m := l.PerformanceMetrics()
	if m.TotalTrades != 2 {
		t.Errorf("total trades = %d, want 2", m.TotalTrades)
	}
	if m.ClosingTrades != 0 || m.WinningTrades != 0 {
		t.Errorf("closing=%d winning=%d, want 0/0", m.ClosingTrades, m.WinningTrades)
	}
	// No division by zero: win rate is defined as 0 with no sells.
	if !m.WinRate.Equal(decimal.Zero) {
		t.Errorf("win rate = %s, want 0", m.WinRate)
	}
}

func TestPerformanceMetrics_WinRate(t *testing.T) {
	l := newTestLedger()

	// Winner: buy 1 @ 100, sell @ 120.
	mustBuy(t, l, "WIN", "1", "100")
	mustSell(t, l, "WIN", "1", "120")
	// Loser: buy 1 @ 100, sell @ 80.
	mustBuy(t, l, "LOSE", "1", "100")
	mustSell(t, l, "LOSE", "1", "80")

	m := l.PerformanceMetrics()
	if m.TotalTrades != 4 {
		t.Errorf("total trades = %d, want 4 (buys count toward volume)", m.TotalTrades)
	}
	if m.ClosingTrades != 2 {
		t.Errorf("closing trades = %d, want 2", m.ClosingTrades)
	}
	if m.WinningTrades != 1 {
		t.Errorf("winning trades = %d, want 1", m.WinningTrades)
	}
	if !m.WinRate.Equal(dec("50")) {
		t.Errorf("win rate = %s, want 50", m.WinRate)
	}
}

func TestPerformanceMetrics_TotalReturn(t *testing.T) {
	l := newTestLedger()

	mustBuy(t, l, "AAPL", "10", "100")
	l.ApplyPriceUpdates(map[string]decimal.Decimal{"AAPL": dec("300")})

	// Equity = 99000 + 10×300 = 102000 → +2% on 100000.
	m := l.PerformanceMetrics()
	if !m.Equity.Equal(dec("102000")) {
		t.Errorf("equity = %s, want 102000", m.Equity)
	}
	if !m.TotalReturn.Equal(dec("2")) {
		t.Errorf("total return = %s, want 2", m.TotalReturn)
	}
	if !m.TotalPnL.Equal(dec("2000")) {
		t.Errorf("total pnl = %s, want 2000", m.TotalPnL)
	}
}

func TestPerformanceMetrics_BreakEvenSellIsNotAWin(t *testing.T) {
	l := newTestLedger()
	mustBuy(t, l, "FLAT", "1", "100")
	mustSell(t, l, "FLAT", "1", "100")

	m := l.PerformanceMetrics()
	if m.WinningTrades != 0 {
		t.Errorf("winning trades = %d, want 0 (realized must be > 0)", m.WinningTrades)
	}
	if !m.WinRate.Equal(decimal.Zero) {
		t.Errorf("win rate = %s, want 0", m.WinRate)
	}
}

func TestPerformanceMetrics_Scenario(t *testing.T) {
	// The dashboard walkthrough: buy 1 AAPL @150, mark to 160, sell @160.
	l := newTestLedger()
	mustBuy(t, l, "AAPL", "1", "150")
	l.ApplyPriceUpdates(map[string]decimal.Decimal{"AAPL": dec("160")})
	mustSell(t, l, "AAPL", "1", "160")

	m := l.PerformanceMetrics()
	if !m.WinRate.Equal(dec("100")) {
		t.Errorf("win rate = %s, want 100", m.WinRate)
	}
	if m.TotalTrades != 2 {
		t.Errorf("total trades = %d, want 2", m.TotalTrades)
	}
	if !m.Equity.Equal(dec("100010")) {
		t.Errorf("equity = %s, want 100010", m.Equity)
	}
}
