// Package model defines the core records of the paper-trading ledger:
// portfolio, position, trade, and the persisted snapshot schema.
//
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Mode is the trading mode of the ledger.
type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

// PaperPosition is a single open holding. Quantity is always strictly
// positive; a fully closed position is removed from the portfolio, never
// kept at zero.
type PaperPosition struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`     // weighted cost basis per unit
	CurrentPrice decimal.Decimal `json:"current_price"` // last quote applied
}

// MarketValue returns quantity × current price.
func (p PaperPosition) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// UnrealizedPnL returns (currentPrice − avgPrice) × quantity.
func (p PaperPosition) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.AvgPrice).Mul(p.Quantity)
}

// PaperTrade is an immutable executed-trade record. RealizedPnL is set
// on sells only.
type PaperTrade struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Side        TradeSide        `json:"side"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       decimal.Decimal  `json:"price"`
	Timestamp   time.Time        `json:"timestamp"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
}

// PaperPortfolio is the aggregate ledger state handed to consumers.
// Equity and total P&L are derived on demand, never stored, so they
// cannot drift from balance and positions.
type PaperPortfolio struct {
	Balance        decimal.Decimal          `json:"balance"`
	InitialCapital decimal.Decimal          `json:"initial_capital"`
	Positions      map[string]PaperPosition `json:"positions"`
	Trades         []PaperTrade             `json:"trades"`
}

// Equity returns balance plus the market value of all open positions.
func (p PaperPortfolio) Equity() decimal.Decimal {
	eq := p.Balance
	for _, pos := range p.Positions {
		eq = eq.Add(pos.MarketValue())
	}
	return eq
}

// TotalPnL returns equity − initial capital.
func (p PaperPortfolio) TotalPnL() decimal.Decimal {
	return p.Equity().Sub(p.InitialCapital)
}
