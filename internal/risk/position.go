// Package risk owns portfolio cash, open positions and daily P&L, and gates
// every admission decision behind one lock.
package risk

import "intraday-scanner/internal/models"

// Position represents one open trading position. At most one position per
// symbol exists at any time. Quantity is always positive; Side carries the
// direction.
type Position struct {
	Symbol       string
	Side         models.OrderSide
	Quantity     int
	EntryPrice   float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
}

// MarketValue returns the current market value of the position.
func (p *Position) MarketValue() float64 {
	return float64(p.Quantity) * p.CurrentPrice
}

// UnrealizedPnL returns the unrealized profit/loss. Short positions gain
// when price falls.
func (p *Position) UnrealizedPnL() float64 {
	pnl := (p.CurrentPrice - p.EntryPrice) * float64(p.Quantity)
	if p.Side == models.OrderSideSell {
		pnl = -pnl
	}
	return pnl
}

// UnrealizedPnLPercent returns the unrealized profit/loss as a fraction of
// the entry price.
func (p *Position) UnrealizedPnLPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
	if p.Side == models.OrderSideSell {
		pct = -pct
	}
	return pct
}
