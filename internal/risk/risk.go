package risk

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"intraday-scanner/internal/config"
	ierrors "intraday-scanner/internal/errors"
	"intraday-scanner/internal/models"
)

// cashBuffer keeps a fraction of cash unspent on any single admission.
const cashBuffer = 0.95

// Manager tracks cash, open positions and daily P&L. Every read-then-write
// sequence runs under one mutex so that two concurrently arriving signals
// cannot both pass a "one slot remaining" check.
type Manager struct {
	cfg    config.RiskConfig
	logger zerolog.Logger

	mu             sync.Mutex
	cash           float64
	initialCapital float64
	positions      map[string]*Position
	dailyPnL       float64
}

// NewManager creates a risk manager funded with the configured capital.
func NewManager(cfg config.RiskConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:            cfg,
		logger:         logger.With().Str("component", "risk").Logger(),
		cash:           cfg.InitialCapital,
		initialCapital: cfg.InitialCapital,
		positions:      make(map[string]*Position),
	}
}

// SizePosition computes the share quantity for a trade: risk-fraction of the
// portfolio scaled by signal strength, divided by per-share risk, capped by
// the maximum position cost. Returns 0 when capital cannot cover one share.
func (m *Manager) SizePosition(entryPrice, stopLossPrice, signalStrength float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizeLocked(entryPrice, stopLossPrice, signalStrength)
}

func (m *Manager) sizeLocked(entryPrice, stopLossPrice, signalStrength float64) int {
	if entryPrice <= 0 || signalStrength <= 0 {
		return 0
	}

	riskAmount := m.cash * m.cfg.MaxPortfolioRisk * signalStrength
	if riskAmount <= 0 {
		return 0
	}

	riskPerShare := math.Abs(entryPrice - stopLossPrice)
	if riskPerShare == 0 {
		// Degenerate stop; assume 1% of entry so sizing stays bounded.
		riskPerShare = entryPrice * 0.01
	}

	shares := int(riskAmount / riskPerShare)

	// The position-cost cap binds unconditionally, so sizing can return 0
	// when the portfolio cannot carry even one share within the cap.
	maxShares := int(m.cash * m.cfg.MaxPositionSize / entryPrice)
	if shares > maxShares {
		shares = maxShares
	}

	return shares
}

// CanOpen reports whether a new position for symbol at the estimated cost
// passes every admission gate.
func (m *Manager) CanOpen(symbol string, estimatedCost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canOpenLocked(symbol, estimatedCost)
}

func (m *Manager) canOpenLocked(symbol string, estimatedCost float64) error {
	if len(m.positions) >= m.cfg.MaxOpenPositions {
		return ierrors.NewRiskError("max_open_positions", float64(len(m.positions)), float64(m.cfg.MaxOpenPositions), "maximum open positions reached")
	}

	if _, exists := m.positions[symbol]; exists {
		return ierrors.NewRiskError("duplicate_position", 1, 1, "position already open for "+symbol)
	}

	if estimatedCost > m.cash*cashBuffer {
		return ierrors.NewRiskError("insufficient_capital", estimatedCost, m.cash*cashBuffer, "estimated cost exceeds available cash")
	}

	lossLimit := m.initialCapital * m.cfg.MaxDailyLoss
	if m.dailyPnL < -lossLimit {
		return ierrors.NewRiskError("daily_loss_limit", m.dailyPnL, -lossLimit, "daily loss limit reached")
	}

	return nil
}

// OpenPosition runs the admission check and the position commit as one
// critical section: cash is decremented and the position inserted only if
// every gate passes.
func (m *Manager) OpenPosition(symbol string, side models.OrderSide, quantity int, entryPrice, stopLoss, takeProfit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cost := float64(quantity) * entryPrice
	if err := m.canOpenLocked(symbol, cost); err != nil {
		return err
	}

	m.positions[symbol] = &Position{
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
	}
	m.cash -= cost

	m.logger.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Int("quantity", quantity).
		Float64("entry", entryPrice).
		Float64("cash", m.cash).
		Msg("Position opened")

	return nil
}

// ClosePosition removes the position at the exit price, credits the
// proceeds and accumulates realized P&L into the daily total. The removed
// position is returned with its final price applied.
func (m *Manager) ClosePosition(symbol string, exitPrice float64) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return nil, ierrors.ErrPositionNotFound
	}

	pos.CurrentPrice = exitPrice
	// Credit the cost basis plus realized P&L; for a long this equals
	// quantity times exit price, and it stays correct for shorts.
	realized := pos.UnrealizedPnL()
	m.cash += float64(pos.Quantity)*pos.EntryPrice + realized
	m.dailyPnL += realized
	delete(m.positions, symbol)

	m.logger.Info().
		Str("symbol", symbol).
		Int("quantity", pos.Quantity).
		Float64("exit", exitPrice).
		Float64("pnl", realized).
		Msg("Position closed")

	return pos, nil
}

// UpdatePrices applies the latest quotes to open positions. Unknown symbols
// are ignored.
func (m *Manager) UpdatePrices(prices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, price := range prices {
		if pos, ok := m.positions[symbol]; ok {
			pos.CurrentPrice = price
		}
	}
}

// Position returns a snapshot copy of the open position for symbol.
func (m *Manager) Position(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns snapshot copies of all open positions.
func (m *Manager) Positions() map[string]Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Position, len(m.positions))
	for s, p := range m.positions {
		out[s] = *p
	}
	return out
}

// CheckStopLoss reports whether the position's stop level is breached.
func (m *Manager) CheckStopLoss(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return false
	}
	if pos.Side == models.OrderSideSell {
		return pos.CurrentPrice >= pos.StopLoss
	}
	return pos.CurrentPrice <= pos.StopLoss
}

// CheckTakeProfit reports whether the position's target level is reached.
func (m *Manager) CheckTakeProfit(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return false
	}
	if pos.Side == models.OrderSideSell {
		return pos.CurrentPrice <= pos.TakeProfit
	}
	return pos.CurrentPrice >= pos.TakeProfit
}

// PortfolioSummary is the serializable portfolio snapshot produced for
// downstream consumers.
type PortfolioSummary struct {
	Cash               float64
	PositionsValue     float64
	TotalValue         float64
	UnrealizedPnL      float64
	DailyPnL           float64
	TotalReturnPercent float64
	NumPositions       int
	Positions          map[string]Position
}

// Summary returns the current portfolio snapshot.
func (m *Manager) Summary() PortfolioSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var unrealized, marketValue float64
	positions := make(map[string]Position, len(m.positions))
	for s, p := range m.positions {
		unrealized += p.UnrealizedPnL()
		marketValue += p.MarketValue()
		positions[s] = *p
	}

	totalValue := m.cash + marketValue
	totalReturn := 0.0
	if m.initialCapital > 0 {
		totalReturn = (totalValue - m.initialCapital) / m.initialCapital
	}

	return PortfolioSummary{
		Cash:               m.cash,
		PositionsValue:     marketValue,
		TotalValue:         totalValue,
		UnrealizedPnL:      unrealized,
		DailyPnL:           m.dailyPnL,
		TotalReturnPercent: totalReturn * 100,
		NumPositions:       len(m.positions),
		Positions:          positions,
	}
}

// Cash returns the current free cash.
func (m *Manager) Cash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash
}

// DailyPnL returns the realized P&L accumulated today.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// ResetDailyPnL clears the daily P&L counter at the start of a trading day.
func (m *Manager) ResetDailyPnL() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = 0
	m.logger.Info().Msg("Daily P&L reset")
}
