package strategy

import (
	"fmt"

	"intraday-scanner/internal/models"
)

// ExitState is the per-position exit decision evaluated on each new price.
// Stop, Target and VWAPRevert are terminal: the position is closed.
type ExitState string

const (
	ExitHold       ExitState = "HOLD"
	ExitStop       ExitState = "STOP"
	ExitTarget     ExitState = "TARGET"
	ExitVWAPRevert ExitState = "VWAP_REVERT"
)

// ExitConfig holds the exit rule thresholds.
type ExitConfig struct {
	StopLossPercent   float64 // close at this unrealized loss
	TakeProfitPercent float64 // close at this unrealized gain
	VWAPMinProfit     float64 // minimum gain before a VWAP revert exit
	VWAPDistance      float64 // proximity to VWAP that completes the reversion
}

// DefaultExitConfig returns the production exit thresholds.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		StopLossPercent:   0.003,
		TakeProfitPercent: 0.007,
		VWAPMinProfit:     0.002,
		VWAPDistance:      0.001,
	}
}

// CheckExit evaluates the exit rule for one open position. The unrealized
// return is computed in the position's direction, so SELL positions profit
// from falling prices.
func (e *Engine) CheckExit(direction models.OrderSide, entryPrice, currentPrice, vwap float64) (ExitState, string) {
	return checkExit(DefaultExitConfig(), direction, entryPrice, currentPrice, vwap)
}

func checkExit(cfg ExitConfig, direction models.OrderSide, entryPrice, currentPrice, vwap float64) (ExitState, string) {
	if entryPrice <= 0 {
		return ExitHold, "Hold position"
	}

	pnlPercent := (currentPrice - entryPrice) / entryPrice
	if direction == models.OrderSideSell {
		pnlPercent = -pnlPercent
	}

	if pnlPercent <= -cfg.StopLossPercent {
		return ExitStop, fmt.Sprintf("Stop loss hit: %.2f%%", pnlPercent*100)
	}

	if pnlPercent >= cfg.TakeProfitPercent {
		return ExitTarget, fmt.Sprintf("Profit target reached: %.2f%%", pnlPercent*100)
	}

	// Mean reversion complete: in profit and back at VWAP.
	if vwap > 0 && pnlPercent >= cfg.VWAPMinProfit {
		distance := absF(currentPrice-vwap) / vwap
		if distance < cfg.VWAPDistance {
			return ExitVWAPRevert, fmt.Sprintf("Price returned to VWAP: %.2f%% profit", pnlPercent*100)
		}
	}

	return ExitHold, "Hold position"
}

// Terminal reports whether the state closes the position.
func (s ExitState) Terminal() bool {
	return s == ExitStop || s == ExitTarget || s == ExitVWAPRevert
}
