package notify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"

	"intraday-scanner/internal/config"
	"intraday-scanner/internal/executor"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/strategy"
)

// Terminal prints colored notifications to stdout. Output is serialized so
// concurrent events do not interleave lines.
type Terminal struct {
	level string
	mu    sync.Mutex
}

// NewTerminal creates a terminal notifier honoring the configured level.
func NewTerminal(cfg config.NotificationConfig) *Terminal {
	level := cfg.Level
	if level == "" {
		level = levelAll
	}
	return &Terminal{level: level}
}

// NotifySignal prints a generated signal, color-coded by quality tier.
func (t *Terminal) NotifySignal(sig strategy.Signal) {
	if t.level != levelAll {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	paint := color.New(color.FgYellow)
	switch sig.Quality {
	case strategy.QualityHighProb:
		paint = color.New(color.FgGreen, color.Bold)
	case strategy.QualityStrong:
		paint = color.New(color.FgGreen)
	}

	paint.Printf("⚡ %s %s @ %s [%s %d/8]\n",
		sig.Symbol, sig.Direction, formatCurrency(sig.Price), sig.Quality, sig.Score)
	fmt.Printf("   SL %s | TP %s | R:R %.2f\n",
		formatCurrency(sig.StopLoss), formatCurrency(sig.TakeProfit), sig.RiskRewardRatio())

	// Top-tier signals get the full condition breakdown.
	if sig.Quality == strategy.QualityHighProb {
		dim := color.New(color.Faint)
		for _, line := range strings.Split(strings.TrimRight(sig.DetailedExplanation(), "\n"), "\n") {
			dim.Printf("   %s\n", line)
		}
	}
}

// NotifyTrade prints an executed bracket order.
func (t *Terminal) NotifyTrade(record executor.OrderRecord) {
	if t.level == levelErrorsOnly {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	mode := ""
	if record.DryRun {
		mode = " [DRY RUN]"
	}

	paint := color.New(color.FgGreen, color.Bold)
	if record.Side == models.OrderSideSell {
		paint = color.New(color.FgRed, color.Bold)
	}

	paint.Printf("🎯 %s %d × %s @ %s%s\n",
		record.Side, record.Quantity, record.Symbol, formatCurrency(record.EntryPrice), mode)
	fmt.Printf("   entry=%s sl=%s tp=%s\n",
		record.EntryOrderID, record.StopOrderID, record.TargetOrderID)
}

// NotifyExit prints a closed position with its realized P&L.
func (t *Terminal) NotifyExit(symbol, reason string, pnl float64) {
	if t.level == levelErrorsOnly {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if pnl >= 0 {
		color.Green("✓ %s closed: %s (%s)", symbol, formatCurrency(pnl), reason)
	} else {
		color.Red("✗ %s closed: %s (%s)", symbol, formatCurrency(pnl), reason)
	}
}

// NotifyError prints a pipeline error.
func (t *Terminal) NotifyError(context string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	color.Red("⚠ %s: %v", context, err)
}
