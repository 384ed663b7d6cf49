// Package notify delivers operator-facing notifications for signals, trades
// and errors.
package notify

import (
	"fmt"
	"strings"

	"intraday-scanner/internal/config"
	"intraday-scanner/internal/executor"
	"intraday-scanner/internal/strategy"
)

// Notifier receives pipeline events. Implementations must tolerate being
// called from multiple goroutines.
type Notifier interface {
	NotifySignal(sig strategy.Signal)
	NotifyTrade(record executor.OrderRecord)
	NotifyExit(symbol, reason string, pnl float64)
	NotifyError(context string, err error)
}

// levels mirror config.NotificationConfig.Level.
const (
	levelAll        = "all"
	levelTradesOnly = "trades_only"
	levelErrorsOnly = "errors_only"
)

// Nop is a Notifier that drops everything.
type Nop struct{}

func (Nop) NotifySignal(strategy.Signal)       {}
func (Nop) NotifyTrade(executor.OrderRecord)   {}
func (Nop) NotifyExit(string, string, float64) {}
func (Nop) NotifyError(string, error)          {}

// FromConfig returns the configured notifier.
func FromConfig(cfg config.NotificationConfig) Notifier {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewTerminal(cfg)
}

// formatCurrency formats an amount with the Indian numbering system.
func formatCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "₹" + formatIndianNumber(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups digits 3-then-2s from the right (12,34,567).
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]

	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}
