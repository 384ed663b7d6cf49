package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Intraday Scanner Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Default exchange: NSE, BSE
default_exchange = "NSE"
# Symbol universe to scan
symbols = ["RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK"]
# Historical candle interval
candle_interval = "5minute"
# Days of history fetched per scan
history_days = 5

[risk]
# Starting portfolio capital
initial_capital = 100000.0
# Maximum risk per trade as a fraction of portfolio value
max_portfolio_risk = 0.02
# Maximum single-position cost as a fraction of portfolio value
max_position_size = 0.1
# Maximum number of concurrent open positions
max_open_positions = 5
# Daily loss limit as a fraction of initial capital
max_daily_loss = 0.05

[scanner]
# Worker pool size (kept small to respect broker rate limits)
workers = 2
# Delay between scan cycles
scan_interval = "60s"
# Broker API rate limit: calls per window
rate_limit_calls = 3
rate_limit_window = "1s"
# How long generated signals are retained in memory
signal_retention = "24h"
# Wait between market-hours checks while closed
closed_wait_period = "5m"

[stream]
# Ticks retained per symbol
tick_buffer_size = 100
# Minimum interval between signal re-evaluations per symbol
debounce = "2s"
# Trailing window for candles derived from ticks
candle_window = "5m"

[executor]
# Simulate order placement instead of calling the broker
dry_run = true
# Daily trade cap
max_trades_per_day = 10

[notifications]
# Enable terminal notifications
enabled = true
# Notification level: all, trades_only, errors_only
level = "all"
`

const credentialsTemplate = `# Intraday Scanner Credentials
# Get your API credentials from https://kite.trade

[zerodha]
api_key = ""
api_secret = ""
user_id = ""
`

func createTemplateConfig(configDir string) error {
	return writeTemplate(configDir, "config.toml", configTemplate)
}

func createTemplateCredentials(configDir string) error {
	return writeTemplate(configDir, "credentials.toml", credentialsTemplate)
}

func writeTemplate(configDir, name, content string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	path := filepath.Join(configDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	return nil
}
