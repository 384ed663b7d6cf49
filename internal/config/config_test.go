package config

import (
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Trading.Mode = "real" }, "trading mode"},
		{"zero capital", func(c *Config) { c.Risk.InitialCapital = 0 }, "initial_capital"},
		{"risk over one", func(c *Config) { c.Risk.MaxPortfolioRisk = 1.5 }, "max_portfolio_risk"},
		{"zero position size", func(c *Config) { c.Risk.MaxPositionSize = 0 }, "max_position_size"},
		{"zero positions", func(c *Config) { c.Risk.MaxOpenPositions = 0 }, "max_open_positions"},
		{"zero workers", func(c *Config) { c.Scanner.Workers = 0 }, "workers"},
		{"zero rate limit", func(c *Config) { c.Scanner.RateLimitCalls = 0 }, "rate limit"},
		{"zero tick buffer", func(c *Config) { c.Stream.TickBufferSize = 0 }, "tick_buffer_size"},
		{"zero trade cap", func(c *Config) { c.Executor.MaxTradesPerDay = 0 }, "max_trades_per_day"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestIsPaperMode(t *testing.T) {
	cfg := Default()
	if !cfg.IsPaperMode() {
		t.Error("default mode is not paper")
	}
	cfg.Trading.Mode = "live"
	if cfg.IsPaperMode() {
		t.Error("live mode reported as paper")
	}
}
