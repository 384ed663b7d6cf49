// Package config provides configuration management for the scanner pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. A single value is constructed
// at startup and passed into each component's constructor.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Scanner       ScannerConfig      `mapstructure:"scanner"`
	Stream        StreamConfig       `mapstructure:"stream"`
	Executor      ExecutorConfig     `mapstructure:"executor"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode            string   `mapstructure:"mode"`             // "live", "paper"
	DefaultExchange string   `mapstructure:"default_exchange"` // NSE, BSE
	Symbols         []string `mapstructure:"symbols"`
	CandleInterval  string   `mapstructure:"candle_interval"` // e.g. "5minute"
	HistoryDays     int      `mapstructure:"history_days"`
}

// RiskConfig holds risk management configuration.
type RiskConfig struct {
	InitialCapital   float64 `mapstructure:"initial_capital"`
	MaxPortfolioRisk float64 `mapstructure:"max_portfolio_risk"` // fraction per trade
	MaxPositionSize  float64 `mapstructure:"max_position_size"`  // fraction of portfolio
	MaxOpenPositions int     `mapstructure:"max_open_positions"`
	MaxDailyLoss     float64 `mapstructure:"max_daily_loss"` // fraction of initial capital
}

// ScannerConfig holds batch scanner configuration.
type ScannerConfig struct {
	Workers          int           `mapstructure:"workers"`
	ScanInterval     time.Duration `mapstructure:"scan_interval"`
	RateLimitCalls   int           `mapstructure:"rate_limit_calls"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`
	SignalRetention  time.Duration `mapstructure:"signal_retention"`
	ClosedWaitPeriod time.Duration `mapstructure:"closed_wait_period"`
}

// StreamConfig holds real-time stream aggregation configuration.
type StreamConfig struct {
	TickBufferSize int           `mapstructure:"tick_buffer_size"`
	Debounce       time.Duration `mapstructure:"debounce"`
	CandleWindow   time.Duration `mapstructure:"candle_window"`
}

// ExecutorConfig holds auto-execution configuration.
type ExecutorConfig struct {
	DryRun          bool `mapstructure:"dry_run"`
	MaxTradesPerDay int  `mapstructure:"max_trades_per_day"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"` // all, trades_only, errors_only
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	UserID    string `mapstructure:"user_id"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/intraday-scanner"
	}
	return filepath.Join(home, ".config", "intraday-scanner")
}

// Default returns a configuration with built-in defaults, used when no
// config file is present and by tests.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Mode:            "paper",
			DefaultExchange: "NSE",
			CandleInterval:  "5minute",
			HistoryDays:     5,
		},
		Risk: RiskConfig{
			InitialCapital:   100000,
			MaxPortfolioRisk: 0.02,
			MaxPositionSize:  0.1,
			MaxOpenPositions: 5,
			MaxDailyLoss:     0.05,
		},
		Scanner: ScannerConfig{
			Workers:          2,
			ScanInterval:     60 * time.Second,
			RateLimitCalls:   3,
			RateLimitWindow:  time.Second,
			SignalRetention:  24 * time.Hour,
			ClosedWaitPeriod: 5 * time.Minute,
		},
		Stream: StreamConfig{
			TickBufferSize: 100,
			Debounce:       2 * time.Second,
			CandleWindow:   5 * time.Minute,
		},
		Executor: ExecutorConfig{
			DryRun:          true,
			MaxTradesPerDay: 10,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Level:   "all",
		},
	}
}

// Load loads configuration from the specified directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_USER_ID"); v != "" {
		cfg.Credentials.Zerodha.UserID = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}

	if c.Risk.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if c.Risk.MaxPortfolioRisk <= 0 || c.Risk.MaxPortfolioRisk > 1 {
		return fmt.Errorf("max_portfolio_risk must be in (0, 1]")
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		return fmt.Errorf("max_position_size must be in (0, 1]")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive")
	}
	if c.Risk.MaxDailyLoss < 0 || c.Risk.MaxDailyLoss > 1 {
		return fmt.Errorf("max_daily_loss must be in [0, 1]")
	}

	if c.Scanner.Workers <= 0 {
		return fmt.Errorf("scanner workers must be positive")
	}
	if c.Scanner.RateLimitCalls <= 0 || c.Scanner.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}

	if c.Stream.TickBufferSize <= 0 {
		return fmt.Errorf("tick_buffer_size must be positive")
	}
	if c.Stream.Debounce < 0 {
		return fmt.Errorf("stream debounce must be non-negative")
	}

	if c.Executor.MaxTradesPerDay <= 0 {
		return fmt.Errorf("max_trades_per_day must be positive")
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
