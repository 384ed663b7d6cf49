// Package scanner implements the concurrent batch scanner that sweeps the
// watchlist through the signal engine on a fixed interval.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intraday-scanner/internal/broker"
	"intraday-scanner/internal/config"
	"intraday-scanner/internal/logging"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/ratelimit"
	"intraday-scanner/internal/strategy"
	"intraday-scanner/pkg/utils"
)

// Statistics is a point-in-time snapshot of scanner counters.
type Statistics struct {
	Cycles           int
	SymbolsScanned   int
	SignalsGenerated int
	Failures         int
	LastCycleAt      time.Time
}

// Scanner sweeps the configured watchlist with a bounded worker pool. One
// symbol failing never aborts the cycle; failures are logged and counted.
type Scanner struct {
	broker  broker.Broker
	engine  *strategy.Engine
	limiter *ratelimit.Limiter
	cfg     config.Config
	logger  zerolog.Logger

	// sink receives every generated signal; nil means record-only.
	sink func(strategy.Signal)

	// marketStatus is swappable in tests.
	marketStatus func() models.MarketStatus

	mu     sync.Mutex
	recent []strategy.Signal
	stats  Statistics
}

// New creates a scanner over the given broker and engine.
func New(b broker.Broker, engine *strategy.Engine, cfg config.Config, logger zerolog.Logger) *Scanner {
	return &Scanner{
		broker:       b,
		engine:       engine,
		limiter:      ratelimit.New(cfg.Scanner.RateLimitCalls, cfg.Scanner.RateLimitWindow),
		cfg:          cfg,
		logger:       logging.WithComponent(logger, "scanner"),
		marketStatus: utils.GetMarketStatus,
	}
}

// Limiter exposes the broker call limiter so other data paths can share
// the same budget.
func (s *Scanner) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// SetSink registers the consumer for generated signals. Must be called
// before Run or ScanOnce.
func (s *Scanner) SetSink(sink func(strategy.Signal)) {
	s.sink = sink
}

// Run scans continuously until the context is cancelled. Outside market
// hours the scanner idles for the configured wait period instead of a
// full cycle.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info().
		Int("symbols", len(s.cfg.Trading.Symbols)).
		Int("workers", s.workers()).
		Dur("interval", s.cfg.Scanner.ScanInterval).
		Msg("scanner started")

	for {
		wait := s.cfg.Scanner.ScanInterval

		// The MIS square-off warning window is still a live session.
		if st := s.marketStatus(); st != models.MarketOpen && st != models.MarketMISSquareOffWarn {
			s.logger.Debug().Msg("market closed, skipping cycle")
			wait = s.cfg.Scanner.ClosedWaitPeriod
		} else {
			if _, err := s.ScanOnce(ctx); err != nil {
				return err
			}
			s.pruneRecent()
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scanner stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ScanOnce runs a single cycle over the watchlist and returns the number
// of signals generated. It returns an error only when the cycle itself
// cannot run; per-symbol failures are absorbed.
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	symbols := s.cfg.Trading.Symbols
	start := time.Now()

	workChan := make(chan string, len(symbols))
	var wg sync.WaitGroup

	var cycleMu sync.Mutex
	scanned, generated, failures := 0, 0, 0

	for i := 0; i < s.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range workChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				sig, err := s.scanSymbol(ctx, symbol)

				cycleMu.Lock()
				scanned++
				if err != nil {
					failures++
				} else if sig != nil {
					generated++
				}
				cycleMu.Unlock()

				if err != nil {
					l := logging.WithSymbol(s.logger, symbol)
					l.Warn().Err(err).Msg("symbol scan failed")
					continue
				}
				if sig != nil {
					s.record(*sig)
				}
			}
		}()
	}

	for _, symbol := range symbols {
		workChan <- symbol
	}
	close(workChan)
	wg.Wait()

	s.mu.Lock()
	s.stats.Cycles++
	s.stats.SymbolsScanned += scanned
	s.stats.SignalsGenerated += generated
	s.stats.Failures += failures
	s.stats.LastCycleAt = start
	s.mu.Unlock()

	logging.LogScanCycle(s.logger, scanned, generated, time.Since(start))
	return generated, nil
}

// scanSymbol fetches history for one symbol and evaluates the latest bar.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string) (*strategy.Signal, error) {
	s.limiter.Acquire()

	to := time.Now()
	from := to.AddDate(0, 0, -s.cfg.Trading.HistoryDays)

	candles, err := s.broker.GetHistorical(ctx, broker.HistoricalRequest{
		Symbol:    symbol,
		Exchange:  models.Exchange(s.cfg.Trading.DefaultExchange),
		Timeframe: s.cfg.Trading.CandleInterval,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, err
	}

	sig, reason, err := s.engine.EvaluateBar(symbol, candles)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		l := logging.WithSymbol(s.logger, symbol)
		l.Debug().Str("reason", reason).Msg("no signal")
		return nil, nil
	}

	logging.LogSignal(s.logger, sig.Symbol, string(sig.Direction), string(sig.Quality), sig.Score, sig.Price)
	return sig, nil
}

// RecentSignals returns a copy of signals still inside the retention window.
func (s *Scanner) RecentSignals() []strategy.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]strategy.Signal, len(s.recent))
	copy(out, s.recent)
	return out
}

// Stats returns a snapshot of the scanner counters.
func (s *Scanner) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scanner) record(sig strategy.Signal) {
	s.mu.Lock()
	s.recent = append(s.recent, sig)
	s.mu.Unlock()

	if s.sink != nil {
		s.sink(sig)
	}
}

func (s *Scanner) pruneRecent() {
	cutoff := time.Now().Add(-s.cfg.Scanner.SignalRetention)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.recent[:0]
	for _, sig := range s.recent {
		if sig.Timestamp.After(cutoff) {
			kept = append(kept, sig)
		}
	}
	s.recent = kept
}

func (s *Scanner) workers() int {
	if s.cfg.Scanner.Workers > 0 {
		return s.cfg.Scanner.Workers
	}
	return 2
}
