package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"intraday-scanner/internal/broker"
	"intraday-scanner/internal/config"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/strategy"
)

// fakeBroker serves canned candle history per symbol and records calls.
type fakeBroker struct {
	mu      sync.Mutex
	history map[string][]models.Candle
	fail    map[string]error
	calls   []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		history: make(map[string][]models.Candle),
		fail:    make(map[string]error),
	}
}

func (f *fakeBroker) Login(context.Context) error  { return nil }
func (f *fakeBroker) Logout(context.Context) error { return nil }
func (f *fakeBroker) IsAuthenticated() bool        { return true }

func (f *fakeBroker) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBroker) GetHistorical(_ context.Context, req broker.HistoricalRequest) ([]models.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Symbol)
	f.mu.Unlock()

	if err, ok := f.fail[req.Symbol]; ok {
		return nil, err
	}
	return f.history[req.Symbol], nil
}

func (f *fakeBroker) GetInstrumentToken(context.Context, string, models.Exchange) (uint32, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeBroker) PlaceOrder(context.Context, broker.OrderRequest) (*broker.OrderResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBroker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func uptrend(n int) []models.Candle {
	base := time.Date(2026, 1, 15, 9, 15, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		close := 100 + 0.5*float64(i+1)
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      close - 0.5,
			High:      close + 0.3,
			Low:       close - 0.8,
			Close:     close,
			Volume:    1000,
		}
	}
	candles[n-1].Volume = 2000
	return candles
}

// flat produces history that clears the bar count but never signals.
func flat(n int) []models.Candle {
	base := time.Date(2026, 1, 15, 9, 15, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100,
			High:      100.01,
			Low:       99.99,
			Close:     100,
			Volume:    100,
		}
	}
	return candles
}

func testScanConfig(symbols ...string) config.Config {
	cfg := *config.Default()
	cfg.Trading.Symbols = symbols
	cfg.Scanner.Workers = 2
	cfg.Scanner.RateLimitCalls = 100
	cfg.Scanner.RateLimitWindow = time.Second
	return cfg
}

func newTestScanner(fb *fakeBroker, cfg config.Config) *Scanner {
	s := New(fb, strategy.NewEngine(), cfg, zerolog.Nop())
	s.marketStatus = func() models.MarketStatus { return models.MarketOpen }
	return s
}

func TestScanOnceGeneratesSignals(t *testing.T) {
	fb := newFakeBroker()
	fb.history["RELIANCE"] = uptrend(60)
	fb.history["TCS"] = flat(60)

	var sinked []strategy.Signal
	var sinkMu sync.Mutex

	s := newTestScanner(fb, testScanConfig("RELIANCE", "TCS"))
	s.SetSink(func(sig strategy.Signal) {
		sinkMu.Lock()
		sinked = append(sinked, sig)
		sinkMu.Unlock()
	})

	n, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("generated = %d, want 1", n)
	}

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if len(sinked) != 1 || sinked[0].Symbol != "RELIANCE" {
		t.Fatalf("sink received %+v, want one RELIANCE signal", sinked)
	}
	if got := s.RecentSignals(); len(got) != 1 {
		t.Errorf("RecentSignals = %d entries, want 1", len(got))
	}
}

func TestScanOnceFailureIsolation(t *testing.T) {
	fb := newFakeBroker()
	fb.history["RELIANCE"] = uptrend(60)
	fb.fail["BADSYM"] = errors.New("quote service unavailable")
	fb.history["TCS"] = flat(60)

	s := newTestScanner(fb, testScanConfig("BADSYM", "RELIANCE", "TCS"))

	n, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce returned error despite per-symbol failure: %v", err)
	}
	if n != 1 {
		t.Fatalf("generated = %d, want 1", n)
	}
	if got := fb.callCount(); got != 3 {
		t.Errorf("broker calls = %d, want 3 (failure must not stop the sweep)", got)
	}

	stats := s.Stats()
	if stats.SymbolsScanned != 3 {
		t.Errorf("SymbolsScanned = %d, want 3", stats.SymbolsScanned)
	}
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
	if stats.SignalsGenerated != 1 {
		t.Errorf("SignalsGenerated = %d, want 1", stats.SignalsGenerated)
	}
	if stats.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", stats.Cycles)
	}
}

func TestScanOnceMixedWatchlist(t *testing.T) {
	fb := newFakeBroker()
	fb.history["RELIANCE"] = uptrend(60)
	fb.history["HDFCBANK"] = uptrend(60)
	fb.history["TCS"] = flat(60)
	fb.history["INFY"] = flat(60)
	fb.history["SBIN"] = flat(60)

	s := newTestScanner(fb, testScanConfig("RELIANCE", "HDFCBANK", "TCS", "INFY", "SBIN"))

	n, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("generated = %d, want 2", n)
	}

	got := map[string]bool{}
	for _, sig := range s.RecentSignals() {
		got[sig.Symbol] = true
	}
	if !got["RELIANCE"] || !got["HDFCBANK"] || len(got) != 2 {
		t.Errorf("signal symbols = %v, want RELIANCE and HDFCBANK", got)
	}
}

func TestScanOnceInsufficientHistoryCounted(t *testing.T) {
	fb := newFakeBroker()
	fb.history["NEWLIST"] = flat(10)

	s := newTestScanner(fb, testScanConfig("NEWLIST"))

	if _, err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if got := s.Stats().Failures; got != 1 {
		t.Errorf("Failures = %d, want 1 for short history", got)
	}
}

func TestRunSkipsCyclesWhileMarketClosed(t *testing.T) {
	fb := newFakeBroker()
	fb.history["RELIANCE"] = uptrend(60)

	cfg := testScanConfig("RELIANCE")
	cfg.Scanner.ClosedWaitPeriod = 5 * time.Millisecond

	s := newTestScanner(fb, cfg)
	s.marketStatus = func() models.MarketStatus { return models.MarketClosed }

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want deadline exceeded", err)
	}
	if got := fb.callCount(); got != 0 {
		t.Errorf("broker calls while closed = %d, want 0", got)
	}
	if got := s.Stats().Cycles; got != 0 {
		t.Errorf("Cycles while closed = %d, want 0", got)
	}
}

func TestRunScansDuringSquareOffWarning(t *testing.T) {
	fb := newFakeBroker()
	fb.history["RELIANCE"] = uptrend(60)

	cfg := testScanConfig("RELIANCE")
	cfg.Scanner.ScanInterval = 5 * time.Millisecond

	s := newTestScanner(fb, cfg)
	s.marketStatus = func() models.MarketStatus { return models.MarketMISSquareOffWarn }

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx)

	if got := s.Stats().Cycles; got < 1 {
		t.Errorf("Cycles during square-off warning = %d, want at least 1", got)
	}
	if got := fb.callCount(); got < 1 {
		t.Errorf("broker calls during square-off warning = %d, want at least 1", got)
	}
}

func TestRunScansWhileMarketOpen(t *testing.T) {
	fb := newFakeBroker()
	fb.history["RELIANCE"] = uptrend(60)

	cfg := testScanConfig("RELIANCE")
	cfg.Scanner.ScanInterval = 5 * time.Millisecond

	s := newTestScanner(fb, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx)

	if got := s.Stats().Cycles; got < 2 {
		t.Errorf("Cycles = %d, want at least 2", got)
	}
}

func TestPruneRecentDropsExpiredSignals(t *testing.T) {
	fb := newFakeBroker()
	cfg := testScanConfig("RELIANCE")
	cfg.Scanner.SignalRetention = time.Hour

	s := newTestScanner(fb, cfg)
	s.record(strategy.Signal{Symbol: "OLD", Timestamp: time.Now().Add(-2 * time.Hour)})
	s.record(strategy.Signal{Symbol: "FRESH", Timestamp: time.Now()})

	s.pruneRecent()

	got := s.RecentSignals()
	if len(got) != 1 || got[0].Symbol != "FRESH" {
		t.Fatalf("RecentSignals after prune = %+v, want only FRESH", got)
	}
}
