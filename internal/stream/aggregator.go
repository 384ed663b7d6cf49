// Package stream implements the real-time tick aggregation path: a bounded
// per-symbol tick ring feeding the signal engine on a debounced cadence.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intraday-scanner/internal/broker"
	"intraday-scanner/internal/config"
	"intraday-scanner/internal/logging"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/strategy"
)

// HistoryFunc supplies the trailing candle history a live evaluation is
// appended to.
type HistoryFunc func(ctx context.Context, symbol string) ([]models.Candle, error)

// tickRing is a fixed-capacity ring of ticks, oldest evicted first.
type tickRing struct {
	ticks []models.Tick
	head  int
	count int
}

func newTickRing(capacity int) *tickRing {
	return &tickRing{ticks: make([]models.Tick, capacity)}
}

func (r *tickRing) push(tick models.Tick) {
	r.ticks[r.head] = tick
	r.head = (r.head + 1) % len(r.ticks)
	if r.count < len(r.ticks) {
		r.count++
	}
}

// snapshot returns the buffered ticks in arrival order.
func (r *tickRing) snapshot() []models.Tick {
	out := make([]models.Tick, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.ticks)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.ticks[(start+i)%len(r.ticks)])
	}
	return out
}

// Aggregator consumes the ticker callback feed. Writes happen only on the
// callback goroutine; reads from other goroutines take the read lock.
type Aggregator struct {
	engine  *strategy.Engine
	history HistoryFunc
	cfg     config.StreamConfig
	logger  zerolog.Logger

	sink func(strategy.Signal)

	mu       sync.RWMutex
	rings    map[string]*tickRing
	latest   map[string]models.Tick
	lastEval map[string]time.Time
	seeded   map[string][]models.Candle
	seededAt map[string]time.Time
	down     bool

	now func() time.Time
}

// NewAggregator creates an aggregator over the given engine and history
// source.
func NewAggregator(engine *strategy.Engine, history HistoryFunc, cfg config.StreamConfig, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		engine:   engine,
		history:  history,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "stream"),
		rings:    make(map[string]*tickRing),
		latest:   make(map[string]models.Tick),
		lastEval: make(map[string]time.Time),
		seeded:   make(map[string][]models.Candle),
		seededAt: make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetSink registers the consumer for generated signals.
func (a *Aggregator) SetSink(sink func(strategy.Signal)) {
	a.sink = sink
}

// Attach wires the aggregator into a ticker's callbacks.
func (a *Aggregator) Attach(t broker.Ticker) {
	t.OnTick(a.OnTick)
	t.OnDisconnect(a.markDown)
	t.OnConnect(a.markUp)
	t.OnError(func(err error) {
		a.logger.Error().Err(err).Msg("ticker error")
	})
}

// OnTick ingests one tick: buffer it, update the latest-tick map, and if
// the per-symbol debounce has elapsed, re-evaluate the symbol.
func (a *Aggregator) OnTick(tick models.Tick) {
	now := a.now()

	a.mu.Lock()
	ring, ok := a.rings[tick.Symbol]
	if !ok {
		ring = newTickRing(a.cfg.TickBufferSize)
		a.rings[tick.Symbol] = ring
	}
	ring.push(tick)
	a.latest[tick.Symbol] = tick

	last, evaluated := a.lastEval[tick.Symbol]
	due := !evaluated || now.Sub(last) >= a.cfg.Debounce
	if due {
		a.lastEval[tick.Symbol] = now
	}
	a.mu.Unlock()

	if !due {
		return
	}

	a.evaluate(tick.Symbol, now)
}

// LatestTick returns the most recent tick for a symbol.
func (a *Aggregator) LatestTick(symbol string) (models.Tick, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tick, ok := a.latest[symbol]
	return tick, ok
}

// TickHistory returns a snapshot of the buffered ticks for a symbol.
func (a *Aggregator) TickHistory(symbol string) []models.Tick {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ring, ok := a.rings[symbol]
	if !ok {
		return nil
	}
	return ring.snapshot()
}

// IsDown reports whether the upstream feed is disconnected.
func (a *Aggregator) IsDown() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.down
}

// BuildCandle derives one candle from the ticks inside the trailing window.
// Returns false when no ticks fall inside the window.
func (a *Aggregator) BuildCandle(symbol string, now time.Time) (models.Candle, bool) {
	ticks := a.TickHistory(symbol)
	cutoff := now.Add(-a.cfg.CandleWindow)

	var recent []models.Tick
	for _, t := range ticks {
		if t.Timestamp.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		return models.Candle{}, false
	}

	candle := models.Candle{
		Timestamp: now,
		Open:      recent[0].LastPrice,
		High:      recent[0].LastPrice,
		Low:       recent[0].LastPrice,
		Close:     recent[len(recent)-1].LastPrice,
	}
	for _, t := range recent {
		if t.LastPrice > candle.High {
			candle.High = t.LastPrice
		}
		if t.LastPrice < candle.Low {
			candle.Low = t.LastPrice
		}
	}
	// VolumeTraded is cumulative for the session, so window volume is the
	// delta between the newest and oldest tick in the window.
	candle.Volume = recent[len(recent)-1].VolumeTraded - recent[0].VolumeTraded
	if candle.Volume < 0 {
		candle.Volume = 0
	}

	return candle, true
}

// evaluate appends the live candle to the seeded history and runs the
// engine. Evaluation failures are logged, never propagated to the feed.
func (a *Aggregator) evaluate(symbol string, now time.Time) {
	live, ok := a.BuildCandle(symbol, now)
	if !ok {
		return
	}

	history, err := a.candleHistory(symbol, now)
	if err != nil {
		l := logging.WithSymbol(a.logger, symbol)
		l.Warn().Err(err).Msg("history unavailable")
		return
	}

	candles := make([]models.Candle, 0, len(history)+1)
	candles = append(candles, history...)
	candles = append(candles, live)

	sig, _, err := a.engine.EvaluateBar(symbol, candles)
	if err != nil {
		l := logging.WithSymbol(a.logger, symbol)
		l.Debug().Err(err).Msg("stream evaluation skipped")
		return
	}
	if sig == nil {
		return
	}

	logging.LogSignal(a.logger, sig.Symbol, string(sig.Direction), string(sig.Quality), sig.Score, sig.Price)
	if a.sink != nil {
		a.sink(*sig)
	}
}

// candleHistory returns the cached seed history for a symbol, refreshing it
// once per candle window.
func (a *Aggregator) candleHistory(symbol string, now time.Time) ([]models.Candle, error) {
	a.mu.RLock()
	cached, ok := a.seeded[symbol]
	fresh := ok && now.Sub(a.seededAt[symbol]) < a.cfg.CandleWindow
	a.mu.RUnlock()

	if fresh {
		return cached, nil
	}

	candles, err := a.history(context.Background(), symbol)
	if err != nil {
		if ok {
			// Stale history beats no history.
			return cached, nil
		}
		return nil, err
	}

	a.mu.Lock()
	a.seeded[symbol] = candles
	a.seededAt[symbol] = now
	a.mu.Unlock()

	return candles, nil
}

func (a *Aggregator) markDown() {
	a.mu.Lock()
	a.down = true
	a.mu.Unlock()
	a.logger.Warn().Msg("tick feed disconnected")
}

func (a *Aggregator) markUp() {
	a.mu.Lock()
	a.down = false
	a.mu.Unlock()
	a.logger.Info().Msg("tick feed connected")
}
