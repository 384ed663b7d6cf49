// Package pipeline wires the scanner, stream aggregator, executor and risk
// manager together: every signal flows through one channel into a single
// coordinator goroutine, so execution decisions are naturally serialized.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intraday-scanner/internal/broker"
	"intraday-scanner/internal/config"
	"intraday-scanner/internal/executor"
	"intraday-scanner/internal/indicators"
	"intraday-scanner/internal/logging"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/notify"
	"intraday-scanner/internal/ratelimit"
	"intraday-scanner/internal/risk"
	"intraday-scanner/internal/scanner"
	"intraday-scanner/internal/strategy"
	"intraday-scanner/internal/stream"
)

// signalBuffer absorbs bursts from a scan cycle without blocking workers.
const signalBuffer = 64

// exitCheckInterval is how often open positions are re-evaluated against
// the exit rule.
const exitCheckInterval = 30 * time.Second

// Pipeline is the top-level coordinator.
type Pipeline struct {
	broker   broker.Broker
	scanner  *scanner.Scanner
	stream   *stream.Aggregator
	executor *executor.Controller
	risk     *risk.Manager
	engine   *strategy.Engine
	limiter  *ratelimit.Limiter
	notifier notify.Notifier
	cfg      config.Config
	logger   zerolog.Logger

	signals chan strategy.Signal
}

// New assembles a pipeline. The stream aggregator is optional; pass nil to
// run batch-only.
func New(b broker.Broker, sc *scanner.Scanner, agg *stream.Aggregator, exec *executor.Controller,
	rm *risk.Manager, engine *strategy.Engine, n notify.Notifier, cfg config.Config, logger zerolog.Logger) *Pipeline {

	p := &Pipeline{
		broker:   b,
		scanner:  sc,
		stream:   agg,
		executor: exec,
		risk:     rm,
		engine:   engine,
		limiter:  sc.Limiter(),
		notifier: n,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "pipeline"),
		signals:  make(chan strategy.Signal, signalBuffer),
	}

	sc.SetSink(p.enqueue)
	if agg != nil {
		agg.SetSink(p.enqueue)
	}

	return p
}

// Run blocks until the context is cancelled. It starts the scanner loop,
// the signal consumer and the exit monitor.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.scanner.Run(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("scanner terminated")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.consume(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.monitorExits(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// enqueue is the shared sink for both signal producers. A full buffer drops
// the signal; a stale signal is worth less than a blocked tick callback.
func (p *Pipeline) enqueue(sig strategy.Signal) {
	p.notifier.NotifySignal(sig)

	select {
	case p.signals <- sig:
	default:
		p.logger.Warn().Str("symbol", sig.Symbol).Msg("signal buffer full, dropping")
	}
}

// consume executes signals one at a time, in arrival order.
func (p *Pipeline) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-p.signals:
			record, err := p.executor.ExecuteSignal(ctx, sig)
			if err != nil {
				// Rejections are routine; they are already recorded with
				// their reason by the executor.
				p.logger.Debug().Err(err).Str("symbol", sig.Symbol).Msg("signal not executed")
				continue
			}
			p.notifier.NotifyTrade(*record)
		}
	}
}

// monitorExits periodically re-prices open positions and applies the exit
// rule, closing any position that reaches a terminal state.
func (p *Pipeline) monitorExits(ctx context.Context) {
	ticker := time.NewTicker(exitCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkExits(ctx)
		}
	}
}

func (p *Pipeline) checkExits(ctx context.Context) {
	positions := p.risk.Positions()
	if len(positions) == 0 {
		return
	}

	prices := make(map[string]float64, len(positions))
	vwaps := make(map[string]float64, len(positions))

	for symbol := range positions {
		price, vwap, err := p.priceAndVWAP(ctx, symbol)
		if err != nil {
			l := logging.WithSymbol(p.logger, symbol)
			l.Warn().Err(err).Msg("exit check skipped")
			continue
		}
		prices[symbol] = price
		vwaps[symbol] = vwap
	}

	p.risk.UpdatePrices(prices)

	for symbol, pos := range positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}

		state, reason := p.engine.CheckExit(pos.Side, pos.EntryPrice, price, vwaps[symbol])
		if !state.Terminal() {
			// Positions carry their own stop and target levels, which may
			// sit inside the engine's default percentages.
			switch {
			case p.risk.CheckStopLoss(symbol):
				state = strategy.ExitStop
				reason = fmt.Sprintf("Stop loss %.2f hit at %.2f", pos.StopLoss, price)
			case p.risk.CheckTakeProfit(symbol):
				state = strategy.ExitTarget
				reason = fmt.Sprintf("Take profit %.2f hit at %.2f", pos.TakeProfit, price)
			default:
				continue
			}
		}

		closed, err := p.risk.ClosePosition(symbol, price)
		if err != nil {
			l := logging.WithSymbol(p.logger, symbol)
			l.Error().Err(err).Msg("close failed")
			continue
		}

		p.placeExitOrder(ctx, closed)

		l := logging.WithSymbol(p.logger, symbol)
		l.Info().
			Str("state", string(state)).
			Float64("pnl", closed.UnrealizedPnL()).
			Msg(reason)
		p.notifier.NotifyExit(symbol, reason, closed.UnrealizedPnL())
	}
}

// priceAndVWAP fetches the latest price and session VWAP for a symbol. The
// stream's latest tick is preferred; the quote endpoint is the fallback.
func (p *Pipeline) priceAndVWAP(ctx context.Context, symbol string) (float64, float64, error) {
	var price float64

	// A downed feed only holds stale ticks; fall through to the quote.
	if p.stream != nil && !p.stream.IsDown() {
		if tick, ok := p.stream.LatestTick(symbol); ok {
			price = tick.LastPrice
		}
	}

	if price == 0 {
		p.limiter.Acquire()
		quote, err := p.broker.GetQuote(ctx, symbol)
		if err != nil {
			return 0, 0, err
		}
		price = quote.LastPrice
	}

	p.limiter.Acquire()
	to := time.Now()
	candles, err := p.broker.GetHistorical(ctx, broker.HistoricalRequest{
		Symbol:    symbol,
		Exchange:  models.Exchange(p.cfg.Trading.DefaultExchange),
		Timeframe: p.cfg.Trading.CandleInterval,
		From:      to.AddDate(0, 0, -1),
		To:        to,
	})
	if err != nil || len(candles) == 0 {
		// The stop and target legs still work without a VWAP reading.
		return price, 0, nil
	}

	values, err := indicators.NewVWAP().Calculate(candles)
	if err != nil || len(values) == 0 {
		return price, 0, nil
	}

	return price, values[len(values)-1], nil
}

// placeExitOrder squares off a closed position at market. Dry-run mode and
// paper trading leave the broker untouched.
func (p *Pipeline) placeExitOrder(ctx context.Context, pos *risk.Position) {
	if p.cfg.Executor.DryRun || p.cfg.IsPaperMode() {
		return
	}

	_, err := p.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   pos.Symbol,
		Exchange: models.Exchange(p.cfg.Trading.DefaultExchange),
		Side:     pos.Side.Opposite(),
		Type:     models.OrderTypeMarket,
		Quantity: pos.Quantity,
		Tag:      "exit",
	})
	if err != nil {
		l := logging.WithSymbol(p.logger, pos.Symbol)
		l.Error().Err(err).Msg("exit order failed")
		p.notifier.NotifyError("exit order", err)
	}
}
