// Package executor implements the risk-gated auto-execution controller.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intraday-scanner/internal/broker"
	"intraday-scanner/internal/config"
	apperrors "intraday-scanner/internal/errors"
	"intraday-scanner/internal/logging"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/risk"
	"intraday-scanner/internal/strategy"
)

// OrderRecord ties the three bracket legs of one executed signal together.
type OrderRecord struct {
	Symbol        string
	Side          models.OrderSide
	Quantity      int
	EntryPrice    float64
	StopLoss      float64
	TakeProfit    float64
	EntryOrderID  string
	StopOrderID   string
	TargetOrderID string
	Quality       strategy.Quality
	DryRun        bool
	PlacedAt      time.Time
}

// RejectedRecord captures a signal that was dropped, with why.
type RejectedRecord struct {
	Symbol     string
	Side       models.OrderSide
	Reason     string
	RejectedAt time.Time
}

// Statistics is a snapshot of the controller counters.
type Statistics struct {
	Active      bool
	DryRun      bool
	TradesToday int
	MaxTrades   int
	Placed      int
	Rejected    int
}

// Controller consumes signals and turns accepted ones into bracket orders.
// ExecuteSignal is fully serialized: the admission check and the position
// commit for one signal always complete before the next signal is examined.
type Controller struct {
	broker  broker.Broker
	risk    *risk.Manager
	cfg     config.ExecutorConfig
	trading config.TradingConfig
	logger  zerolog.Logger

	mu          sync.Mutex
	active      bool
	tradesToday int
	dryRunSeq   int
	placed      []OrderRecord
	rejected    []RejectedRecord

	now func() time.Time
}

// New creates an inactive controller. Call Activate before feeding signals.
func New(b broker.Broker, rm *risk.Manager, cfg config.ExecutorConfig, trading config.TradingConfig, logger zerolog.Logger) *Controller {
	mode := "live"
	if cfg.DryRun {
		mode = "dry-run"
	}
	l := logging.WithComponent(logger, "executor")
	l.Info().Str("mode", mode).Int("max_trades_per_day", cfg.MaxTradesPerDay).Msg("executor created")

	return &Controller{
		broker:  b,
		risk:    rm,
		cfg:     cfg,
		trading: trading,
		logger:  l,
		now:     time.Now,
	}
}

// Activate enables signal execution.
func (c *Controller) Activate() {
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	c.logger.Info().Msg("executor activated")
}

// Deactivate disables signal execution. In-flight calls finish first.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	c.logger.Info().Msg("executor deactivated")
}

// IsActive reports whether signals are being executed.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ExecuteSignal runs a signal through the admission gates and, if accepted,
// places the bracket order and commits the position. A rejected signal is
// recorded with its reason and dropped; it is never retried.
func (c *Controller) ExecuteSignal(ctx context.Context, sig strategy.Signal) (*OrderRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return nil, c.reject(sig, "executor inactive", apperrors.ErrExecutorInactive)
	}

	if c.tradesToday >= c.cfg.MaxTradesPerDay {
		return nil, c.reject(sig,
			fmt.Sprintf("daily trade cap reached (%d)", c.cfg.MaxTradesPerDay),
			apperrors.NewRiskError("max_trades_per_day", float64(c.tradesToday), float64(c.cfg.MaxTradesPerDay), "daily trade cap reached"))
	}

	quantity := c.risk.SizePosition(sig.Price, sig.StopLoss, sig.Strength)
	if quantity == 0 {
		return nil, c.reject(sig, "position size is zero", apperrors.ErrInsufficientFunds)
	}

	cost := float64(quantity) * sig.Price
	if err := c.risk.CanOpen(sig.Symbol, cost); err != nil {
		return nil, c.reject(sig, err.Error(), err)
	}

	record, err := c.placeBracket(ctx, sig, quantity)
	if err != nil {
		return nil, c.reject(sig, err.Error(), err)
	}

	// The admission gate re-runs inside the commit; both happen under the
	// risk manager's lock so a concurrent open cannot slip between them.
	if err := c.risk.OpenPosition(sig.Symbol, sig.Direction, quantity, sig.Price, sig.StopLoss, sig.TakeProfit); err != nil {
		// Entry leg is already live. There is no automatic unwind; the
		// operator has to square off manually.
		c.logger.Error().Err(err).Str("symbol", sig.Symbol).Str("entry_order_id", record.EntryOrderID).
			Msg("position commit failed after order placement")
		return nil, c.reject(sig, "position commit failed: "+err.Error(), err)
	}

	c.tradesToday++
	c.placed = append(c.placed, *record)

	logging.LogTrade(c.logger, sig.Symbol, string(sig.Direction), quantity, sig.Price)
	return record, nil
}

// placeBracket places the three correlated legs: market entry, stop leg,
// and limit target. The entry leg failing aborts the bracket; a protective
// leg failing is logged but the entry stands.
func (c *Controller) placeBracket(ctx context.Context, sig strategy.Signal, quantity int) (*OrderRecord, error) {
	record := &OrderRecord{
		Symbol:     sig.Symbol,
		Side:       sig.Direction,
		Quantity:   quantity,
		EntryPrice: sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Quality:    sig.Quality,
		DryRun:     c.cfg.DryRun,
		PlacedAt:   c.now(),
	}

	if c.cfg.DryRun {
		record.EntryOrderID = c.dryRunID(sig.Symbol, "ENTRY")
		record.StopOrderID = c.dryRunID(sig.Symbol, "SL")
		record.TargetOrderID = c.dryRunID(sig.Symbol, "TP")
		logging.LogOrder(c.logger, record.EntryOrderID, sig.Symbol, string(sig.Direction), "DRY_RUN")
		return record, nil
	}

	exchange := models.Exchange(c.trading.DefaultExchange)
	exitSide := sig.Direction.Opposite()

	entry, err := c.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   sig.Symbol,
		Exchange: exchange,
		Side:     sig.Direction,
		Type:     models.OrderTypeMarket,
		Quantity: quantity,
		Tag:      "entry",
	})
	if err != nil {
		return nil, err
	}
	record.EntryOrderID = entry.OrderID
	logging.LogOrder(c.logger, entry.OrderID, sig.Symbol, string(sig.Direction), entry.Status)

	// Trigger sits just inside the stop so the SL leg activates before
	// the stop price trades through.
	trigger := sig.StopLoss * 0.999
	if sig.Direction == models.OrderSideSell {
		trigger = sig.StopLoss * 1.001
	}

	stop, err := c.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:       sig.Symbol,
		Exchange:     exchange,
		Side:         exitSide,
		Type:         models.OrderTypeStopLoss,
		Quantity:     quantity,
		Price:        sig.StopLoss,
		TriggerPrice: trigger,
		Tag:          "stop-loss",
	})
	if err != nil {
		c.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("stop-loss leg failed, entry unprotected")
	} else {
		record.StopOrderID = stop.OrderID
		logging.LogOrder(c.logger, stop.OrderID, sig.Symbol, string(exitSide), stop.Status)
	}

	target, err := c.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   sig.Symbol,
		Exchange: exchange,
		Side:     exitSide,
		Type:     models.OrderTypeLimit,
		Quantity: quantity,
		Price:    sig.TakeProfit,
		Tag:      "take-profit",
	})
	if err != nil {
		c.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("take-profit leg failed")
	} else {
		record.TargetOrderID = target.OrderID
		logging.LogOrder(c.logger, target.OrderID, sig.Symbol, string(exitSide), target.Status)
	}

	return record, nil
}

// dryRunID synthesizes a stable placeholder id; the sequence number makes
// ids unique within a session without consulting a clock.
func (c *Controller) dryRunID(symbol, leg string) string {
	c.dryRunSeq++
	return fmt.Sprintf("DRY-RUN-%s-%s-%d", symbol, leg, c.dryRunSeq)
}

func (c *Controller) reject(sig strategy.Signal, reason string, err error) error {
	c.rejected = append(c.rejected, RejectedRecord{
		Symbol:     sig.Symbol,
		Side:       sig.Direction,
		Reason:     reason,
		RejectedAt: c.now(),
	})
	c.logger.Warn().
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Str("reason", reason).
		Msg("signal rejected")
	return err
}

// PlacedOrders returns a copy of the placed-orders log.
func (c *Controller) PlacedOrders() []OrderRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OrderRecord, len(c.placed))
	copy(out, c.placed)
	return out
}

// RejectedOrders returns a copy of the rejected-signals log.
func (c *Controller) RejectedOrders() []RejectedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RejectedRecord, len(c.rejected))
	copy(out, c.rejected)
	return out
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Statistics{
		Active:      c.active,
		DryRun:      c.cfg.DryRun,
		TradesToday: c.tradesToday,
		MaxTrades:   c.cfg.MaxTradesPerDay,
		Placed:      len(c.placed),
		Rejected:    len(c.rejected),
	}
}

// ResetDailyCounters zeroes the per-day trade counter, typically at the
// start of a session.
func (c *Controller) ResetDailyCounters() {
	c.mu.Lock()
	c.tradesToday = 0
	c.mu.Unlock()
	c.risk.ResetDailyPnL()
	c.logger.Info().Msg("daily counters reset")
}
