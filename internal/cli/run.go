package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"intraday-scanner/internal/broker"
	"intraday-scanner/internal/config"
	"intraday-scanner/internal/executor"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/notify"
	"intraday-scanner/internal/pipeline"
	"intraday-scanner/internal/risk"
	"intraday-scanner/internal/scanner"
	"intraday-scanner/internal/strategy"
	"intraday-scanner/internal/stream"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the continuous scan-and-execute pipeline",
		Long: `Run the full pipeline: continuous batch scanning, the real-time tick
stream, and the auto-executor, until interrupted.

The executor starts armed. In dry-run mode (the default configuration)
orders are simulated and never reach the broker.`,
		Example: `  scanner run
  scanner run --no-stream   # batch scanning only
  scanner run --inactive    # generate signals but do not execute`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Broker == nil || !app.Broker.IsAuthenticated() {
				output.Error("Not authenticated. Run 'scanner login' first.")
				return fmt.Errorf("not authenticated")
			}

			cfg := *app.Config
			engine := strategy.NewEngine()
			rm := risk.NewManager(cfg.Risk, app.Logger)
			exec := executor.New(app.Broker, rm, cfg.Executor, cfg.Trading, app.Logger)
			sc := scanner.New(app.Broker, engine, cfg, app.Logger)
			notifier := notify.FromConfig(cfg.Notifications)

			inactive, _ := cmd.Flags().GetBool("inactive")
			if !inactive {
				exec.Activate()
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var agg *stream.Aggregator
			if noStream, _ := cmd.Flags().GetBool("no-stream"); !noStream {
				var err error
				agg, err = connectStream(ctx, app, engine, cfg)
				if err != nil {
					output.Warning("Tick stream unavailable: %v (continuing batch-only)", err)
					agg = nil
				}
			}

			pipe := pipeline.New(app.Broker, sc, agg, exec, rm, engine, notifier, cfg, app.Logger)

			mode := "LIVE"
			if cfg.Executor.DryRun || cfg.IsPaperMode() {
				mode = "DRY RUN"
			}
			output.Info("Pipeline running in %s mode. Ctrl-C to stop.", mode)

			err := pipe.Run(ctx)

			stats := exec.Stats()
			output.Println()
			output.Printf("Trades today: %d  placed: %d  rejected: %d\n",
				stats.TradesToday, stats.Placed, stats.Rejected)

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().Bool("no-stream", false, "disable the real-time tick stream")
	cmd.Flags().Bool("inactive", false, "start with the executor disarmed")
	return cmd
}

// connectStream resolves instrument tokens, connects the WebSocket ticker
// and returns an aggregator wired to it.
func connectStream(ctx context.Context, app *App, engine *strategy.Engine, cfg config.Config) (*stream.Aggregator, error) {
	zb, ok := app.Broker.(*broker.ZerodhaBroker)
	if !ok {
		return nil, fmt.Errorf("broker does not support streaming")
	}

	exchange := models.Exchange(cfg.Trading.DefaultExchange)
	ticker := broker.NewZerodhaTicker(cfg.Credentials.Zerodha.APIKey, zb.AccessToken())

	for _, symbol := range cfg.Trading.Symbols {
		token, err := zb.GetInstrumentToken(ctx, symbol, exchange)
		if err != nil {
			return nil, err
		}
		ticker.RegisterSymbol(symbol, token)
	}

	history := func(ctx context.Context, symbol string) ([]models.Candle, error) {
		to := time.Now()
		return zb.GetHistorical(ctx, broker.HistoricalRequest{
			Symbol:    symbol,
			Exchange:  exchange,
			Timeframe: cfg.Trading.CandleInterval,
			From:      to.AddDate(0, 0, -cfg.Trading.HistoryDays),
			To:        to,
		})
	}

	agg := stream.NewAggregator(engine, history, cfg.Stream, app.Logger)
	agg.Attach(ticker)

	if err := ticker.Connect(ctx); err != nil {
		return nil, err
	}
	if err := ticker.Subscribe(cfg.Trading.Symbols); err != nil {
		return nil, err
	}

	return agg, nil
}
