package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"intraday-scanner/internal/models"
	"intraday-scanner/internal/scanner"
	"intraday-scanner/internal/strategy"
	"intraday-scanner/pkg/utils"
)

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle over the watchlist",
		Long: `Sweep the configured watchlist once and print any generated signals.

The sweep is skipped when the market is closed unless --force is given.`,
		Example: `  scanner scan
  scanner scan --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Broker == nil || !app.Broker.IsAuthenticated() {
				output.Error("Not authenticated. Run 'scanner login' first.")
				return fmt.Errorf("not authenticated")
			}

			force, _ := cmd.Flags().GetBool("force")
			if status := utils.GetMarketStatus(); status != models.MarketOpen && !force {
				output.Warning("Market is %s; use --force to scan anyway.", status)
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			engine := strategy.NewEngine()
			sc := scanner.New(app.Broker, engine, *app.Config, app.Logger)

			output.Info("Scanning %d symbols...", len(app.Config.Trading.Symbols))
			start := time.Now()

			if _, err := sc.ScanOnce(ctx); err != nil {
				return err
			}

			signals := sc.RecentSignals()
			stats := sc.Stats()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"signals": signals,
					"stats":   stats,
				})
			}

			output.Printf("Scanned %d symbols in %s (%d failures)\n",
				stats.SymbolsScanned, time.Since(start).Round(time.Millisecond), stats.Failures)

			if len(signals) == 0 {
				output.Dim("No signals this cycle.")
				return nil
			}

			table := NewTable(output, "SYMBOL", "SIDE", "PRICE", "QUALITY", "SCORE", "SL", "TP", "R:R")
			for i := range signals {
				sig := &signals[i]
				table.AddRow(
					sig.Symbol,
					string(sig.Direction),
					fmt.Sprintf("%.2f", sig.Price),
					string(sig.Quality),
					fmt.Sprintf("%d/8", sig.Score),
					fmt.Sprintf("%.2f", sig.StopLoss),
					fmt.Sprintf("%.2f", sig.TakeProfit),
					fmt.Sprintf("%.2f", sig.RiskRewardRatio()),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "scan even when the market is closed")
	return cmd
}
