package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"intraday-scanner/internal/risk"
)

func newPortfolioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show the simulated portfolio for the configured capital",
		Long: `Show the portfolio as the risk manager would start it: configured
capital, no positions. During 'scanner run' the live book is printed in
the session summary; this command is the standalone view.`,
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)

			rm := risk.NewManager(app.Config.Risk, app.Logger)
			summary := rm.Summary()

			if output.IsJSON() {
				output.JSON(summary)
				return
			}

			output.Bold("Portfolio")
			output.Printf("Cash:          %.2f\n", summary.Cash)
			output.Printf("Total value:   %.2f\n", summary.TotalValue)
			output.Printf("Daily P&L:     %s\n", output.PnLString(summary.DailyPnL))
			output.Printf("Total return:  %.2f%%\n", summary.TotalReturnPercent)
			output.Printf("Positions:     %d\n", summary.NumPositions)

			if summary.NumPositions > 0 {
				table := NewTable(output, "SYMBOL", "SIDE", "QTY", "ENTRY", "CURRENT", "PNL")
				for _, pos := range summary.Positions {
					table.AddRow(
						pos.Symbol,
						string(pos.Side),
						fmt.Sprintf("%d", pos.Quantity),
						fmt.Sprintf("%.2f", pos.EntryPrice),
						fmt.Sprintf("%.2f", pos.CurrentPrice),
						fmt.Sprintf("%+.2f", pos.UnrealizedPnL()),
					)
				}
				table.Render()
			}
		},
	}
}
