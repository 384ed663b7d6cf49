package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"intraday-scanner/internal/broker"
)

func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Zerodha Kite Connect",
		Long: `Login to Zerodha Kite Connect.

Without a token this prints the OAuth login URL. Visit it, complete the
login, and re-run with --token=<request_token> to finish.`,
		Example: `  scanner login
  scanner login --token=<request_token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if app.Broker == nil {
				output.Error("Broker not configured. Please check your credentials.toml")
				return fmt.Errorf("broker not configured")
			}

			if app.Broker.IsAuthenticated() {
				output.Success("✓ Already logged in")
				return nil
			}

			token, _ := cmd.Flags().GetString("token")
			if token != "" {
				zb, ok := app.Broker.(*broker.ZerodhaBroker)
				if !ok {
					return fmt.Errorf("broker does not support token login")
				}
				if err := zb.CompleteLogin(ctx, token); err != nil {
					output.Error("Login failed: %v", err)
					return err
				}
				output.Success("✓ Logged in")
				return nil
			}

			err := app.Broker.Login(ctx)
			if err != nil {
				// The error text carries the login URL.
				output.Info("%v", err)
				return nil
			}
			output.Success("✓ Logged in")
			return nil
		},
	}

	cmd.Flags().String("token", "", "request token from the OAuth redirect")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Broker == nil {
				return fmt.Errorf("broker not configured")
			}
			if err := app.Broker.Logout(context.Background()); err != nil {
				return err
			}
			output.Success("✓ Logged out")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			authenticated := app.Broker != nil && app.Broker.IsAuthenticated()
			if output.IsJSON() {
				output.JSON(map[string]bool{"authenticated": authenticated})
				return
			}
			if authenticated {
				output.Success("✓ Authenticated")
			} else {
				output.Warning("Not authenticated. Run 'scanner login'.")
			}
		},
	}
}
