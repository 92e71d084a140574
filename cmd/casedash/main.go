package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/casedash/casedash/internal/app"
	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/config"
	"github.com/casedash/casedash/internal/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "casedash",
	Short:         "Case analytics dashboard client",
	Long:          "Holds the dashboard session, refreshes credentials and queries the case analytics API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: $CONFIG_PATH or ./casedash.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(casesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			fmt.Fprintln(os.Stderr, "Session expired, run `casedash login` to sign in again.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// loadApp reads configuration and wires the application. The persisted
// session is restored before returning.
func loadApp() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Env, cfg.LogLevel)

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return nil, err
	}
	if err := a.Restore(); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return a, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
