// Command authctl inspects a running authgate deployment from the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "dev"

type globalFlags struct {
	backendURL string
	appURL     string
	timeout    time.Duration
	verbose    bool
}

func main() {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tooling for the authgate gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.backendURL, "backend", envOr("AUTHGATE_BACKEND_URL", "http://localhost:8000"), "backend base URL")
	rootCmd.PersistentFlags().StringVar(&flags.appURL, "app", envOr("AUTHGATE_APP_URL", "http://localhost:8080"), "gateway base URL")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "overall command timeout")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log requests to stderr")

	rootCmd.AddCommand(
		probeCmd(flags),
		sessionCmd(flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func (f *globalFlags) logger() *slog.Logger {
	level := slog.LevelError
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
