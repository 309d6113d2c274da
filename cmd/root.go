// Package cmd implements the CLI surface mandated by spec §6: index, embed,
// search, and db upgrade. All other front ends (HTTP, TUI, chat, MCP) are
// out of scope per spec §1 and are not wired here.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"codegraph/internal/config"

	"github.com/spf13/cobra"
)

var flagConfigPath string

var rootCmd = &cobra.Command{
	Use:           "codegraph",
	Short:         "Code Property Graph indexer and hybrid retrieval engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "codegraph.toml", "path to TOML config file")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(dbCmd)
}

// Execute runs the root command, translating errors into the exit codes of
// spec §6: 0 success, 1 runtime error, 2 usage error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if _, ok := err.(usageError); ok {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks an error as a bad-argument/usage problem (spec §6 exit
// code 2) rather than a runtime failure (exit code 1).
type usageError struct{ error }

func (u usageError) Unwrap() error { return u.error }

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
