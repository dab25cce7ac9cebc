package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"solana-ddca/internal/config"
	"solana-ddca/internal/logging"
)

var (
	flagConfig     string
	flagEnvFile    string
	flagLogLevel   string
	flagLogConsole bool
	flagSource     string
)

// Loaded by the root PersistentPreRunE.
var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "ddca",
	Short:             "Decentralized dollar-cost averaging waker",
	Long:              "Reconcile DDCA plan schedules, execute due swaps and manage plans.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "KEY=VALUE file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogConsole, "log-console", false, "Human-readable log output")
	rootCmd.PersistentFlags().StringVar(&flagSource, "source", "", "Plan source override (chain, postgres, memory)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		return err
	}

	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		if _, err := logging.ParseLevel(flagLogLevel); err != nil {
			return err
		}
		c.Log.Level = flagLogLevel
	}
	if flagLogConsole {
		c.Log.Console = true
	}
	if flagSource != "" {
		c.Waker.Source = flagSource
	}

	cfg = c
	logger = logging.New(cfg.Log, os.Stderr)
	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
