// Command worker wraps a Manager behind the stdio-JSON protocol of spec
// §4.5: it speaks newline-delimited JSON on stdin/stdout and nothing else.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/config"
	"github.com/seamus/ptysup/internal/manager"
	"github.com/seamus/ptysup/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the PTY session supervisor as a stdio-JSON worker process",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cmd.Flags(), configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(v)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "optional config file (yaml/toml/json)")
	cmd.Flags().Int("cols", config.DefaultCols, "default PTY columns")
	cmd.Flags().Int("rows", config.DefaultRows, "default PTY rows")
	cmd.Flags().Int("log-ring-size", config.DefaultLogRingSize, "lines retained per session log ring")
	cmd.Flags().Bool("stall-enabled", true, "enable stall detection by default")
	cmd.Flags().Int64("stall-timeout-ms", config.DefaultStallTimeoutMs, "default stall timeout in milliseconds")
	cmd.Flags().String("log-format", "text", "log output format: text or json")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")

	return cmd
}

func run(v *viper.Viper) error {
	cfg := config.LoadWorkerConfig(v)
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	reg := adapter.NewRegistry()
	reg.RegisterBuiltins()

	mgr := manager.New(manager.Config{
		Registry:       reg,
		Logger:         logger,
		LogRingSize:    cfg.LogRingSize,
		StallEnabled:   cfg.StallEnabled,
		StallTimeoutMs: cfg.StallTimeoutMs,
	})

	w := worker.New(mgr, os.Stdout, logger)
	if err := w.Run(os.Stdin); err != nil {
		logger.Error("worker exited with error", "error", err)
		mgr.Shutdown(0)
		os.Exit(1)
	}
	mgr.Shutdown(0)
	return nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
