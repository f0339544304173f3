// Package cli implements the rag command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
	"ragcorpus/internal/config"
	"ragcorpus/internal/logging"
)

var (
	cfgPath string
	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Ask questions answered only from your own documents",
	Long: color.CyanString("rag") + ` ingests documents and web pages into collections and answers
questions strictly from what was ingested.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML or TOML config file (default ./config.yaml, then ~/.config/rag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	_, err = logging.Setup(level, cfg.Log.Format, cmd.ErrOrStderr())
	return err
}

// withApp opens the configured components for the duration of fn.
func withApp(fn func(a *app.App) error) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Close failed", "error", err)
		}
	}()
	return fn(a)
}
