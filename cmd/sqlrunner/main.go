// Package main provides the sqlrunner command: an HTTP server that runs SQL
// buffers statement by statement, plus offline run and split commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/config"
)

// app holds what every subcommand needs after flag parsing.
type app struct {
	configFile string
	logLevel   string
	cfg        *config.Config
	lg         *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "sqlrunner",
		Short:         "run SQL buffers statement by statement",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level, overrides the config")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(a.configFile)
		if err != nil {
			return err
		}
		if a.logLevel != "" {
			cfg.Log.Level = a.logLevel
		}
		lg, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		a.cfg, a.lg = cfg, lg
		return nil
	}
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if a.lg != nil {
			_ = a.lg.Sync()
		}
	}

	rootCmd.AddCommand(newServeCommand(a), newRunCommand(a), newSplitCommand(a))
	return rootCmd
}

// newLogger builds a zap logger from the log config.
func newLogger(cfg config.Log) (*zap.Logger, error) {
	zapcfg := zap.NewProductionConfig()
	if cfg.Development {
		zapcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", config.ErrInvalidConfigValue, cfg.Level)
	}
	zapcfg.Level = level
	lg, err := zapcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return lg.Named("sqlrunner"), nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sc := make(chan os.Signal, 1)
		signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

		// wait for quit signals
		<-sc
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
