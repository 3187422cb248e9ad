package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/metrics"
	"github.com/nnnkkk7/sqlrunner/pkg/session"
	"github.com/nnnkkk7/sqlrunner/server/handlers"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				a.cfg.Server.Port = port
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port, overrides the config")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg, lg := a.cfg, a.lg

	db, opener, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Warn("failed to close database", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sessions := session.NewManager(opener, sessionOptions(cfg, lg, m), cfg.Session.IdleTimeout)
	defer func() {
		if err := sessions.CloseAll(); err != nil {
			lg.Warn("failed to close sessions", zap.Error(err))
		}
	}()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	if cfg.Session.IdleTimeout > 0 {
		go sessions.RunCleanup(cleanupCtx, cfg.Session.CleanupPeriod)
	}

	router := handlers.NewRouter(handlers.RouterOptions{
		Sessions:  sessions,
		Logger:    lg,
		Gatherer:  reg,
		AccessLog: true,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting sqlrunner",
			zap.String("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver),
			zap.String("timeout_policy", cfg.Session.TimeoutPolicy))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
