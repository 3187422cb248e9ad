// Package handlers implements the sqlrunner HTTP API.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/session"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Sessions *session.Manager
	Logger   *zap.Logger
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter builds the HTTP routes.
func NewRouter(opts RouterOptions) *chi.Mux {
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	scanHandler := NewScanHandler(lg.Named("scan"))
	sessionHandler := NewSessionHandler(opts.Sessions, lg.Named("session"))

	r := chi.NewRouter()
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", scanHandler.Scan)
		r.Post("/resolve", scanHandler.Resolve)

		r.Post("/sessions", sessionHandler.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Delete("/", sessionHandler.CloseSession)
			r.Post("/run", sessionHandler.Run)
			r.Post("/statements", sessionHandler.SubmitStatement)
			r.Post("/batch", sessionHandler.SubmitBatch)
			r.Post("/catalog", sessionHandler.SwitchCatalog)
			r.Post("/cancel", sessionHandler.Cancel)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			lg.Warn("failed to write health response", zap.Error(err))
		}
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
