package main

import (
	"database/sql"
	"fmt"

	// Registered database/sql drivers.
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/config"
	"github.com/nnnkkk7/sqlrunner/pkg/connection"
	"github.com/nnnkkk7/sqlrunner/pkg/metrics"
	"github.com/nnnkkk7/sqlrunner/pkg/session"
)

// openDatabase opens the configured database pool and an opener over it.
func openDatabase(cfg config.Database) (*sql.DB, *connection.SQLOpener, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, connection.NewSQLOpener(db, connection.DialectForDriver(cfg.Driver)), nil
}

// sessionOptions maps the config onto session options.
func sessionOptions(cfg *config.Config, lg *zap.Logger, m *metrics.Metrics) session.Options {
	return session.Options{
		QueryTimeout:   cfg.Session.QueryTimeout,
		PreviewLimit:   cfg.Session.PreviewLimit,
		TimeoutPolicy:  session.TimeoutPolicy(cfg.Session.TimeoutPolicy),
		CancelGrace:    cfg.Session.CancelGrace,
		Catalog:        cfg.Database.Catalog,
		ConnectRetries: cfg.Session.ConnectRetries,
		Logger:         lg,
		Metrics:        m,
	}
}
