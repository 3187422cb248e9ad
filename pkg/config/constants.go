// Package config provides configuration for sqlrunner.
package config

import "time"

// Default server and database settings.
const (
	DefaultPort   = "8080"
	DefaultDriver = DriverDuckDB
	DefaultDBPath = ":memory:"
)

// Supported database drivers.
const (
	DriverDuckDB    = "duckdb"
	DriverSnowflake = "snowflake"
)

// Session defaults.
const (
	DefaultQueryTimeout   = 30 * time.Second
	DefaultPreviewLimit   = 1000
	DefaultTimeoutPolicy  = "cancel"
	DefaultCancelGrace    = 2 * time.Second
	DefaultIdleTimeout    = time.Hour
	DefaultCleanupPeriod  = time.Minute
	DefaultConnectRetries = 3
)

// Timeout policies.
const (
	TimeoutPolicyCancel  = "cancel"
	TimeoutPolicyAbandon = "abandon"
)

// DefaultLogLevel is the zap level used when none is configured.
const DefaultLogLevel = "info"

// Environment variables read by LoadEnv.
const (
	EnvPort               = "PORT"
	EnvDBPath             = "DB_PATH"
	EnvDriver             = "SQLRUNNER_DRIVER"
	EnvDSN                = "SQLRUNNER_DSN"
	EnvCatalog            = "SQLRUNNER_CATALOG"
	EnvQueryTimeoutMs     = "SQLRUNNER_QUERY_TIMEOUT_MS"
	EnvPreviewLimit       = "SQLRUNNER_PREVIEW_LIMIT"
	EnvTimeoutPolicy      = "SQLRUNNER_TIMEOUT_POLICY"
	EnvSessionIdleTimeout = "SQLRUNNER_SESSION_IDLE_TIMEOUT"
	EnvLogLevel           = "SQLRUNNER_LOG_LEVEL"
)
