package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfigValue wraps every validation failure.
var ErrInvalidConfigValue = errors.New("invalid config value")

// Config is the full sqlrunner configuration.
type Config struct {
	Server   Server   `toml:"server" json:"server"`
	Database Database `toml:"database" json:"database"`
	Session  Session  `toml:"session" json:"session"`
	Log      Log      `toml:"log" json:"log"`
}

// Server configures the HTTP API.
type Server struct {
	Port         string        `toml:"port" json:"port"`
	ReadTimeout  time.Duration `toml:"read-timeout" json:"read-timeout"`
	WriteTimeout time.Duration `toml:"write-timeout" json:"write-timeout"`
	IdleTimeout  time.Duration `toml:"idle-timeout" json:"idle-timeout"`
}

// Database selects the driver and data source.
type Database struct {
	Driver string `toml:"driver" json:"driver"`
	// DSN is passed to sql.Open. For duckdb it is a file path or ":memory:".
	DSN string `toml:"dsn" json:"dsn"`
	// Catalog is selected on every new connection when set.
	Catalog string `toml:"catalog,omitempty" json:"catalog,omitempty"`
}

// Session configures statement execution.
type Session struct {
	QueryTimeout   time.Duration `toml:"query-timeout" json:"query-timeout"`
	PreviewLimit   int           `toml:"preview-limit" json:"preview-limit"`
	TimeoutPolicy  string        `toml:"timeout-policy" json:"timeout-policy"`
	CancelGrace    time.Duration `toml:"cancel-grace" json:"cancel-grace"`
	IdleTimeout    time.Duration `toml:"idle-timeout" json:"idle-timeout"`
	CleanupPeriod  time.Duration `toml:"cleanup-period" json:"cleanup-period"`
	ConnectRetries int           `toml:"connect-retries" json:"connect-retries"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level" json:"level"`
	Development bool   `toml:"development,omitempty" json:"development,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:         DefaultPort,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		Database: Database{
			Driver: DefaultDriver,
			DSN:    DefaultDBPath,
		},
		Session: Session{
			QueryTimeout:   DefaultQueryTimeout,
			PreviewLimit:   DefaultPreviewLimit,
			TimeoutPolicy:  DefaultTimeoutPolicy,
			CancelGrace:    DefaultCancelGrace,
			IdleTimeout:    DefaultIdleTimeout,
			CleanupPeriod:  DefaultCleanupPeriod,
			ConnectRetries: DefaultConnectRetries,
		},
		Log: Log{
			Level: DefaultLogLevel,
		},
	}
}

// Load builds the config from defaults, then the TOML file at path (if any),
// then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg.
func (cfg *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return cfg.Unmarshal(data)
}

// Unmarshal overlays TOML data onto cfg.
func (cfg *Config) Unmarshal(data []byte) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown keys %v", ErrInvalidConfigValue, undecoded)
	}
	return nil
}

// LoadEnv overlays environment variables onto cfg. getenv is usually
// os.Getenv.
func (cfg *Config) LoadEnv(getenv func(string) string) error {
	if v := getenv(EnvPort); v != "" {
		cfg.Server.Port = v
	}
	if v := getenv(EnvDriver); v != "" {
		cfg.Database.Driver = v
	}
	if v := getenv(EnvDBPath); v != "" && cfg.Database.Driver == DriverDuckDB {
		cfg.Database.DSN = v
	}
	if v := getenv(EnvDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := getenv(EnvCatalog); v != "" {
		cfg.Database.Catalog = v
	}
	if v := getenv(EnvQueryTimeoutMs); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfigValue, EnvQueryTimeoutMs, v, err)
		}
		cfg.Session.QueryTimeout = time.Duration(ms) * time.Millisecond
	}
	if v := getenv(EnvPreviewLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfigValue, EnvPreviewLimit, v, err)
		}
		cfg.Session.PreviewLimit = n
	}
	if v := getenv(EnvTimeoutPolicy); v != "" {
		cfg.Session.TimeoutPolicy = v
	}
	if v := getenv(EnvSessionIdleTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfigValue, EnvSessionIdleTimeout, v, err)
		}
		cfg.Session.IdleTimeout = d
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks the config for values sqlrunner cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case DriverDuckDB, DriverSnowflake:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfigValue, cfg.Database.Driver)
	}
	if cfg.Database.Driver == DriverSnowflake && cfg.Database.DSN == "" {
		return fmt.Errorf("%w: snowflake driver requires a dsn", ErrInvalidConfigValue)
	}
	if cfg.Server.Port == "" {
		return fmt.Errorf("%w: empty port", ErrInvalidConfigValue)
	}
	if cfg.Session.QueryTimeout <= 0 {
		return fmt.Errorf("%w: query timeout must be positive", ErrInvalidConfigValue)
	}
	if cfg.Session.PreviewLimit < 0 {
		return fmt.Errorf("%w: preview limit must not be negative", ErrInvalidConfigValue)
	}
	switch cfg.Session.TimeoutPolicy {
	case TimeoutPolicyCancel, TimeoutPolicyAbandon:
	default:
		return fmt.Errorf("%w: unknown timeout policy %q", ErrInvalidConfigValue, cfg.Session.TimeoutPolicy)
	}
	if cfg.Session.CancelGrace <= 0 {
		return fmt.Errorf("%w: cancel grace must be positive", ErrInvalidConfigValue)
	}
	if cfg.Session.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfigValue)
	}
	if cfg.Session.ConnectRetries < 0 {
		return fmt.Errorf("%w: connect retries must not be negative", ErrInvalidConfigValue)
	}
	return nil
}
