// Package config defines the configuration of the hedge engine binaries and
// provides validation helpers.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by HEDGE_* environment variables.
type Config struct {
	Server   ServerConfig `toml:"server"`
	Store    StoreConfig  `toml:"store"`
	Redis    RedisConfig  `toml:"redis"`
	Ledger   LedgerConfig `toml:"ledger"`
	LogLevel string       `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `toml:"driver"` // memory, sqlite or postgres
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	MaxConns    int    `toml:"max_conns"`
	MinConns    int    `toml:"min_conns"`
}

// RedisConfig enables the read-through cache and the shared locker when
// URL is set.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
	LockTTL  duration `toml:"lock_ttl"`
	LockWait duration `toml:"lock_wait"`
}

// LedgerConfig holds the defaults applied to new accounts.
type LedgerConfig struct {
	DefaultCurrency   string  `toml:"default_currency"`
	DefaultCommission float64 `toml:"default_commission"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Defaults returns a Config that runs a single local instance backed by
// SQLite.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  duration{10 * time.Second},
			WriteTimeout: duration{10 * time.Second},
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "hedge.db",
			MaxConns:   10,
			MinConns:   1,
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
			LockTTL:  duration{10 * time.Second},
			LockWait: duration{5 * time.Second},
		},
		Ledger: LedgerConfig{
			DefaultCurrency:   "EUR",
			DefaultCommission: 5.0,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, "store.postgres_dsn is required for the postgres driver")
		}
		if c.Store.MinConns > c.Store.MaxConns {
			errs = append(errs, fmt.Sprintf("store.min_conns (%d) exceeds store.max_conns (%d)", c.Store.MinConns, c.Store.MaxConns))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q (valid: memory, sqlite, postgres)", c.Store.Driver))
	}

	if c.Redis.URL != "" {
		if c.Redis.LockTTL.Duration <= 0 || c.Redis.LockWait.Duration <= 0 {
			errs = append(errs, "redis.lock_ttl and redis.lock_wait must be positive")
		}
	}

	if len(c.Ledger.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Sprintf("ledger.default_currency must be an ISO 4217 code, got %q", c.Ledger.DefaultCurrency))
	}
	if c.Ledger.DefaultCommission < 0 || c.Ledger.DefaultCommission > 10 {
		errs = append(errs, fmt.Sprintf("ledger.default_commission must be between 0 and 10, got %g", c.Ledger.DefaultCommission))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	if lvl, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
