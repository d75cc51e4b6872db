package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when empty or missing) on top
// of Defaults, loads a .env file if present and applies HEDGE_* environment
// overrides. The result has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "HEDGE_SERVER_PORT")
	setDuration(&cfg.Server.ReadTimeout, "HEDGE_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "HEDGE_SERVER_WRITE_TIMEOUT")

	setStr(&cfg.Store.Driver, "HEDGE_STORE_DRIVER")
	setStr(&cfg.Store.SQLitePath, "HEDGE_STORE_SQLITE_PATH")
	setStr(&cfg.Store.PostgresDSN, "HEDGE_STORE_POSTGRES_DSN")
	setInt(&cfg.Store.MaxConns, "HEDGE_STORE_MAX_CONNS")
	setInt(&cfg.Store.MinConns, "HEDGE_STORE_MIN_CONNS")

	setStr(&cfg.Redis.URL, "HEDGE_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "HEDGE_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "HEDGE_REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.LockWait, "HEDGE_REDIS_LOCK_WAIT")

	setStr(&cfg.Ledger.DefaultCurrency, "HEDGE_LEDGER_DEFAULT_CURRENCY")
	setFloat64(&cfg.Ledger.DefaultCommission, "HEDGE_LEDGER_DEFAULT_COMMISSION")

	setStr(&cfg.LogLevel, "HEDGE_LOG_LEVEL")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
