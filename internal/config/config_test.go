package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Ledger.DefaultCurrency != "EUR" || cfg.Ledger.DefaultCommission != 5 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hedge.toml")
	body := `
log_level = "debug"

[server]
port = 9090
read_timeout = "3s"

[store]
driver = "postgres"
postgres_dsn = "postgres://localhost/hedge"

[redis]
url = "redis://localhost:6379/0"
lock_wait = "750ms"

[ledger]
default_currency = "GBP"
default_commission = 2.5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HEDGE_SERVER_PORT", "7070")
	t.Setenv("HEDGE_LEDGER_DEFAULT_COMMISSION", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, env should win", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout.Duration != 3*time.Second {
		t.Errorf("read_timeout = %v", cfg.Server.ReadTimeout.Duration)
	}
	if cfg.Server.WriteTimeout.Duration != 10*time.Second {
		t.Errorf("write_timeout should keep its default, got %v", cfg.Server.WriteTimeout.Duration)
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.PostgresDSN == "" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Redis.LockWait.Duration != 750*time.Millisecond {
		t.Errorf("lock_wait = %v", cfg.Redis.LockWait.Duration)
	}
	if cfg.Ledger.DefaultCurrency != "GBP" || cfg.Ledger.DefaultCommission != 3 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.SlogLevel())
	}
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hedge.toml")
	if err := os.WriteFile(path, []byte("[server\nport = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a decode error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"sqlite path", func(c *Config) { c.Store.SQLitePath = "" }, "sqlite_path"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "postgres_dsn"},
		{"redis lock", func(c *Config) { c.Redis.URL = "redis://x"; c.Redis.LockWait.Duration = 0 }, "lock_wait"},
		{"currency", func(c *Config) { c.Ledger.DefaultCurrency = "EURO" }, "default_currency"},
		{"commission", func(c *Config) { c.Ledger.DefaultCommission = 12 }, "default_commission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
