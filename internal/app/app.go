// Package app wires the engine components from a Config. Both binaries
// build through here so the server and the CLI always agree on the store,
// the locker and the ledger defaults.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/config"
	"github.com/atmx/hedge-engine/internal/incentive"
	"github.com/atmx/hedge-engine/internal/ledger"
	"github.com/atmx/hedge-engine/internal/lock"
	"github.com/atmx/hedge-engine/internal/metrics"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/operation"
	"github.com/atmx/hedge-engine/internal/report"
	"github.com/atmx/hedge-engine/internal/store"
)

// App holds the wired components.
type App struct {
	Store      store.Store
	Ledger     *ledger.Service
	Operations *operation.Manager
	Incentives *incentive.Service
	Reports    *report.Service

	cleanup []func()
}

// Build opens the configured store and wires every component over it.
// notifier receives operation events and may be nil.
func Build(ctx context.Context, cfg *config.Config, notifier operation.Notifier) (*App, error) {
	a := &App{}

	st, err := a.openStore(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL.Duration, cfg.Redis.LockWait.Duration)
		slog.Info("redis cache and locker enabled")
	}

	a.Store = st
	a.Ledger = ledger.New(st, locker, ledger.Defaults{
		Currency:   cfg.Ledger.DefaultCurrency,
		Commission: decimal.NewFromFloat(cfg.Ledger.DefaultCommission),
	})
	a.Operations = operation.NewManager(st, a.Ledger, locker, notifier)
	a.Incentives = incentive.NewService(st, a.Ledger)
	a.Reports = report.NewService(st)

	pending, err := st.ListOperations(ctx, store.OperationFilter{Status: model.StatusPending})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("count pending operations: %w", err)
	}
	metrics.PendingOperations.Set(float64(len(pending)))
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil

	case config.DriverSQLite:
		st, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, func() { st.Close() })
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)
		return st, nil

	case config.DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxConns)
		}
		if cfg.MinConns > 0 {
			poolCfg.MinConns = int32(cfg.MinConns)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		st := store.NewPostgresStore(pool)
		a.cleanup = append(a.cleanup, func() { st.Close() })
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		slog.Info("connected to PostgreSQL")
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// Close releases the store and Redis connections in reverse order.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
