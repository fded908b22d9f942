// Package application wires configuration, storage, metrics and the
// importer for the binaries.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/shopimport/internal/config"
	"github.com/JonMunkholm/shopimport/internal/core"
	_ "github.com/JonMunkholm/shopimport/internal/core/processors" // Register all processors
	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/metrics"
	"github.com/JonMunkholm/shopimport/internal/store/memory"
	"github.com/JonMunkholm/shopimport/internal/store/postgres"
)

// ErrNoQueue is returned by Redis when no queue server is configured.
var ErrNoQueue = errors.New("no redis address configured (REDIS_ADDR)")

// Options tunes Open.
type Options struct {
	// Memory selects the in-memory store even if a database is configured.
	Memory bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// App holds the shared collaborators of one process.
type App struct {
	Config   *config.Config
	Tree     *config.Tree
	Env      *core.Env
	Registry *prometheus.Registry

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Open loads the processor configuration and connects the store.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tree, err := config.LoadTree(cfg.Import.ConfigFile)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{Config: cfg, Tree: tree, Registry: reg}

	var managers domain.ManagerSource
	if cfg.Database.URL == "" || opts.Memory {
		logger.Info("using in-memory store")
		managers = memory.NewStore()
	} else {
		store, err := app.openPostgres(ctx, logger)
		if err != nil {
			return nil, err
		}
		managers = store
	}

	app.Env = &core.Env{
		Config:   tree,
		Logger:   logger,
		Managers: managers,
		Metrics:  metrics.New(reg),
	}
	return app, nil
}

func (a *App) openPostgres(ctx context.Context, logger *slog.Logger) (*postgres.Store, error) {
	db := a.Config.Database

	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.pool = pool

	if u, err := url.Parse(db.URL); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	store := postgres.NewStore(pool, "")
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Importer creates an importer with the configured batch size and workers.
func (a *App) Importer() *core.Importer {
	return core.NewImporter(a.Env, core.ImporterConfig{
		BatchSize: a.Config.Import.BatchSize,
		Workers:   a.Config.Import.Workers,
	})
}

// Service creates the background import service.
func (a *App) Service() *core.Service {
	return core.NewService(a.Importer(), core.ServiceConfig{
		Timeout:       a.Config.Import.Timeout,
		MaxConcurrent: a.Config.Import.MaxConcurrent,
		MaxWait:       a.Config.Import.MaxWaitTime,
		ResultTTL:     a.Config.Import.ResultTTL,
	})
}

// Redis returns a connected client for queue imports.
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	if a.Config.Redis.Addr == "" {
		return nil, ErrNoQueue
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", a.Config.Redis.Addr, err)
	}
	a.redis = client
	return client, nil
}

// Close releases the connections.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
