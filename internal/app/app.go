// Package app wires configuration into a running brain: connections, data
// reader, state store, lock backend, dispatcher, alerter and engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/perf-brain/internal/alerting"
	"github.com/ignite/perf-brain/internal/api"
	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/dispatch"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/pkg/distlock"
	"github.com/ignite/perf-brain/internal/pkg/logger"
	repomem "github.com/ignite/perf-brain/internal/repository/memory"
	"github.com/ignite/perf-brain/internal/repository/postgres"
	"github.com/ignite/perf-brain/internal/snowflake"
	"github.com/ignite/perf-brain/internal/storage"
	"github.com/ignite/perf-brain/internal/worker"
)

var (
	_ engine.DataReader = (*postgres.Reader)(nil)
	_ engine.DataReader = (*repomem.Reader)(nil)
	_ engine.DataReader = (*snowflake.Reader)(nil)
)

// App holds everything a binary needs. Fields for unconfigured backends
// are nil.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Redis    *redis.Client
	Reader   engine.DataReader
	Orgs     worker.OrgLister
	Store    engine.StateStore
	Engine   *engine.Engine
	Registry *prometheus.Registry

	closers []func() error
}

// Build connects to the configured backends and assembles the engine.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetLevelFromString(cfg.Log.Level)
	logger.SetRedactPII(cfg.Log.RedactPII)

	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	if err := a.buildReader(); err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage, a.DB)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	a.Store = store

	var rdb redis.UniversalClient
	if a.Redis != nil {
		rdb = a.Redis
	}
	dispatcher, err := dispatch.New(cfg.Dispatch, rdb)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	opts := []engine.Option{
		engine.WithDispatcher(dispatcher),
		engine.WithMetrics(engine.NewMetrics(a.Registry)),
	}
	alerter, err := alerting.New(ctx, cfg.Alerts)
	if err != nil {
		return nil, fmt.Errorf("alerter: %w", err)
	}
	if alerter != nil {
		opts = append(opts, engine.WithAlerter(alerter))
	}

	locks := distlock.NewFactory(a.Redis, a.DB, cfg.Lock.TTL())
	eng, err := engine.New(a.Reader, a.Store, locks, cfg.Brain, opts...)
	if err != nil {
		return nil, err
	}
	a.Engine = eng

	logger.Info("brain assembled", "component", "app",
		"datasource", cfg.DataSource.Type,
		"storage", cfg.Storage.Type,
		"dispatch", cfg.Dispatch.Type,
		"alerts", alerter != nil,
		"config_version", cfg.Brain.Fingerprint())
	ok = true
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	needsDB := cfg.DataSource.Type == "postgres" || cfg.Storage.Type == "postgres"
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)
		a.closers = append(a.closers, db.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		a.DB = db
	} else if needsDB {
		return errors.New("database.url is required for postgres datasource or storage")
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		a.Redis = client
	} else if cfg.Dispatch.Type == "redis" {
		return errors.New("redis.url is required for the redis dispatcher")
	}
	return nil
}

func (a *App) buildReader() error {
	cfg := a.Config
	switch cfg.DataSource.Type {
	case "postgres":
		a.Reader = postgres.NewReader(a.DB)
		a.Orgs = postgres.NewOrgLister(a.DB)
	case "snowflake":
		db, err := snowflake.Open(snowflake.FromAppConfig(cfg.Snowflake))
		if err != nil {
			return err
		}
		r := snowflake.NewReader(db)
		a.closers = append(a.closers, r.Close)
		a.Reader, a.Orgs = r, r
	case "memory":
		r, err := repomem.LoadFixture(cfg.DataSource.FixturePath)
		if err != nil {
			return fmt.Errorf("load fixture: %w", err)
		}
		a.Reader, a.Orgs = r, r
	default:
		return fmt.Errorf("unknown datasource type %q", cfg.DataSource.Type)
	}
	return nil
}

// HealthChecker registers a probe for every configured backend.
func (a *App) HealthChecker() *api.HealthChecker {
	hc := api.NewHealthChecker()
	if a.DB != nil {
		hc.Add("database", a.DB.PingContext, true, time.Second)
	}
	if a.Redis != nil {
		hc.Add("redis", func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }, false, 500*time.Millisecond)
	}
	if p, ok := a.Reader.(interface{ Ping(context.Context) error }); ok {
		hc.Add("warehouse", p.Ping, true, 2*time.Second)
	}
	return hc
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
