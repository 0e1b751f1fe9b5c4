// Package app assembles the shared runtime used by the server, the worker and
// the admin CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"endurancy/internal/engine/entitlements"
	"endurancy/internal/engine/payments"
	"endurancy/internal/pkg/mail"
	"endurancy/internal/platform/audit"
	"endurancy/internal/platform/config"
	"endurancy/internal/platform/database"
	"endurancy/internal/platform/metrics"
	"endurancy/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config   *config.Config
	DB       *sql.DB
	Redis    *redis.Client // nil unless redis.addr is set
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Audit    *audit.Logger

	Reconciler   *entitlements.Reconciler
	Entitlements *entitlements.Service
	Payments     *payments.Service
}

// New opens the database, applies migrations, connects to redis when
// configured and builds the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{Config: cfg, DB: db}

	var (
		locker entitlements.Locker
		links  payments.LinkCache
	)
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		locker = entitlements.NewRedisLocker(a.Redis, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL)
		links = payments.NewRedisLinkCache(a.Redis, cfg.Redis.KeyPrefix, cfg.Payment.LinkCacheTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis for reconcile locks and link cache")
	}

	mailer, err := mail.New(cfg.Email)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)
	a.Audit = audit.NewLogger(db)

	a.Reconciler = entitlements.NewReconciler(db, locker, a.Metrics)
	a.Entitlements = entitlements.NewService(db, a.Reconciler)
	a.Payments = payments.NewService(db, a.Reconciler, mailer, links, a.Audit, a.Metrics, cfg.Payment)

	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
