// Package app wires the civicsync services together. It is shared by the
// daemon and the CLI so both see the same cache and the same identities.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/civicsync/internal/backend"
	"github.com/jmerrifield20/civicsync/internal/cachestore"
	"github.com/jmerrifield20/civicsync/internal/category"
	"github.com/jmerrifield20/civicsync/internal/config"
	"github.com/jmerrifield20/civicsync/internal/fallback"
	"github.com/jmerrifield20/civicsync/internal/health"
	"github.com/jmerrifield20/civicsync/internal/reports"
	"github.com/jmerrifield20/civicsync/internal/session"
	"github.com/jmerrifield20/civicsync/internal/validation"
	"github.com/jmerrifield20/civicsync/pkg/civicapi"
	"go.uber.org/zap"
)

// App holds the opened services.
type App struct {
	Session    *session.Session
	Client     *civicapi.Client
	Backend    *backend.Adapter
	Cache      *cachestore.Cache
	Categories *category.Directory
	Validator  *validation.Engine
	Reports    *reports.Repository
	Monitor    *health.Monitor

	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New opens the cache, builds the backend client and opens the category
// directory and the report repository. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sess, err := session.Parse(cfg.Backend.Token)
	if err != nil {
		return nil, fmt.Errorf("backend.token: %w", err)
	}
	if sess.Expired() {
		logger.Warn("session token expired, backend calls will be anonymous")
		sess = session.Anonymous
	}

	opts := []civicapi.Option{
		civicapi.WithTimeout(cfg.Backend.Timeout),
		civicapi.WithRateLimit(cfg.Backend.RateLimitRPS, 5),
	}
	if sess != session.Anonymous {
		opts = append(opts, civicapi.WithTokenSource(sess))
	}
	client, err := civicapi.New(cfg.Backend.URL, opts...)
	if err != nil {
		return nil, err
	}

	a := &App{
		Session:   sess,
		Client:    client,
		Backend:   backend.New(client),
		Validator: validation.NewEngine(validation.WithMinScore(cfg.MinScore)),
		logger:    logger,
	}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Cache = cachestore.New(store)

	a.Categories = category.NewDirectory(a.Backend, a.Cache, logger,
		category.WithTTL(cfg.CategoryTTL),
		category.WithTimeout(cfg.Backend.Timeout),
	)
	a.Reports = reports.NewRepository(a.Backend, a.Cache, a.Categories, a.Validator, logger,
		reports.WithTimeout(cfg.Backend.Timeout),
	)

	if err := a.Categories.Open(ctx); err != nil {
		a.closeStore()
		return nil, fmt.Errorf("open categories: %w", err)
	}
	if err := a.Reports.Open(ctx); err != nil {
		a.closeStore()
		return nil, fmt.Errorf("open reports: %w", err)
	}

	a.Monitor = health.New(a.Backend, health.Config{
		CheckInterval: cfg.Health.Interval,
		ProbeTimeout:  cfg.Backend.Timeout,
		FailThreshold: cfg.Health.FailThreshold,
	}, logger)
	a.Monitor.SetRecoverFunc(a.Recover)

	logger.Info("civicsync ready",
		zap.String("backend", cfg.Backend.URL),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.Bool("signed_in", sess != session.Anonymous),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (cachestore.Backend, error) {
	switch cfg.Cache.Driver {
	case config.DriverMemory:
		return cachestore.NewMemoryBackend(), nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("cache: postgres")
		return cachestore.NewPostgresBackend(pool, a.logger), nil
	default:
		b, err := cachestore.OpenBadger(cfg.Cache.Path, a.logger)
		if err != nil {
			return nil, err
		}
		a.logger.Info("cache: badger", zap.String("path", cfg.Cache.Path))
		return b, nil
	}
}

// SetTierRecorder routes tier accounting of both services to fn.
func (a *App) SetTierRecorder(fn fallback.Recorder) {
	a.Categories.SetTierRecorder(fn)
	a.Reports.SetTierRecorder(fn)
}

// Recover pushes pending reports and resyncs categories. The monitor runs
// it when the backend comes back.
func (a *App) Recover(ctx context.Context) {
	res, err := a.Reports.SyncPending(ctx)
	if err != nil {
		a.logger.Warn("sync after recovery", zap.Error(err))
	}
	a.logger.Info("backend recovered, pending reports pushed",
		zap.Int("pushed", res.Pushed),
		zap.Int("failed", res.Failed),
	)
	a.Categories.Sync(ctx)
}

// Close flushes the repository and closes the cache.
func (a *App) Close() error {
	err := a.Reports.Close()
	err = errors.Join(err, a.Categories.Close())
	return errors.Join(err, a.closeStore())
}

func (a *App) closeStore() error {
	var err error
	if a.Cache != nil {
		err = a.Cache.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return err
}
