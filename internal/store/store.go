// Package store opens the storage and locking backends selected by config.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// Repository is what every backend provides.
type Repository interface {
	booking.Repository
	booking.IdentityWriter
}

type Backend struct {
	Repo   Repository
	Locker booking.Locker
	// Deps are the readiness checks of the connected dependencies, by name.
	Deps    map[string]func(ctx context.Context) error
	closers []func()
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects the configured store and locker and prepares the schema.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{Deps: make(map[string]func(ctx context.Context) error)}

	if err := b.openRepo(ctx, cfg, logger); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openLocker(ctx, cfg, logger); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) openRepo(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres connection error: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		logger.Info("connected to Postgres")

		if err := db.Migrate(pgCtx, pool); err != nil {
			return err
		}
		b.Repo = booking.NewPgRepository(pool)
		b.Deps["postgres"] = pool.Ping

	case config.StoreMongo:
		mgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := db.ConnectMongo(mgCtx, cfg.MongoURI)
		if err != nil {
			return fmt.Errorf("mongo connection error: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("error closing mongo", "error", err)
			}
		})
		logger.Info("connected to MongoDB", "database", cfg.MongoDatabase)

		repo := booking.NewMongoRepository(client, cfg.MongoDatabase)
		if err := repo.EnsureIndexes(mgCtx); err != nil {
			return err
		}
		b.Repo = repo
		b.Deps["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		b.Repo = booking.NewMemoryRepository()

	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return nil
}

func (b *Backend) openLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := redisclient.NewClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("redis connection error: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error("error closing redis", "error", err)
			}
		})
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)

		b.Locker = redisclient.NewSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
		b.Deps["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	case config.LockLocal:
		b.Locker = booking.NewLocalLocker(cfg.LockWait)

	default:
		return fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
	return nil
}
