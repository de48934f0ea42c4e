// Package app opens the configured store and cache backends and hands the
// resulting repositories to the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/data/memory"
	"github.com/resident-trust-ledger/internal/data/mongo"
	"github.com/resident-trust-ledger/internal/data/postgres"
	"github.com/resident-trust-ledger/internal/domain/outbox"
	"github.com/resident-trust-ledger/internal/engine"
	"github.com/resident-trust-ledger/internal/platform/cache"
	"github.com/resident-trust-ledger/internal/platform/persistence"
)

// Backends holds the repositories for one process and the connections behind them
type Backends struct {
	Repos  engine.Repositories
	Outbox outbox.Repository
	Cache  cache.Cache

	postgresDB *persistence.PostgresDB
	mongoDB    *persistence.MongoDB
	redisDB    *persistence.RedisDB
	logger     *slog.Logger
}

// Open connects every backend named by cfg. On failure the connections opened
// so far are closed before returning.
func Open(ctx context.Context, log *slog.Logger, cfg *config.Config) (_ *Backends, err error) {
	b := &Backends{logger: log}
	defer func() {
		if err != nil {
			b.Close(context.Background())
		}
	}()

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		if err = b.openPostgres(ctx, cfg); err != nil {
			return nil, err
		}
	case config.StoreDriverMemory:
		log.Warn("Using in-memory store, balances are lost on exit")
		store := memory.New()
		b.Repos = engine.Repositories{
			Residents:      store.Residents(),
			Ledger:         store.Ledger(),
			ServiceBatches: store.ServiceBatches(),
			DepositBatches: store.DepositBatches(),
			PreAuth:        store.PreAuth(),
			CashBox:        store.CashBox(),
			CashBoxHistory: store.CashBoxHistory(),
			Withdrawals:    store.Withdrawals(),
		}
		b.Outbox = store.Outbox()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var client *redis.Client
	if cfg.Cache.Driver == config.CacheDriverRedis {
		b.redisDB, err = persistence.NewRedisDB(ctx, log, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		client = b.redisDB.Client()
	}
	b.Cache, err = cache.New(&cfg.Cache, client, log.With("component", "cache"))
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Backends) openPostgres(ctx context.Context, cfg *config.Config) error {
	var err error
	b.postgresDB, err = persistence.NewPostgresDB(ctx, b.logger, &cfg.Postgres)
	if err != nil {
		return fmt.Errorf("initialize PostgreSQL: %w", err)
	}

	b.mongoDB, err = persistence.NewMongoDB(ctx, b.logger, &cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("initialize MongoDB: %w", err)
	}
	if err = b.mongoDB.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure MongoDB indexes: %w", err)
	}

	b.Repos = engine.Repositories{
		Residents:      postgres.NewResidentRepository(b.logger, b.postgresDB),
		Ledger:         postgres.NewLedgerRepository(b.logger, b.postgresDB),
		ServiceBatches: postgres.NewServiceBatchRepository(b.logger, b.postgresDB),
		DepositBatches: postgres.NewDepositBatchRepository(b.logger, b.postgresDB),
		PreAuth:        postgres.NewPreAuthRepository(b.logger, b.postgresDB),
		CashBox:        postgres.NewCashBoxRepository(b.logger, b.postgresDB),
		CashBoxHistory: mongo.NewCashBoxHistoryRepository(b.logger, b.mongoDB.Database()),
		Withdrawals:    mongo.NewWithdrawalRepository(b.logger, b.mongoDB.Database()),
	}
	b.Outbox = postgres.NewOutboxRepository(b.logger, b.postgresDB)
	return nil
}

// Durable reports whether the repositories outlive the process
func (b *Backends) Durable() bool {
	return b.postgresDB != nil
}

// Close releases every open connection. It is safe on a partially opened value.
func (b *Backends) Close(ctx context.Context) {
	if b.redisDB != nil {
		if err := b.redisDB.Close(); err != nil {
			b.logger.Error("Error closing Redis connection", "error", err)
		}
	}
	if b.postgresDB != nil {
		b.postgresDB.Close()
	}
	if b.mongoDB != nil {
		if err := b.mongoDB.Close(ctx); err != nil {
			b.logger.Error("Error closing MongoDB connection", "error", err)
		}
	}
}
