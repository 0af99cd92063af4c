package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/cache"
	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/nutshop/internal/storage/postgres"
)

// cacheServiceName — префикс ключей кеша сводок.
const cacheServiceName = "shop"

// Dependencies содержит хранилища и инфраструктурные клиенты приложения.
type Dependencies struct {
	Orders      domain.OrderRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Cache       cache.Cache
	// Store не nil только при работе поверх Postgres.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies собирает зависимости согласно конфигурации: Postgres и
// Redis при заданных адресах, иначе in-memory реализации. Для Postgres
// применяются миграции схемы.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}

		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		deps.Orders = memory.NewOrderRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Warn("SHOP_POSTGRES_DSN is empty, using in-memory storage")
	}

	if cfg.RedisAddr != "" {
		deps.Cache = cache.NewRedisCache(cfg.RedisAddr, cacheServiceName)
		logger.WithField("addr", cfg.RedisAddr).Info("redis cache initialized")
	} else {
		deps.Cache = cache.NewMemoryCache(cacheServiceName)
		logger.Info("using in-memory dashboard cache")
	}

	return deps, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
