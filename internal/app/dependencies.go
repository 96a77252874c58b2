package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	rediscache "github.com/vladislavdragonenkov/marketplace/internal/cache/redis"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

// runtimeDependencies содержит хранилища и кэши, выбранные конфигурацией.
type runtimeDependencies struct {
	tx       domain.Transactor
	products domain.ProductRepository
	carts    domain.CartRepository
	orders   domain.OrderRepository
	jobs     domain.JobRepository

	reservations domain.ReservationCache
	cartCache    domain.CartCache
	locker       domain.CartLocker
	idempotency  domain.IdempotencyStore

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

// close освобождает подключения в обратном порядке.
func (d *runtimeDependencies) close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies поднимает хранилище и кэш. При ошибке уже открытые подключения закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	if err := initStorage(ctx, cfg, logger, deps); err != nil {
		_ = deps.close()
		return nil, err
	}
	if err := initCache(ctx, cfg, logger, deps); err != nil {
		_ = deps.close()
		return nil, err
	}

	deps.checkers["jobs"] = healthcheck.NewJobBacklogChecker(deps.jobs, cfg.JobBacklogMaxAge)
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps.tx = store
		deps.products = store.Products()
		deps.carts = store.Carts()
		deps.orders = store.Orders()
		deps.jobs = memory.NewJobRepository()
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithStoreLogger(logger.WithField("storage", "postgres")))
		if err != nil {
			return fmt.Errorf("init postgres storage: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		deps.tx = postgres.NewTransactor(store)
		deps.products = postgres.NewProductRepository(store)
		deps.carts = postgres.NewCartRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.jobs = postgres.NewJobRepository(store)
		deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store)
		logger.Info("using postgres storage")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initCache(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.CacheDriver))
	switch driver {
	case "", CacheDriverMemory:
		cache := memory.NewCache(time.Now)
		deps.reservations = cache.Reservations()
		deps.cartCache = cache.CartCache()
		deps.idempotency = cache.Idempotency()
		deps.locker = memory.NewCartLocker(cfg.CartLockWait)
		logger.Info("using in-memory cache")
		return nil

	case CacheDriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return fmt.Errorf("redis addr is required for cache driver %q", CacheDriverRedis)
		}

		client, err := rediscache.Connect(ctx, rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger.WithField("cache", "redis"))
		if err != nil {
			return fmt.Errorf("init redis cache: %w", err)
		}
		deps.closers = append(deps.closers, client.Close)

		deps.reservations = client.Reservations()
		deps.cartCache = client.Carts()
		deps.idempotency = client.Idempotency()
		deps.locker = client.Locker(rediscache.WithLockWait(cfg.CartLockWait))
		deps.checkers["redis"] = healthcheck.NewPingChecker("redis", client)
		logger.Info("using redis cache")
		return nil

	default:
		return fmt.Errorf("unsupported cache driver %q", cfg.CacheDriver)
	}
}
