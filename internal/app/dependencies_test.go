package app

import (
	"context"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "deps"))
	if err != nil {
		t.Fatalf("init memory dependencies: %v", err)
	}
	defer func() { _ = deps.close() }()

	if deps.tx == nil || deps.products == nil || deps.carts == nil || deps.orders == nil || deps.jobs == nil {
		t.Fatalf("storage dependencies must be initialized: %+v", deps)
	}
	if deps.reservations == nil || deps.cartCache == nil || deps.locker == nil || deps.idempotency == nil {
		t.Fatalf("cache dependencies must be initialized: %+v", deps)
	}
	if _, ok := deps.checkers["jobs"]; !ok {
		t.Fatal("expected job backlog checker")
	}
	if len(deps.checkers) != 1 {
		t.Fatalf("memory drivers should not add ping checkers, got %d checkers", len(deps.checkers))
	}
}

func TestInitRuntimeDependencies_DriverErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unsupported storage",
			mutate:  func(c *Config) { c.StorageDriver = "mysql" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres; c.PostgresDSN = " " },
			wantErr: "postgres dsn is required",
		},
		{
			name:    "unsupported cache",
			mutate:  func(c *Config) { c.CacheDriver = "memcached" },
			wantErr: "unsupported cache driver",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.CacheDriver = CacheDriverRedis },
			wantErr: "redis addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "deps"))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if deps != nil {
				t.Fatal("dependencies must be nil on error")
			}
		})
	}
}

func TestRuntimeDependencies_CloseOrder(t *testing.T) {
	var order []string
	deps := &runtimeDependencies{closers: []func() error{
		func() error { order = append(order, "postgres"); return nil },
		func() error { order = append(order, "redis"); return nil },
	}}

	if err := deps.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if strings.Join(order, ",") != "redis,postgres" {
		t.Fatalf("expected reverse close order, got %v", order)
	}
	if err := deps.close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}

	var nilDeps *runtimeDependencies
	if err := nilDeps.close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresAndRedis(t *testing.T) {
	dsn := postgresTestDSN()
	addr := redisTestAddr()
	if dsn == "" || addr == "" {
		t.Skip("MARKETPLACE_POSTGRES_TEST_DSN and MARKETPLACE_REDIS_TEST_ADDR are required")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.CacheDriver = CacheDriverRedis
	cfg.RedisAddr = addr

	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, cfg, log.WithField("test", "integration"))
	if err != nil {
		t.Skipf("postgres or redis is not available: %v", err)
	}
	defer func() { _ = deps.close() }()

	for _, name := range []string{"postgres", "redis", "jobs"} {
		checker, ok := deps.checkers[name]
		if !ok {
			t.Fatalf("expected %s checker", name)
		}
		if check := checker.Check(ctx); check.Status != healthcheck.StatusHealthy {
			t.Fatalf("expected healthy %s, got %+v", name, check)
		}
	}
}
