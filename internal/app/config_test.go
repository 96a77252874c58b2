package app

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":50051" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected addresses: %+v", cfg)
	}
	if cfg.StorageDriver != StorageDriverMemory || cfg.CacheDriver != CacheDriverMemory {
		t.Fatalf("expected memory drivers by default, got %q/%q", cfg.StorageDriver, cfg.CacheDriver)
	}
	if cfg.CartTTL != domain.DefaultCartTTL {
		t.Fatalf("expected cart ttl %v, got %v", domain.DefaultCartTTL, cfg.CartTTL)
	}
	if cfg.ExpiryInterval != 10*time.Minute || cfg.ExpiryBatchSize != 100 {
		t.Fatalf("unexpected expiry settings: %v/%d", cfg.ExpiryInterval, cfg.ExpiryBatchSize)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("kafka must be disabled by default, got %v", cfg.KafkaBrokers)
	}
	if !cfg.PostgresAutoMigrate {
		t.Fatal("postgres auto-migrate should be enabled by default")
	}
}
