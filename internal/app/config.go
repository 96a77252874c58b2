package app

import (
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	// StorageDriverMemory — in-memory хранилище для локального запуска и тестов.
	StorageDriverMemory = "memory"
	// PostgreSQL через pgx
	StorageDriverPostgres = "postgres"

	// CacheDriverMemory — TTL-кэш внутри процесса.
	CacheDriverMemory = "memory"
	// Redis через go-redis
	CacheDriverRedis = "redis"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	CacheDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartLockWait  time.Duration

	CartTTL            time.Duration
	ExpiryInterval     time.Duration
	ExpiryBatchSize    int
	JobPollInterval    time.Duration
	JobBatchSize       int
	JobBacklogMaxAge   time.Duration
	CORSAllowedOrigins []string

	KafkaBrokers           []string
	KafkaClientID          string
	KafkaDLQTopic          string
	KafkaNotificationTopic string
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних сервисов.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CacheDriver:         CacheDriverMemory,
		CartLockWait:        2 * time.Second,
		CartTTL:             domain.DefaultCartTTL,
		ExpiryInterval:      10 * time.Minute,
		ExpiryBatchSize:     100,
		JobPollInterval:     500 * time.Millisecond,
		JobBatchSize:        50,
		JobBacklogMaxAge:    5 * time.Minute,
		CORSAllowedOrigins:  []string{"*"},
		KafkaClientID:       "marketplace",
	}
}
