package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/app"
)

const (
	envHTTPAddr            = "MARKETPLACE_HTTP_ADDR"
	envGRPCAddr            = "MARKETPLACE_GRPC_ADDR"
	envMetricsAddr         = "MARKETPLACE_METRICS_ADDR"
	envStorageDriver       = "MARKETPLACE_STORAGE_DRIVER"
	envPostgresDSN         = "MARKETPLACE_POSTGRES_DSN"
	envPostgresAutoMigrate = "MARKETPLACE_POSTGRES_AUTO_MIGRATE"
	envCacheDriver         = "MARKETPLACE_CACHE_DRIVER"
	envRedisAddr           = "MARKETPLACE_REDIS_ADDR"
	envRedisPassword       = "MARKETPLACE_REDIS_PASSWORD"
	envRedisDB             = "MARKETPLACE_REDIS_DB"
	envCartLockWait        = "MARKETPLACE_CART_LOCK_WAIT"
	envCartTTLMinutes      = "CART_TTL_MINUTES"
	envExpiryInterval      = "MARKETPLACE_EXPIRY_INTERVAL"
	envExpiryBatchSize     = "MARKETPLACE_EXPIRY_BATCH_SIZE"
	envJobPollInterval     = "MARKETPLACE_JOB_POLL_INTERVAL"
	envJobBatchSize        = "MARKETPLACE_JOB_BATCH_SIZE"
	envJobBacklogMaxAge    = "MARKETPLACE_JOB_BACKLOG_MAX_AGE"
	envCORSAllowedOrigins  = "MARKETPLACE_CORS_ALLOWED_ORIGINS"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envKafkaClientID       = "MARKETPLACE_KAFKA_CLIENT_ID"
	envKafkaDLQTopic       = "MARKETPLACE_KAFKA_DLQ_TOPIC"
	envKafkaNotifyTopic    = "MARKETPLACE_KAFKA_NOTIFICATION_TOPIC"
	envLogLevel            = "MARKETPLACE_LOG_LEVEL"
)

type envLookup func(string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не роняют запуск: остаётся дефолт, а в warnings попадает причина.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v, using default", key, value, err))
	}

	setString := func(key string, dst *string) {
		if v, ok := nonEmpty(lookup, key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := nonEmpty(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	setDuration := func(key string, dst *time.Duration) {
		v, ok := nonEmpty(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)

	if v, ok := nonEmpty(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := nonEmpty(lookup, envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	if v, ok := nonEmpty(lookup, envCacheDriver); ok {
		cfg.CacheDriver = strings.ToLower(v)
	}
	setString(envRedisAddr, &cfg.RedisAddr)
	if v, ok := lookup(envRedisPassword); ok {
		cfg.RedisPassword = v
	}
	setInt(envRedisDB, &cfg.RedisDB, func(v int) bool { return v >= 0 }, "must be >= 0")
	setDuration(envCartLockWait, &cfg.CartLockWait)

	var ttlMinutes int
	setInt(envCartTTLMinutes, &ttlMinutes, func(v int) bool { return v > 0 }, "must be > 0")
	if ttlMinutes > 0 {
		cfg.CartTTL = time.Duration(ttlMinutes) * time.Minute
	}

	setDuration(envExpiryInterval, &cfg.ExpiryInterval)
	setInt(envExpiryBatchSize, &cfg.ExpiryBatchSize, func(v int) bool { return v > 0 }, "must be > 0")
	setDuration(envJobPollInterval, &cfg.JobPollInterval)
	setInt(envJobBatchSize, &cfg.JobBatchSize, func(v int) bool { return v > 0 }, "must be > 0")
	setDuration(envJobBacklogMaxAge, &cfg.JobBacklogMaxAge)

	if v, ok := nonEmpty(lookup, envCORSAllowedOrigins); ok {
		cfg.CORSAllowedOrigins = splitList(v)
	}
	if v, ok := nonEmpty(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(envKafkaClientID, &cfg.KafkaClientID)
	setString(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	setString(envKafkaNotifyTopic, &cfg.KafkaNotificationTopic)

	return cfg, warnings
}

func nonEmpty(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected one of true/false/yes/no/on/off/1/0")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
}
