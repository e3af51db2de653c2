package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Переменные окружения сервиса.
const (
	EnvHTTPAddr            = "WAREHOUSE_HTTP_ADDR"
	EnvGRPCAddr            = "WAREHOUSE_GRPC_ADDR"
	EnvStorageDriver       = "WAREHOUSE_STORAGE_DRIVER"
	EnvPostgresDSN         = "WAREHOUSE_POSTGRES_DSN"
	EnvPostgresAutoMigrate = "WAREHOUSE_POSTGRES_AUTO_MIGRATE"
	EnvOutboxPollInterval  = "WAREHOUSE_OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize     = "WAREHOUSE_OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts   = "WAREHOUSE_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxMaxPending    = "WAREHOUSE_OUTBOX_MAX_PENDING"
	EnvOutboxRetention     = "WAREHOUSE_OUTBOX_RETENTION"
	EnvOutboxCleanup       = "WAREHOUSE_OUTBOX_CLEANUP_INTERVAL"
	EnvKafkaBrokers        = "KAFKA_BROKERS"
	EnvNATSURL             = "NATS_URL"
	EnvAMQPURL             = "AMQP_URL"
	EnvRedisAddr           = "REDIS_ADDR"
	EnvLogLevel            = "WAREHOUSE_LOG_LEVEL"
)

// Config описывает настройки запуска сервиса склада.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending задаёт порог backlog, выше которого health отдаёт degraded.
	OutboxMaxPending int
	// OutboxRetention определяет, сколько хранить sent/failed сообщения до очистки.
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration

	KafkaBrokers []string
	// Брокеры перебираются по порядку: Kafka, NATS, RabbitMQ, Redis.
	// Используется первый, к которому удалось подключиться.
	NATSURL   string
	AMQPURL   string
	RedisAddr string
	LogLevel  log.Level
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:              ":8080",
		GRPCAddr:              ":50051",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      50 * time.Millisecond,
		OutboxMaxPending:      1000,
		OutboxRetention:       24 * time.Hour,
		OutboxCleanupInterval: 10 * time.Minute,
		LogLevel:              log.InfoLevel,
	}
}

// ConfigFromEnv накладывает значения переменных окружения на DefaultConfig.
// lookup обычно os.LookupEnv.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvHTTPAddr); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := get(EnvGRPCAddr); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := get(EnvStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := get(EnvPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := get(EnvPostgresAutoMigrate); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvPostgresAutoMigrate, err)
		}
		cfg.PostgresAutoMigrate = b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvOutboxPollInterval, &cfg.OutboxPollInterval},
		{EnvOutboxRetention, &cfg.OutboxRetention},
		{EnvOutboxCleanup, &cfg.OutboxCleanupInterval},
	}
	for _, item := range durations {
		v, ok := get(item.key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.dst = d
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvOutboxBatchSize, &cfg.OutboxBatchSize},
		{EnvOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
		{EnvOutboxMaxPending, &cfg.OutboxMaxPending},
	}
	for _, item := range ints {
		v, ok := get(item.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.dst = n
	}

	if v, ok := get(EnvKafkaBrokers); ok {
		cfg.KafkaBrokers = splitBrokers(v)
	}
	if v, ok := get(EnvNATSURL); ok {
		cfg.NATSURL = v
	}
	if v, ok := get(EnvAMQPURL); ok {
		cfg.AMQPURL = v
	}
	if v, ok := get(EnvRedisAddr); ok {
		cfg.RedisAddr = v
	}
	if v, ok := get(EnvLogLevel); ok {
		level, err := log.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}

	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s is required for postgres storage", EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("outbox poll interval must be positive, got %s", c.OutboxPollInterval)
	}
	if c.OutboxRetention <= 0 || c.OutboxCleanupInterval <= 0 {
		return fmt.Errorf("outbox retention and cleanup interval must be positive")
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("outbox batch size and max attempts must be positive")
	}
	return nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
