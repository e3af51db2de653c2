package app

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging/kafka"
	natsmsg "github.com/vladislavdragonenkov/warehouse/internal/messaging/nats"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging/redisstream"
	"github.com/vladislavdragonenkov/warehouse/internal/service/outbox"
)

// brokers хранит подключение к брокеру, выбранному для outbox.
// Заполнено не больше одного поля.
type brokers struct {
	kafka  *kafka.Producer
	nats   *natsmsg.Client
	rabbit *rabbitmq.Client
	redis  *redis.Client
}

// connectBrokers подключается к брокерам по порядку и останавливается
// на первом успешном. Ошибки подключения не фатальны.
func connectBrokers(ctx context.Context, cfg Config, logger *log.Entry) brokers {
	var b brokers
	if b.kafka, _ = initKafkaProducer(cfg.KafkaBrokers, logger); b.kafka != nil {
		return b
	}
	if b.nats, _ = initNATS(ctx, cfg.NATSURL, logger); b.nats != nil {
		return b
	}
	if b.rabbit, _ = initRabbitMQ(ctx, cfg.AMQPURL, logger); b.rabbit != nil {
		return b
	}
	b.redis, _ = initRedis(ctx, cfg.RedisAddr, logger)
	return b
}

// publishers возвращает паблишер событий и DLQ. Без брокера события
// пишутся в лог, DLQ нет.
func (b brokers) publishers(logger *log.Entry) (publisher, dlq domain.OutboxPublisher) {
	switch {
	case b.kafka != nil:
		return kafka.NewOutboxPublisher(b.kafka, kafka.TopicWarehouseEvents),
			kafka.NewOutboxPublisher(b.kafka, kafka.TopicDeadLetterQueue)
	case b.nats != nil:
		return natsmsg.NewOutboxPublisher(b.nats, natsmsg.SubjectEvents),
			natsmsg.NewOutboxPublisher(b.nats, natsmsg.SubjectDeadLetters)
	case b.rabbit != nil:
		return rabbitmq.NewOutboxPublisher(b.rabbit, rabbitmq.ExchangeEvents),
			rabbitmq.NewOutboxPublisher(b.rabbit, rabbitmq.ExchangeDeadLetters)
	case b.redis != nil:
		redisLogger := logger.WithField("component", "redis-outbox-publisher")
		return redisstream.NewOutboxPublisher(b.redis, redisstream.StreamEvents, redisLogger),
			redisstream.NewOutboxPublisher(b.redis, redisstream.StreamDeadLetters, redisLogger)
	default:
		return outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher")), nil
	}
}

// name возвращает имя выбранного брокера для логов.
func (b brokers) name() string {
	switch {
	case b.kafka != nil:
		return "kafka"
	case b.nats != nil:
		return "nats"
	case b.rabbit != nil:
		return "rabbitmq"
	case b.redis != nil:
		return "redis"
	default:
		return "log"
	}
}

func (b brokers) close(logger *log.Entry) {
	closeKafka(b.kafka, logger)
	closeNATS(b.nats, logger)
	if b.rabbit != nil {
		if err := b.rabbit.Close(); err != nil {
			logger.WithError(err).Warn("failed to close rabbitmq connection")
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
}

func initRabbitMQ(ctx context.Context, url string, logger *log.Entry) (*rabbitmq.Client, error) {
	if url == "" {
		return nil, nil
	}

	client, err := rabbitmq.Connect(ctx, url, logger.WithField("component", "rabbitmq"))
	if err != nil {
		logger.WithError(err).Warn("failed to connect to rabbitmq, continuing without it")
		return nil, err
	}

	logger.Info("rabbitmq publisher initialized")
	return client, nil
}

func initRedis(ctx context.Context, addr string, logger *log.Entry) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	client, err := redisstream.Connect(ctx, addr)
	if err != nil {
		logger.WithError(err).Warn("failed to connect to redis, continuing without streams")
		return nil, err
	}

	logger.WithField("addr", addr).Info("redis streams publisher initialized")
	return client, nil
}
