// Package redisstream публикует события склада в Redis Streams.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging"
)

// Потоки событий и DLQ.
const (
	StreamEvents      = "warehouse:events"
	StreamDeadLetters = "warehouse:dlq"
)

// DefaultMaxLen ограничивает длину потока (приблизительно, MAXLEN ~).
const DefaultMaxLen = 100_000

const pingTimeout = 5 * time.Second

// Connect открывает клиент Redis и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// OutboxPublisher добавляет outbox-сообщения в поток через XADD.
type OutboxPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
	logger *log.Entry
	now    func() time.Time
}

// NewOutboxPublisher создаёт паблишер; пустой stream означает StreamEvents.
func NewOutboxPublisher(client redis.Cmdable, stream string, logger *log.Entry) *OutboxPublisher {
	if stream == "" {
		stream = StreamEvents
	}
	if logger == nil {
		logger = log.WithField("component", "redis-outbox-publisher")
	}
	return &OutboxPublisher{client: client, stream: stream, maxLen: DefaultMaxLen, logger: logger, now: time.Now}
}

// Publish записывает событие в поток. Поля записи дублируют заголовки
// остальных брокеров, чтобы читатели могли фильтровать без разбора JSON.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.client == nil {
		return errors.New("redis outbox publisher is not initialized")
	}

	envelope, err := json.Marshal(messaging.NewEnvelope(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	id, err := p.client.XAdd(ctx, Args(p.stream, p.maxLen, event, envelope)).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	p.logger.WithFields(log.Fields{
		"stream":     p.stream,
		"entry_id":   id,
		"event_type": event.EventType,
		"outbox_id":  event.ID,
	}).Debug("event appended to redis stream")
	return nil
}

// Args строит аргументы XADD для события.
func Args(stream string, maxLen int64, event domain.OutboxMessage, envelope []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: []any{
			"id", event.ID,
			messaging.HeaderEventType, string(event.EventType),
			messaging.HeaderAggregateType, event.AggregateType,
			"key", messaging.AggregateKey(event.AggregateType, event.AggregateID, event.ID),
			"envelope", string(envelope),
		},
	}
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
