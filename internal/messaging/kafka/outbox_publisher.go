package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicWarehouseEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish отправляет событие с ключом по агрегату, чтобы события одного товара/заказа шли в одну партицию.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := messaging.AggregateKey(event.AggregateType, event.AggregateID, event.ID)
	envelope := messaging.NewEnvelope(event, time.Now())

	return p.producer.PublishEvent(p.topic, key, envelope, map[string]string{
		HeaderEventType:     string(event.EventType),
		HeaderAggregateType: event.AggregateType,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
