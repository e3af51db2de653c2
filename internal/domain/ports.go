package domain

import (
	"context"
	"encoding/json"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// DeleteProcessedBefore удаляет до limit обработанных (sent/failed) сообщений,
	// последний раз обновлённых раньше before. Pending-сообщения не трогает.
	DeleteProcessedBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// EventType задаёт тип доменного события склада.
type EventType string

const (
	EventProductCreated EventType = "product.created"
	EventProductChanged EventType = "product.changed"
	EventOrderCreated   EventType = "order.created"
	EventOrderCompleted EventType = "order.completed"
	EventOrderCanceled  EventType = "order.canceled"
)

const (
	AggregateProduct = "product"
	AggregateOrder   = "order"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     EventType
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// DeadLetter описывает payload события, исчерпавшего попытки публикации.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
}
