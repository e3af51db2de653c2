// Package messaging содержит формат событий склада, общий для всех брокеров.
package messaging

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// Заголовки, которые брокеры проставляют каждому событию.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// Envelope задаёт формат сообщения, которое outbox публикует в брокер.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(event domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     string(event.EventType),
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   publishedAt.UTC(),
	}
}

// AggregateKey возвращает ключ "тип:id", по которому события одного товара или
// заказа попадают в одну партицию. Без ID агрегата используется ID сообщения.
func AggregateKey(aggregateType, aggregateID, messageID string) string {
	if aggregateID == "" {
		return messageID
	}
	return aggregateType + ":" + aggregateID
}
