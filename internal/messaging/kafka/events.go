package kafka

import "github.com/vladislavdragonenkov/warehouse/internal/messaging"

// Topics для Kafka
const (
	TopicWarehouseEvents = "warehouse.events"
	TopicDeadLetterQueue = "warehouse.dlq"
)

// Kafka headers
const (
	HeaderEventType     = messaging.HeaderEventType
	HeaderAggregateType = messaging.HeaderAggregateType
)

// Envelope задаёт формат сообщения в топиках склада.
type Envelope = messaging.Envelope
