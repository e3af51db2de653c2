package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// ProductEvent описывает payload событий product.*.
type ProductEvent struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderEvent описывает payload событий order.*.
type OrderEvent struct {
	OrderID    int64   `json:"order_id"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
}

// emit пишет событие в outbox, если запись событий включена.
func (s *Service) emit(ctx context.Context, aggregate string, id int64, eventType domain.EventType, payload any) error {
	if s.events == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	if _, err := s.events.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregate,
		AggregateID:   strconv.FormatInt(id, 10),
		EventType:     eventType,
		Payload:       body,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}

	s.metrics.RecordEventEnqueued()
	return nil
}
