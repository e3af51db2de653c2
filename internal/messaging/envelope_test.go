package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("MSK", 3*60*60))
	env := NewEnvelope(domain.OutboxMessage{
		ID:            "m-1",
		AggregateType: domain.AggregateProduct,
		AggregateID:   "7",
		EventType:     domain.EventProductChanged,
		Payload:       []byte(`{"product_id":7}`),
	}, at)

	require.Equal(t, "m-1", env.ID)
	require.Equal(t, "product.changed", env.EventType)
	require.Equal(t, time.UTC, env.PublishedAt.Location())
	require.True(t, env.PublishedAt.Equal(at))

	encoded, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id":"m-1",
		"aggregate_type":"product",
		"aggregate_id":"7",
		"event_type":"product.changed",
		"payload":{"product_id":7},
		"published_at":"2026-01-02T00:04:05Z"
	}`, string(encoded))
}

func TestAggregateKey(t *testing.T) {
	require.Equal(t, "order:3", AggregateKey("order", "3", "m-1"))
	require.Equal(t, "m-1", AggregateKey("order", "", "m-1"))
}
