package warehouse

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/metrics"
)

type options struct {
	logger  *log.Entry
	metrics *metrics.WarehouseMetrics
	events  domain.OutboxRepository
}

// Option настраивает Service и Facade.
type Option func(*options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics задаёт метрики операций.
func WithMetrics(m *metrics.WarehouseMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithEvents включает запись доменных событий в outbox.
// Facade игнорирует эту опцию и пишет события в outbox текущей транзакции.
func WithEvents(outbox domain.OutboxRepository) Option {
	return func(o *options) {
		o.events = outbox
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.WithField("component", "warehouse")
	}
	return o
}
