// Package rabbitmq публикует события склада в topic exchange RabbitMQ.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging"
)

// Exchanges для событий и DLQ.
const (
	ExchangeEvents      = "warehouse.events"
	ExchangeDeadLetters = "warehouse.dlq"
	ExchangeType        = amqp.ExchangeTopic
)

const (
	dialAttempts  = 5
	dialRetryWait = 2 * time.Second
)

// channel описывает используемую часть *amqp.Channel.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Client держит соединение и канал в режиме подтверждений.
type Client struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	logger *log.Entry
}

// Connect подключается к брокеру с повторами, включает publisher confirms и
// объявляет exchanges склада.
func Connect(ctx context.Context, url string, logger *log.Entry) (*Client, error) {
	if logger == nil {
		logger = log.WithField("component", "rabbitmq")
	}

	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.WithError(err).Warn("failed to connect to rabbitmq, retrying")
		}
		return conn, err
	}, backoff.WithBackOff(backoff.NewConstantBackOff(dialRetryWait)), backoff.WithMaxTries(dialAttempts))
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	client := &Client{conn: conn, ch: ch, logger: logger}
	if err := client.declareExchanges(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) declareExchanges() error {
	for _, name := range []string{ExchangeEvents, ExchangeDeadLetters} {
		if err := c.ch.ExchangeDeclare(name, ExchangeType, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// Close закрывает канал и соединение.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

// publish отправляет сообщение и ждёт подтверждения брокера.
// Канал amqp нельзя использовать из нескольких горутин одновременно.
func (c *Client) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	confirmation, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	if confirmation == nil {
		// Канал без режима подтверждений.
		return nil
	}
	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("broker nacked message")
	}
	return nil
}

// OutboxPublisher публикует outbox-сообщения с routing key <aggregate_type>.<event_type>.
type OutboxPublisher struct {
	client   *Client
	exchange string
}

// NewOutboxPublisher создаёт паблишер; пустой exchange означает ExchangeEvents.
func NewOutboxPublisher(client *Client, exchange string) *OutboxPublisher {
	if exchange == "" {
		exchange = ExchangeEvents
	}
	return &OutboxPublisher{client: client, exchange: exchange}
}

// Publish отправляет persistent-сообщение с ID outbox-записи в MessageId.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.client == nil || p.client.ch == nil {
		return errors.New("rabbitmq outbox publisher is not initialized")
	}

	now := time.Now()
	body, err := json.Marshal(messaging.NewEnvelope(event, now))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	key := RoutingKey(event)
	err = p.client.publish(ctx, p.exchange, key, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.EventType),
		Timestamp:    now.UTC(),
		Headers: amqp.Table{
			messaging.HeaderEventType:     string(event.EventType),
			messaging.HeaderAggregateType: event.AggregateType,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, key, err)
	}

	p.client.logger.WithFields(log.Fields{
		"exchange":    p.exchange,
		"routing_key": key,
		"outbox_id":   event.ID,
	}).Debug("event published to rabbitmq")
	return nil
}

// RoutingKey возвращает ключ вида "order.order.created"; подписчик может
// выбрать все события заказов шаблоном "order.#".
func RoutingKey(event domain.OutboxMessage) string {
	aggregate := event.AggregateType
	if aggregate == "" {
		aggregate = "unknown"
	}
	return aggregate + "." + string(event.EventType)
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
