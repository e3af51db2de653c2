// Package nats публикует события склада в NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging"
)

// Stream и subjects JetStream.
const (
	StreamName         = "WAREHOUSE"
	SubjectEvents      = "warehouse.events"
	SubjectDeadLetters = "warehouse.dlq"
)

const connectTimeout = 10 * time.Second

// jetStream описывает используемую часть nats.JetStreamContext.
type jetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Client держит соединение и JetStream-контекст.
type Client struct {
	conn   *nats.Conn
	js     jetStream
	logger *log.Entry
}

// Connect подключается к NATS и создаёт stream склада, если его ещё нет.
func Connect(ctx context.Context, url string, logger *log.Entry) (*Client, error) {
	if logger == nil {
		logger = log.WithField("component", "nats")
	}

	conn, err := nats.Connect(
		url,
		nats.Name("warehouse-service"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	client := &Client{conn: conn, js: js, logger: logger}
	if err := client.EnsureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// EnsureStream создаёт stream для событий и DLQ.
func (c *Client) EnsureStream(ctx context.Context) error {
	_, err := c.js.StreamInfo(StreamName, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream %s info: %w", StreamName, err)
	}

	c.logger.WithField("stream", StreamName).Info("jetstream stream not found, creating it")
	if _, err := c.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectEvents + ".>", SubjectDeadLetters + ".>"},
	}, nats.Context(ctx)); err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Close дожидается отправки буфера и закрывает соединение.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}

// OutboxPublisher публикует outbox-сообщения в subject вида
// <prefix>.<aggregate_type>.<aggregate_id>.
type OutboxPublisher struct {
	client *Client
	prefix string
}

// NewOutboxPublisher создаёт паблишер; пустой prefix означает SubjectEvents.
func NewOutboxPublisher(client *Client, prefix string) *OutboxPublisher {
	if prefix == "" {
		prefix = SubjectEvents
	}
	return &OutboxPublisher{client: client, prefix: prefix}
}

// Publish отправляет событие в JetStream. ID outbox-сообщения уходит в
// Nats-Msg-Id, поэтому повторная публикация после сбоя дедуплицируется сервером.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.client == nil || p.client.js == nil {
		return errors.New("nats outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(messaging.NewEnvelope(event, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := nats.NewMsg(Subject(p.prefix, event))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set(messaging.HeaderEventType, string(event.EventType))
	msg.Header.Set(messaging.HeaderAggregateType, event.AggregateType)

	if _, err := p.client.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}

	p.client.logger.WithFields(log.Fields{
		"subject":    msg.Subject,
		"event_type": event.EventType,
		"outbox_id":  event.ID,
	}).Debug("event published to jetstream")
	return nil
}

// Subject строит subject события. Символы, которые NATS трактует как
// разделители или wildcard, заменяются на "_".
func Subject(prefix string, event domain.OutboxMessage) string {
	return prefix + "." + subjectToken(event.AggregateType) + "." + subjectToken(event.AggregateID)
}

func subjectToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, value)
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
