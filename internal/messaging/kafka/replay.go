package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging"
)

// ErrNotDeadLetter возвращается, если сообщение DLQ не содержит исходного события.
var ErrNotDeadLetter = errors.New("message is not a warehouse dead letter")

// ReplayConfig задаёт параметры переигрывания DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	// Limit ограничивает число просмотренных сообщений по всем партициям.
	Limit int
	// При Execute=false работает dry-run: кандидаты только логируются.
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// ReplayStats описывает итог переигрывания.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error { return a.consumer.Close() }

// Replayer читает warehouse.dlq и возвращает исходные события в основной topic.
type Replayer struct {
	client   offsetClient
	consumer partitionConsumerSource
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewReplayer подключается к брокерам. Producer создаётся только при execute.
func NewReplayer(brokers []string, execute bool) (*Replayer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	r := &Replayer{
		client:   client,
		consumer: saramaConsumerAdapter{consumer: consumer},
		logger:   log.WithField("component", "dlq-replay"),
	}
	if !execute {
		return r, nil
	}

	producer, err := NewProducer(brokers)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.producer = producer.producer
	return r, nil
}

// Close освобождает соединения с Kafka.
func (r *Replayer) Close() error {
	var errs []error
	if r.producer != nil {
		errs = append(errs, r.producer.Close())
	}
	if r.consumer != nil {
		errs = append(errs, r.consumer.Close())
	}
	if r.client != nil {
		errs = append(errs, r.client.Close())
	}
	return errors.Join(errs...)
}

// Run просматривает партиции SourceTopic по возрастанию номера, пока не наберётся Limit сообщений.
func (r *Replayer) Run(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var total ReplayStats
	if cfg.Execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := cfg.Limit - total.Processed
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, cfg, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   cfg.Execute,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, cfg ReplayConfig, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.consumer.ConsumePartition(cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.IdleTimeout)

			stats.Processed++
			if err := r.replayOne(cfg, msg); err != nil {
				if errors.Is(err, ErrNotDeadLetter) {
					stats.Skipped++
					r.logger.WithError(err).WithFields(log.Fields{
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Warn("skip unsupported dlq message")
					continue
				}
				return stats, err
			}
			stats.Replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *Replayer) replayOne(cfg ReplayConfig, msg *sarama.ConsumerMessage) error {
	out, err := ReplayMessage(msg.Value, cfg.TargetTopic)
	if err != nil {
		return err
	}

	if !cfg.Execute {
		key, _ := out.Key.Encode()
		r.logger.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": out.Topic,
			"key":          string(key),
		}).Info("dlq replay candidate")
		return nil
	}

	if _, _, err := r.producer.SendMessage(out); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	return nil
}

// ReplayMessage восстанавливает исходное событие из сообщения DLQ.
// Сообщение DLQ представляет собой Envelope, в payload которого лежит domain.DeadLetter.
func ReplayMessage(value []byte, targetTopic string) (*sarama.ProducerMessage, error) {
	var wrapper Envelope
	if err := json.Unmarshal(value, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDeadLetter, err)
	}

	var dead domain.DeadLetter
	if err := json.Unmarshal(wrapper.Payload, &dead); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrNotDeadLetter, err)
	}
	if len(dead.Payload) == 0 || dead.EventType == "" {
		return nil, fmt.Errorf("%w: original event is missing", ErrNotDeadLetter)
	}

	original := Envelope{
		ID:            dead.OutboxID,
		AggregateType: dead.AggregateType,
		AggregateID:   dead.AggregateID,
		EventType:     dead.EventType,
		Payload:       dead.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(original)
	if err != nil {
		return nil, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := messaging.AggregateKey(original.AggregateType, original.AggregateID, original.ID)

	return &sarama.ProducerMessage{
		Topic:     targetTopic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(encoded),
		Timestamp: time.Now().UTC(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(original.EventType)},
			{Key: []byte(HeaderAggregateType), Value: []byte(original.AggregateType)},
		},
	}, nil
}
