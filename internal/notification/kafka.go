package notification

import (
	"context"
	"fmt"
	"time"

	"cinema-checkout/pkg/utils"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaNotifier publishes ticket events keyed by session id, so every event
// for one booking lands on the same partition.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaNotifier(cfg utils.KafkaConfig, timeout time.Duration, log *zap.Logger) (*KafkaNotifier, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	if timeout > 0 {
		saramaConfig.Producer.Timeout = timeout
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newKafkaNotifier(producer, cfg.Topic, log), nil
}

func newKafkaNotifier(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		log:      log.With(zap.String("notifier", "kafka")),
	}
}

func (n *KafkaNotifier) SendTicket(_ context.Context, event TicketIssued) error {
	body, err := event.encode()
	if err != nil {
		return err
	}

	message := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(event.SessionID.String()),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(EventTicketIssued)},
			{Key: []byte("order_id"), Value: []byte(event.OrderID)},
		},
		Timestamp: event.PaidAt,
	}

	partition, offset, err := n.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send ticket event to Kafka: %w", err)
	}

	n.log.Debug("Ticket event published",
		zap.String("topic", n.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("session_id", event.SessionID.String()),
	)
	return nil
}

func (n *KafkaNotifier) Close() error {
	if err := n.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
