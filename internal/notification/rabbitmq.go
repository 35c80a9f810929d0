package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinema-checkout/pkg/utils"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitNotifier publishes persistent JSON messages to a durable queue on the
// default exchange.
type RabbitNotifier struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
	log   *zap.Logger
}

func NewRabbitNotifier(cfg utils.RabbitMQConfig, log *zap.Logger) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare %s: %w", cfg.Queue, err)
	}

	n := newRabbitNotifier(ch, cfg.Queue, log)
	n.conn = conn
	return n, nil
}

func newRabbitNotifier(ch amqpChannel, queue string, log *zap.Logger) *RabbitNotifier {
	return &RabbitNotifier{
		ch:    ch,
		queue: queue,
		log:   log.With(zap.String("notifier", "rabbitmq")),
	}
}

func (n *RabbitNotifier) SendTicket(ctx context.Context, event TicketIssued) error {
	body, err := event.encode()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.SessionID.String(),
		Type:         EventTicketIssued,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ch.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		n.log.Error("Failed to publish ticket event",
			zap.Error(err),
			zap.String("session_id", event.SessionID.String()),
		)
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	return nil
}

func (n *RabbitNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ch.Close(); err != nil {
		n.log.Warn("Failed to close channel", zap.Error(err))
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
