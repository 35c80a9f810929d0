// Package notification publishes "send ticket" events once a booking is paid.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cinema-checkout/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const EventTicketIssued = "ticket.issued"

// TicketIssued is the payload consumed by the ticket mailer.
type TicketIssued struct {
	Type       string      `json:"type"`
	SessionID  uuid.UUID   `json:"session_id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	ShowtimeID uuid.UUID   `json:"showtime_id"`
	SeatIDs    []uuid.UUID `json:"seat_ids"`
	OrderID    string      `json:"order_id"`
	Total      int64       `json:"total"`
	PaidAt     time.Time   `json:"paid_at"`
}

func (e TicketIssued) encode() ([]byte, error) {
	if e.Type == "" {
		e.Type = EventTicketIssued
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket event: %w", err)
	}
	return body, nil
}

type Notifier interface {
	SendTicket(ctx context.Context, event TicketIssued) error
	Close() error
}

// LogNotifier only records the event. Used when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.With(zap.String("notifier", "log"))}
}

func (n *LogNotifier) SendTicket(_ context.Context, event TicketIssued) error {
	n.log.Info("Ticket issued",
		zap.String("session_id", event.SessionID.String()),
		zap.String("order_id", event.OrderID),
		zap.Int("seats", len(event.SeatIDs)),
		zap.Int64("total", event.Total),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// New builds the notifier selected by cfg.Notifier.Driver, wrapped so sends
// never block the caller.
func New(cfg *utils.Config, log *zap.Logger) (Notifier, error) {
	var (
		next Notifier
		err  error
	)

	switch cfg.Notifier.Driver {
	case utils.NotifierRabbitMQ:
		next, err = NewRabbitNotifier(cfg.RabbitMQ, log)
	case utils.NotifierKafka:
		next, err = NewKafkaNotifier(cfg.Kafka, cfg.Notifier.Timeout, log)
	case utils.NotifierLog, "":
		next = NewLogNotifier(log)
	default:
		return nil, fmt.Errorf("unknown notifier driver %q", cfg.Notifier.Driver)
	}
	if err != nil {
		return nil, err
	}

	return NewAsyncNotifier(next, cfg.Notifier.Timeout, log), nil
}
