package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AsyncNotifier sends in the background so a slow broker never blocks the
// payment path. Failures are logged and dropped.
type AsyncNotifier struct {
	next    Notifier
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewAsyncNotifier(next Notifier, timeout time.Duration, log *zap.Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncNotifier{
		next:    next,
		timeout: timeout,
		log:     log.With(zap.String("notifier", "async")),
	}
}

// SendTicket returns immediately; the caller's ctx is not used so the send
// survives the request that triggered it.
func (a *AsyncNotifier) SendTicket(_ context.Context, event TicketIssued) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.next.SendTicket(ctx, event); err != nil {
			a.log.Warn("Ticket notification dropped",
				zap.Error(err),
				zap.String("session_id", event.SessionID.String()),
				zap.String("order_id", event.OrderID),
			)
		}
	}()
	return nil
}

// Close waits for in-flight sends and closes the underlying notifier.
func (a *AsyncNotifier) Close() error {
	a.wg.Wait()
	return a.next.Close()
}
