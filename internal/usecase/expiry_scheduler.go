package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper expires booking sessions that are past their deadline.
type Sweeper interface {
	ExpireDue(ctx context.Context) (int, error)
}

// ExpiryScheduler runs the sweeper on a fixed interval until stopped.
type ExpiryScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      *zap.Logger
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewExpiryScheduler(sweeper Sweeper, interval time.Duration, log *zap.Logger) *ExpiryScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryScheduler{
		sweeper:  sweeper,
		interval: interval,
		log:      log.With(zap.String("job", "expiry_sweeper")),
		done:     make(chan struct{}),
	}
}

// Start sweeps once immediately and then every interval.
func (es *ExpiryScheduler) Start(ctx context.Context) {
	es.wg.Add(1)
	go es.run(ctx)
	es.log.Info("Expiry sweeper started", zap.Duration("interval", es.interval))
}

// Stop blocks until the in-flight sweep finishes.
func (es *ExpiryScheduler) Stop() {
	es.once.Do(func() { close(es.done) })
	es.wg.Wait()
	es.log.Info("Expiry sweeper stopped")
}

func (es *ExpiryScheduler) run(ctx context.Context) {
	defer es.wg.Done()

	ticker := time.NewTicker(es.interval)
	defer ticker.Stop()

	es.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			es.sweep(ctx)
		case <-es.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (es *ExpiryScheduler) sweep(ctx context.Context) {
	expired, err := es.sweeper.ExpireDue(ctx)
	if err != nil {
		es.log.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		es.log.Info("Expired booking sessions", zap.Int("count", expired))
	}
}
