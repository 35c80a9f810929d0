package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHoldCleanupInterval = 30 * time.Second

type memoryHold struct {
	sessionID uuid.UUID
	heldUntil time.Time
	permanent bool
}

// MemoryReservationStore implements ReservationStore in process memory.
// It is correct for a single instance only.
type MemoryReservationStore struct {
	mu    sync.Mutex
	holds map[string]*memoryHold
	now   func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	wg              sync.WaitGroup
}

type MemoryStoreOption func(*MemoryReservationStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryReservationStore) {
		s.now = now
	}
}

func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryReservationStore) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

func NewMemoryReservationStore(opts ...MemoryStoreOption) *MemoryReservationStore {
	s := &MemoryReservationStore{
		holds:           make(map[string]*memoryHold),
		now:             time.Now,
		cleanupInterval: defaultHoldCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryReservationStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purgeExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryReservationStore) purgeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, h := range s.holds {
		if !s.live(h, now) {
			delete(s.holds, key)
		}
	}
}

func (s *MemoryReservationStore) live(h *memoryHold, now time.Time) bool {
	return h.permanent || now.Before(h.heldUntil)
}

func (s *MemoryReservationStore) Hold(_ context.Context, seatKey string, sessionID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if h, ok := s.holds[seatKey]; ok && s.live(h, now) {
		if h.sessionID != sessionID {
			return ErrSeatConflict
		}
		if !h.permanent {
			h.heldUntil = now.Add(ttl)
		}
		return nil
	}

	s.holds[seatKey] = &memoryHold{sessionID: sessionID, heldUntil: now.Add(ttl)}
	return nil
}

func (s *MemoryReservationStore) Release(_ context.Context, seatKey string, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.holds[seatKey]; ok && h.sessionID == sessionID && !h.permanent {
		delete(s.holds, seatKey)
	}
	return nil
}

func (s *MemoryReservationStore) IsHeldByOther(_ context.Context, seatKey string, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[seatKey]
	if !ok || !s.live(h, s.now()) {
		return false, nil
	}
	return h.sessionID != sessionID, nil
}

func (s *MemoryReservationStore) Commit(_ context.Context, seatKey string, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.holds[seatKey]; ok && s.live(h, s.now()) && h.sessionID != sessionID {
		return ErrSeatConflict
	}
	s.holds[seatKey] = &memoryHold{sessionID: sessionID, permanent: true}
	return nil
}

// Close stops the background cleanup and waits for it to finish
func (s *MemoryReservationStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}
