package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) database.PgxIface {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(connStr, "../../../migrations"))

	db, err := database.Open(ctx, connStr, 5)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

type catalogFixture struct {
	showtimeID uuid.UUID
	vipSeatID  uuid.UUID
	comboID    uuid.UUID
}

func seedCatalog(t *testing.T, db database.PgxIface) catalogFixture {
	ctx := context.Background()
	hallID := uuid.New()
	f := catalogFixture{showtimeID: uuid.New(), vipSeatID: uuid.New(), comboID: uuid.New()}

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO seat_types (code, surcharge) VALUES ('vip', 30000)`, nil},
		{`INSERT INTO showtimes (id, hall_id, movie_id, starts_at, base_price) VALUES ($1, $2, $3, NOW() + INTERVAL '1 day', 60000)`,
			[]any{f.showtimeID, hallID, uuid.New()}},
		{`INSERT INTO seats (id, hall_id, seat_number, seat_type) VALUES ($1, $2, 'A1', 'vip')`,
			[]any{f.vipSeatID, hallID}},
		{`INSERT INTO combos (id, name, price) VALUES ($1, 'Popcorn', 50000)`, []any{f.comboID}},
		{`INSERT INTO vouchers (code, discount_type, discount_value, valid_from, valid_to, usage_limit)
		  VALUES ('SALE20', 'percent', 20, NOW() - INTERVAL '1 day', NOW() + INTERVAL '1 day', 100)`, nil},
	}
	for _, s := range stmts {
		_, err := db.Exec(ctx, s.sql, s.args...)
		require.NoError(t, err)
	}

	return f
}

func newTestBookingSession(showtimeID uuid.UUID) *entity.BookingSession {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &entity.BookingSession{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		ShowtimeID: showtimeID,
		State:      entity.SessionStateSeatSelection,
		ExpiresAt:  now.Add(10 * time.Minute),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPostgres_CatalogPricing(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	catalog := NewCatalogRepository(db, zap.NewNop())
	ctx := context.Background()

	price, err := catalog.GetSeatPrice(ctx, f.showtimeID, f.vipSeatID)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), price)

	seat, err := catalog.GetSeat(ctx, f.showtimeID, f.vipSeatID)
	require.NoError(t, err)
	assert.Equal(t, "A1", seat.SeatNumber)
	assert.Equal(t, int64(30000), seat.Surcharge)

	combo, err := catalog.GetComboPrice(ctx, f.comboID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), combo)

	_, err = catalog.GetSeatPrice(ctx, f.showtimeID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = catalog.GetShowtime(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_BookingSessionRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	repo := NewBookingSessionRepository(db, zap.NewNop())
	ctx := context.Background()

	session := newTestBookingSession(f.showtimeID)
	session.SeatHolds = []entity.SeatHold{{SeatID: f.vipSeatID, SessionID: session.ID, HeldUntil: session.ExpiresAt}}
	require.NoError(t, repo.Create(ctx, session))

	found, err := repo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entity.SessionStateSeatSelection, found.State)
	assert.Len(t, found.SeatHolds, 1)
	assert.Empty(t, found.Combos)
	assert.Nil(t, found.Pricing)

	voucher := "SALE20"
	found.State = entity.SessionStatePricingPreviewed
	found.Combos = []entity.ComboLineItem{{ServiceID: f.comboID, Quantity: 2, UnitPriceSnapshot: 50000}}
	found.Pricing = &entity.PricingSnapshot{
		SeatsTotal: 90000, CombosTotal: 100000, Discount: 38000, Total: 152000,
		AppliedVoucherCode: &voucher, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Update(ctx, found))
	assert.Equal(t, int64(1), found.Version)

	reloaded, err := repo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Pricing)
	assert.Equal(t, int64(152000), reloaded.Pricing.Total)
	assert.Equal(t, "SALE20", *reloaded.Pricing.AppliedVoucherCode)
	assert.Equal(t, 2, reloaded.ComboQuantity())

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgres_BookingSessionUpdateIsCompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	repo := NewBookingSessionRepository(db, zap.NewNop())
	ctx := context.Background()

	session := newTestBookingSession(f.showtimeID)
	require.NoError(t, repo.Create(ctx, session))

	const writers = 10
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		landed int
		stale  int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt := *session
			attempt.State = entity.SessionStateCancelled
			err := repo.Update(ctx, &attempt)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				landed++
			} else if assert.ErrorIs(t, err, ErrStaleWrite) {
				stale++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, landed)
	assert.Equal(t, writers-1, stale)
}

func TestPostgres_FindExpiredAndOrderLookup(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	sessions := NewBookingSessionRepository(db, zap.NewNop())
	orders := NewPaymentOrderRepository(db, zap.NewNop())
	ctx := context.Background()

	expired := newTestBookingSession(f.showtimeID)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, sessions.Create(ctx, expired))

	paid := newTestBookingSession(f.showtimeID)
	paid.State = entity.SessionStatePaid
	paid.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, sessions.Create(ctx, paid))

	live := newTestBookingSession(f.showtimeID)
	require.NoError(t, sessions.Create(ctx, live))

	due, err := sessions.FindExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID, due[0].ID)

	waitingOrder := "1735689600000001"
	waiting := newTestBookingSession(f.showtimeID)
	waiting.State = entity.SessionStateAwaitingPayment
	waiting.OrderID = &waitingOrder
	waiting.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, sessions.Create(ctx, waiting))

	due, err = sessions.FindExpired(ctx, time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID, due[0].ID)

	due, err = sessions.FindExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, waiting.ID, due[1].ID)

	orderID := "1735689600000123"
	provider := "payos"
	live.State = entity.SessionStateAwaitingPayment
	live.OrderID = &orderID
	live.Provider = &provider
	require.NoError(t, sessions.Update(ctx, live))

	now := time.Now()
	require.NoError(t, orders.Create(ctx, &entity.PaymentOrder{
		OrderID: orderID, SessionID: live.ID, Provider: provider, Amount: 152000,
		Status: entity.PaymentStatusPending, CreatedAt: now, UpdatedAt: now,
	}))

	bySession, err := sessions.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, bySession)
	assert.Equal(t, live.ID, bySession.ID)

	require.NoError(t, orders.UpdateStatus(ctx, orderID, entity.PaymentStatusPaid))
	require.NoError(t, orders.UpdateStatus(ctx, orderID, entity.PaymentStatusExpired))

	order, err := orders.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPaid, order.Status)
}

func TestPostgres_SeatAllocationsAndVoucherUsage(t *testing.T) {
	db := setupTestDB(t)
	f := seedCatalog(t, db)
	sessions := NewBookingSessionRepository(db, zap.NewNop())
	allocations := NewSeatAllocationRepository(db, zap.NewNop())
	vouchers := NewVoucherRepository(db, zap.NewNop())
	ctx := context.Background()

	winner := newTestBookingSession(f.showtimeID)
	loser := newTestBookingSession(f.showtimeID)
	require.NoError(t, sessions.Create(ctx, winner))
	require.NoError(t, sessions.Create(ctx, loser))

	alloc := entity.SeatAllocation{ShowtimeID: f.showtimeID, SeatID: f.vipSeatID, SessionID: winner.ID, CreatedAt: time.Now()}
	require.NoError(t, allocations.CreateBatch(ctx, []entity.SeatAllocation{alloc}))
	require.NoError(t, allocations.CreateBatch(ctx, []entity.SeatAllocation{alloc}))

	alloc.SessionID = loser.ID
	assert.ErrorIs(t, allocations.CreateBatch(ctx, []entity.SeatAllocation{alloc}), ErrSeatConflict)

	sold, err := allocations.IsAllocated(ctx, f.showtimeID, f.vipSeatID)
	require.NoError(t, err)
	assert.True(t, sold)

	// a conflict late in the batch rolls back the seats before it
	freeSeat := uuid.New()
	batch := []entity.SeatAllocation{
		{ShowtimeID: f.showtimeID, SeatID: freeSeat, SessionID: loser.ID, CreatedAt: time.Now()},
		alloc,
	}
	assert.ErrorIs(t, allocations.CreateBatch(ctx, batch), ErrSeatConflict)

	sold, err = allocations.IsAllocated(ctx, f.showtimeID, freeSeat)
	require.NoError(t, err)
	assert.False(t, sold)

	var loserRows int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM seat_allocations WHERE session_id = $1`, loser.ID).Scan(&loserRows))
	assert.Zero(t, loserRows)

	require.NoError(t, vouchers.IncrementUsage(ctx, "SALE20"))
	v, err := vouchers.GetVoucher(ctx, "SALE20")
	require.NoError(t, err)
	assert.Equal(t, 1, v.UsedCount)
	assert.Equal(t, entity.DiscountTypePercent, v.DiscountType)

	assert.ErrorIs(t, vouchers.IncrementUsage(ctx, "NOPE"), ErrNotFound)
	none, err := vouchers.GetVoucher(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, none)
}
