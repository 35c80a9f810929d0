package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/dto/request"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingService_StartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a session in seat selection", func(t *testing.T) {
		f := newFixture(t)
		resp, err := f.svc.Booking.StartSession(ctx, f.customer, &request.StartSessionRequest{ShowtimeID: f.showtime.String()})
		require.NoError(t, err)

		assert.Equal(t, entity.SessionStateSeatSelection, resp.State)
		assert.Equal(t, f.clock.Now().Add(f.cfg.SessionTTL), resp.ExpiresAt)
		assert.Empty(t, resp.Seats)
	})

	t.Run("unknown showtime", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Booking.StartSession(ctx, f.customer, &request.StartSessionRequest{ShowtimeID: uuid.NewString()})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("showtime already started", func(t *testing.T) {
		f := newFixture(t)
		f.clock.Advance(4 * time.Hour)
		_, err := f.svc.Booking.StartSession(ctx, f.customer, &request.StartSessionRequest{ShowtimeID: f.showtime.String()})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("invalid id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Booking.StartSession(ctx, f.customer, &request.StartSessionRequest{ShowtimeID: "not-a-uuid"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestBookingService_GetSessionHidesOtherCustomers(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	_, err := f.svc.Booking.GetSession(context.Background(), uuid.New(), id)
	assert.ErrorIs(t, err, ErrNotFound)

	resp, err := f.svc.Booking.GetSession(context.Background(), f.customer, id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), resp.ID)
}

func TestBookingService_HoldSeats(t *testing.T) {
	ctx := context.Background()

	t.Run("holds and is idempotent for own seats", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0], f.seats[1])
		f.hold(t, id, f.seats[1])

		stored := f.sessions.get(id)
		assert.Len(t, stored.SeatHolds, 2)
		assert.Equal(t, entity.SessionStateSeatSelection, stored.State)
	})

	t.Run("held until covers the hold grace", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		resp, err := f.svc.Booking.HoldSeats(ctx, f.customer, id, &request.HoldSeatsRequest{SeatIDs: []string{f.seats[0].String()}})
		require.NoError(t, err)

		want := resp.ExpiresAt.Add(f.cfg.HoldGrace)
		require.Len(t, resp.Seats, 1)
		assert.True(t, want.Equal(resp.Seats[0].HeldUntil))

		f.sessions.bump(id, func(stored *entity.BookingSession) {
			stored.SeatHolds[0].HeldUntil = stored.ExpiresAt
		})
		f.clock.Advance(time.Minute)
		f.hold(t, id, f.seats[0], f.seats[1])

		stored := f.sessions.get(id)
		require.Len(t, stored.SeatHolds, 2)
		for _, h := range stored.SeatHolds {
			assert.True(t, want.Equal(h.HeldUntil), "seat %s held until %s", h.SeatID, h.HeldUntil)
		}
	})

	t.Run("seat held by another session conflicts", func(t *testing.T) {
		f := newFixture(t)
		a, b := f.start(t), f.start(t)
		f.hold(t, a, f.seats[0])

		_, err := f.svc.Booking.HoldSeats(ctx, f.customer, b, &request.HoldSeatsRequest{SeatIDs: []string{f.seats[0].String()}})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Empty(t, f.sessions.get(b).SeatHolds)
	})

	t.Run("all or nothing", func(t *testing.T) {
		f := newFixture(t)
		a, b, c := f.start(t), f.start(t), f.start(t)
		f.hold(t, b, f.seats[1])

		_, err := f.svc.Booking.HoldSeats(ctx, f.customer, a, &request.HoldSeatsRequest{
			SeatIDs: []string{f.seats[0].String(), f.seats[1].String()},
		})
		require.ErrorIs(t, err, ErrConflict)

		// seats[0] was rolled back and is free for a third session.
		f.hold(t, c, f.seats[0])
	})

	t.Run("sold seat conflicts", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.allocations.sold[repository.SeatKey(f.showtime, f.seats[2])] = uuid.New()

		_, err := f.svc.Booking.HoldSeats(ctx, f.customer, id, &request.HoldSeatsRequest{SeatIDs: []string{f.seats[2].String()}})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("unknown seat", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)

		_, err := f.svc.Booking.HoldSeats(ctx, f.customer, id, &request.HoldSeatsRequest{SeatIDs: []string{uuid.NewString()}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("seat limit per session", func(t *testing.T) {
		f := newFixture(t)
		f.core.cfg.MaxSeatsPerSession = 2
		id := f.start(t)
		f.hold(t, id, f.seats[0], f.seats[1])

		_, err := f.svc.Booking.HoldSeats(ctx, f.customer, id, &request.HoldSeatsRequest{SeatIDs: []string{f.seats[2].String()}})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("holding again invalidates the preview", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])
		f.combos(t, id, 1)
		f.preview(t, id, nil)

		f.hold(t, id, f.seats[1])
		stored := f.sessions.get(id)
		assert.Equal(t, entity.SessionStateSeatSelection, stored.State)
		assert.Nil(t, stored.Pricing)
	})

	t.Run("expired session is closed and its seats freed", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])
		f.clock.Advance(f.cfg.SessionTTL)

		_, err := f.svc.Booking.HoldSeats(ctx, f.customer, id, &request.HoldSeatsRequest{SeatIDs: []string{f.seats[1].String()}})
		require.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, entity.SessionStateExpired, f.sessions.get(id).State)

		fresh := f.start(t)
		f.hold(t, fresh, f.seats[0])
	})
}

func TestBookingService_ConcurrentHoldsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	const contenders = 20

	ids := make([]uuid.UUID, contenders)
	for i := range ids {
		ids[i] = f.start(t)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Booking.HoldSeats(context.Background(), f.customer, id, &request.HoldSeatsRequest{
				SeatIDs: []string{f.seats[0].String()},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case KindOf(err) == KindConflict:
				conflicts++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, contenders-1, conflicts)
	assert.Zero(t, f.core.locks.size())
}

func TestBookingService_ReleaseSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, other := f.start(t), f.start(t)
	f.hold(t, id, f.seats[0], f.seats[1])

	resp, err := f.svc.Booking.ReleaseSeat(ctx, f.customer, id, f.seats[0])
	require.NoError(t, err)
	assert.Len(t, resp.Seats, 1)

	// Releasing again is a no-op.
	resp, err = f.svc.Booking.ReleaseSeat(ctx, f.customer, id, f.seats[0])
	require.NoError(t, err)
	assert.Len(t, resp.Seats, 1)

	f.hold(t, other, f.seats[0])
}

func TestBookingService_UpsertCombos(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a held seat", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)

		_, err := f.svc.Booking.UpsertCombos(ctx, f.customer, id, &request.UpsertCombosRequest{
			Items: []request.ComboItemRequest{{ServiceID: f.popcorn.String(), Quantity: 1}},
		})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("merges duplicates and captures prices", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])

		resp, err := f.svc.Booking.UpsertCombos(ctx, f.customer, id, &request.UpsertCombosRequest{
			Items: []request.ComboItemRequest{
				{ServiceID: f.popcorn.String(), Quantity: 1},
				{ServiceID: f.popcorn.String(), Quantity: 2},
			},
		})
		require.NoError(t, err)

		require.Len(t, resp.Combos, 1)
		assert.Equal(t, 3, resp.Combos[0].Quantity)
		assert.Equal(t, popcornPrice, resp.Combos[0].UnitPrice)
		assert.Equal(t, entity.SessionStateCombosSelected, resp.State)
	})

	t.Run("total quantity is limited", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])

		_, err := f.svc.Booking.UpsertCombos(ctx, f.customer, id, &request.UpsertCombosRequest{
			Items: []request.ComboItemRequest{
				{ServiceID: f.popcorn.String(), Quantity: 6},
				{ServiceID: f.popcorn.String(), Quantity: 5},
			},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("empty list clears the cart", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])
		f.combos(t, id, 2)

		resp, err := f.svc.Booking.UpsertCombos(ctx, f.customer, id, &request.UpsertCombosRequest{})
		require.NoError(t, err)
		assert.Empty(t, resp.Combos)
	})

	t.Run("unknown combo", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])

		_, err := f.svc.Booking.UpsertCombos(ctx, f.customer, id, &request.UpsertCombosRequest{
			Items: []request.ComboItemRequest{{ServiceID: uuid.NewString(), Quantity: 1}},
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBookingService_PreviewPricing(t *testing.T) {
	ctx := context.Background()

	t.Run("seat, two popcorns and SALE20", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])
		f.combos(t, id, 2)

		resp, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{VoucherCode: strPtr(" sale20 ")})
		require.NoError(t, err)

		assert.Equal(t, seatPrice, resp.SeatsTotal)
		assert.Equal(t, 2*popcornPrice, resp.CombosTotal)
		assert.Equal(t, int64(160000), resp.Subtotal)
		assert.Equal(t, int64(32000), resp.Discount)
		assert.Equal(t, int64(128000), resp.Total)
		assert.Equal(t, "SALE20", *resp.AppliedVoucherCode)
		assert.Equal(t, f.clock.Now(), resp.CreatedAt)

		stored := f.sessions.get(id)
		assert.Equal(t, entity.SessionStatePricingPreviewed, stored.State)
		assert.Zero(t, f.vouchers.increments)
	})

	t.Run("two seats, two popcorns, then SALE20", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0], f.seats[1])
		f.combos(t, id, 2)

		plain, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{})
		require.NoError(t, err)
		assert.Equal(t, 2*seatPrice+100000, plain.Total)
		assert.Nil(t, plain.AppliedVoucherCode)

		// Preview is re-entrant and recomputes with the voucher.
		discounted, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{VoucherCode: strPtr("SALE20")})
		require.NoError(t, err)
		assert.Equal(t, plain.Subtotal, discounted.Subtotal)
		assert.Equal(t, int64(176000), discounted.Total)
	})

	t.Run("uses the seat type price", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0], f.vipSeat)
		f.combos(t, id, 1)

		resp, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{})
		require.NoError(t, err)
		assert.Equal(t, seatPrice+vipSeatPrice, resp.SeatsTotal)
		assert.Equal(t, seatPrice+vipSeatPrice+popcornPrice, resp.Total)
	})

	t.Run("rejected voucher leaves the session untouched", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])
		f.combos(t, id, 1)
		before := f.sessions.get(id)

		_, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{VoucherCode: strPtr("NOPE")})
		require.ErrorIs(t, err, &Error{Kind: KindVoucherRejected, Reason: ReasonVoucherNotFound})

		after := f.sessions.get(id)
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, entity.SessionStateCombosSelected, after.State)
		assert.Nil(t, after.Pricing)
	})

	t.Run("needs combos selected first", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])

		_, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("concurrent write is reported as stale", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])
		f.combos(t, id, 1)

		var once sync.Once
		f.sessions.beforeUpdate = func(s *entity.BookingSession) {
			once.Do(func() {
				f.sessions.bump(s.ID, func(*entity.BookingSession) {})
			})
		}

		_, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{})
		assert.ErrorIs(t, err, ErrStale)
		assert.Nil(t, f.sessions.get(id).Pricing)
	})

	t.Run("seat taken by another session conflicts", func(t *testing.T) {
		f := newFixture(t)
		id := f.start(t)
		f.hold(t, id, f.seats[0])
		f.combos(t, id, 1)

		// The hold lapsed in the store and another session grabbed the seat.
		key := repository.SeatKey(f.showtime, f.seats[0])
		require.NoError(t, f.store.Release(ctx, key, id))
		require.NoError(t, f.store.Hold(ctx, key, uuid.New(), time.Minute))

		_, err := f.svc.Booking.PreviewPricing(ctx, f.customer, id, &request.PreviewPricingRequest{})
		assert.ErrorIs(t, err, ErrConflict)
	})
}
