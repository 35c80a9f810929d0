package repository

import (
	"cinema-checkout/pkg/database"
	"cinema-checkout/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Repository struct {
	Session        SessionRepository
	Catalog        CatalogRepository
	Voucher        VoucherRepository
	BookingSession BookingSessionRepository
	PaymentOrder   PaymentOrderRepository
	SeatAllocation SeatAllocationRepository
	Reservation    ReservationStore
}

// NewRepository wires the Postgres repositories. With a Redis client the
// catalog prices are cached and, when configured, seat holds live in Redis.
func NewRepository(db database.PgxIface, rdb *redis.Client, cfg utils.BookingConfig, log *zap.Logger) *Repository {
	catalog := NewCatalogRepository(db, log)
	var reservation ReservationStore

	if rdb != nil {
		catalog = NewCachedCatalog(catalog, rdb, cfg.CatalogCacheTTL, log)
	}

	if cfg.HoldStore == utils.HoldStoreRedis && rdb != nil {
		reservation = NewRedisReservationStore(rdb)
	} else {
		reservation = NewMemoryReservationStore()
	}

	return &Repository{
		Session:        NewSessionRepository(db, log),
		Catalog:        catalog,
		Voucher:        NewVoucherRepository(db, log),
		BookingSession: NewBookingSessionRepository(db, log),
		PaymentOrder:   NewPaymentOrderRepository(db, log),
		SeatAllocation: NewSeatAllocationRepository(db, log),
		Reservation:    reservation,
	}
}
