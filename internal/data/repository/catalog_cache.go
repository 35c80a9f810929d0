package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	seatPriceKeyPrefix  = "price:seat:"
	comboPriceKeyPrefix = "price:combo:"
)

// cachedCatalog puts a Redis read-through cache in front of price lookups.
// Cache failures fall back to the underlying catalog.
type cachedCatalog struct {
	CatalogRepository
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedCatalog(next CatalogRepository, client *redis.Client, ttl time.Duration, log *zap.Logger) CatalogRepository {
	return &cachedCatalog{
		CatalogRepository: next,
		client:            client,
		ttl:               ttl,
		log:               log.With(zap.String("repository", "catalog_cache")),
	}
}

func (c *cachedCatalog) GetSeatPrice(ctx context.Context, showtimeID, seatID uuid.UUID) (int64, error) {
	key := seatPriceKeyPrefix + SeatKey(showtimeID, seatID)
	return c.readThrough(ctx, key, func() (int64, error) {
		return c.CatalogRepository.GetSeatPrice(ctx, showtimeID, seatID)
	})
}

func (c *cachedCatalog) GetComboPrice(ctx context.Context, serviceID uuid.UUID) (int64, error) {
	key := comboPriceKeyPrefix + serviceID.String()
	return c.readThrough(ctx, key, func() (int64, error) {
		return c.CatalogRepository.GetComboPrice(ctx, serviceID)
	})
}

func (c *cachedCatalog) readThrough(ctx context.Context, key string, load func() (int64, error)) (int64, error) {
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if price, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			return price, nil
		}
		c.log.Warn("Discarding malformed cached price", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("Price cache read failed", zap.Error(err), zap.String("key", key))
	}

	price, err := load()
	if err != nil {
		return 0, err
	}

	if err := c.client.Set(ctx, key, price, c.ttl).Err(); err != nil {
		c.log.Warn("Price cache write failed", zap.Error(err), zap.String("key", key))
	}

	return price, nil
}
