package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const seatHoldKeyPrefix = "seat_hold:"

// A committed seat is stored without a TTL (PTTL -1); hold and release leave it alone.
var holdScript = redis.NewScript(`
-- KEYS[1] = seat hold key
-- ARGV[1] = session id
-- ARGV[2] = ttl in milliseconds
local owner = redis.call("GET", KEYS[1])
if owner and owner ~= ARGV[1] then
    return 0
end
if owner and redis.call("PTTL", KEYS[1]) == -1 then
    return 1
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = seat hold key
-- ARGV[1] = session id
if redis.call("GET", KEYS[1]) == ARGV[1] and redis.call("PTTL", KEYS[1]) ~= -1 then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

var commitScript = redis.NewScript(`
-- KEYS[1] = seat hold key
-- ARGV[1] = session id
local owner = redis.call("GET", KEYS[1])
if owner and owner ~= ARGV[1] then
    return 0
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

// RedisReservationStore implements ReservationStore with Lua scripts so every
// check-and-set runs atomically on the Redis server, shared by all instances.
type RedisReservationStore struct {
	client *redis.Client
}

func NewRedisReservationStore(client *redis.Client) *RedisReservationStore {
	return &RedisReservationStore{client: client}
}

func holdKey(seatKey string) string {
	return seatHoldKeyPrefix + seatKey
}

func (r *RedisReservationStore) Hold(ctx context.Context, seatKey string, sessionID uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("hold seat %s: ttl must be positive", seatKey)
	}

	ok, err := holdScript.Run(ctx, r.client, []string{holdKey(seatKey)}, sessionID.String(), ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("hold seat %s: %w", seatKey, err)
	}
	if ok == 0 {
		return ErrSeatConflict
	}
	return nil
}

func (r *RedisReservationStore) Release(ctx context.Context, seatKey string, sessionID uuid.UUID) error {
	if err := releaseScript.Run(ctx, r.client, []string{holdKey(seatKey)}, sessionID.String()).Err(); err != nil {
		return fmt.Errorf("release seat %s: %w", seatKey, err)
	}
	return nil
}

func (r *RedisReservationStore) IsHeldByOther(ctx context.Context, seatKey string, sessionID uuid.UUID) (bool, error) {
	owner, err := r.client.Get(ctx, holdKey(seatKey)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read seat hold %s: %w", seatKey, err)
	}
	return owner != sessionID.String(), nil
}

func (r *RedisReservationStore) Commit(ctx context.Context, seatKey string, sessionID uuid.UUID) error {
	ok, err := commitScript.Run(ctx, r.client, []string{holdKey(seatKey)}, sessionID.String()).Int()
	if err != nil {
		return fmt.Errorf("commit seat %s: %w", seatKey, err)
	}
	if ok == 0 {
		return ErrSeatConflict
	}
	return nil
}
