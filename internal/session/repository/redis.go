package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedFouadgebil/socialMedia/internal/session/domain"
)

const redisKeyPrefix = "revoked_session:"

// RedisRepository stores each revocation as a key holding its expiry, with a matching key TTL
// so Redis drops entries on its own. IsRevoked still compares the stored expiry with now.
type RedisRepository struct {
	client redis.Cmdable
}

// NewRedisRepository returns a revocation repository over client.
func NewRedisRepository(client redis.Cmdable) *RedisRepository {
	return &RedisRepository{client: client}
}

// NewRedisClient parses url (redis://[:password@]host:port/db) and returns a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// Insert records rs with SET NX so an existing entry is kept. Entries already expired are skipped.
func (r *RedisRepository) Insert(ctx context.Context, rs *domain.RevokedSession) error {
	ttl := time.Until(rs.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.SetNX(ctx, redisKeyPrefix+rs.SessionID, rs.ExpiresAt.UTC().Format(time.RFC3339Nano), ttl).Err()
}

// IsRevoked reports whether sessionID has a stored expiry after now.
func (r *RedisRepository) IsRevoked(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	v, err := r.client.Get(ctx, redisKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return false, err
	}
	return expiresAt.After(now), nil
}

// DeleteExpired is a no-op: key TTLs already evict expired entries.
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
