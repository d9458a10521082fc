package cart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each cart as a JSON string under {prefix}:cart:{user_id}.
// Saving refreshes the TTL, so idle carts expire.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore. An empty prefix defaults to
// "canteen" and a non-positive ttl to 24 hours.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "canteen"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":cart:" + userID
}

func (s *RedisStore) Load(ctx context.Context, userID string) (*Cart, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load cart of %s", userID)
	}

	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, errors.Wrapf(err, "decode cart of %s", userID)
	}
	return New(lines...), nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, c *Cart) error {
	if c.Len() == 0 {
		return s.Delete(ctx, userID)
	}
	data, err := json.Marshal(c.Lines())
	if err != nil {
		return errors.Wrapf(err, "encode cart of %s", userID)
	}
	if err := s.client.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save cart of %s", userID)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return errors.Wrapf(err, "delete cart of %s", userID)
	}
	return nil
}
