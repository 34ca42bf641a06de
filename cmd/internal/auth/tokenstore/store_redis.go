package tokenstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the slot under "<prefix>authTokens" with no expiry.
// The client is owned by the caller; Close does not close it.
type RedisStore struct {
	rdb   redis.Cmdable
	key   string
	codec Codec
}

// NewRedisStore creates a Redis-backed token store.
func NewRedisStore(rdb redis.Cmdable, prefix string, codec Codec) *RedisStore {
	return &RedisStore{rdb: rdb, key: prefix + SlotName, codec: codec}
}

// Key returns the redis key used for the slot.
func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) Load(ctx context.Context) (Pair, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Pair{}, false, nil
	}
	if err != nil {
		return Pair{}, false, err
	}

	p, err := s.codec.decode(raw)
	if err != nil {
		return Pair{}, false, err
	}
	return p, true, nil
}

func (s *RedisStore) Save(ctx context.Context, p Pair) error {
	b, err := s.codec.encode(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *RedisStore) Close() error { return nil }
