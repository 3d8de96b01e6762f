package goldstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "arena:gold:"

// RedisStore keeps gold balances in Redis under arena:gold:<playerID>.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client. The caller owns the client's
// lifecycle.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// DialRedis connects to addr and verifies the connection with a ping.
func DialRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("goldstore: ping %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, playerID string) (int64, bool, error) {
	val, err := s.rdb.Get(ctx, keyPrefix+playerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("goldstore: get %s: %w", playerID, err)
	}
	gold, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("goldstore: corrupt value for %s: %w", playerID, err)
	}
	return gold, true, nil
}

func (s *RedisStore) Set(ctx context.Context, playerID string, gold int64) error {
	if err := s.rdb.Set(ctx, keyPrefix+playerID, strconv.FormatInt(gold, 10), 0).Err(); err != nil {
		return fmt.Errorf("goldstore: set %s: %w", playerID, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
