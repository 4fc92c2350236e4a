package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store keeps failures in a Redis sorted set per key, scored by time in
// milliseconds. Keys expire one window after the last failure.
type Store struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client) *Store {
	return &Store{client: client, prefix: "ratelimit:"}
}

func (s *Store) Record(ctx context.Context, key string, at time.Time, window time.Duration) error {
	k := s.prefix + key
	score := float64(at.UnixMilli())
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: score, Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+strconv.FormatInt(at.Add(-window).UnixMilli(), 10))
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (s *Store) Window(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	k := s.prefix + key
	lower := strconv.FormatInt(since.UnixMilli(), 10)
	pipe := s.client.Pipeline()
	count := pipe.ZCount(ctx, k, lower, "+inf")
	first := pipe.ZRangeByScoreWithScores(ctx, k, &redis.ZRangeBy{Min: lower, Max: "+inf", Offset: 0, Count: 1})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("read login failures: %w", err)
	}
	n := int(count.Val())
	if n == 0 || len(first.Val()) == 0 {
		return 0, time.Time{}, nil
	}
	return n, time.UnixMilli(int64(first.Val()[0].Score)), nil
}

func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}
