package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsageStore keeps per-user daily quiz counters in Redis:
// INCR usage:quizzes:{userID}:{YYYY-MM-DD}, expired after retention so
// yesterday's keys clean themselves up.
type UsageStore struct {
	client    *redis.Client
	retention time.Duration
	clock     func() time.Time
}

func NewUsageStore(client *redis.Client) *UsageStore {
	return &UsageStore{client: client, retention: 48 * time.Hour, clock: time.Now}
}

func (s *UsageStore) QuizzesToday(ctx context.Context, userID string) (int, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *UsageStore) AddQuiz(ctx context.Context, userID string) error {
	key := s.key(userID)
	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *UsageStore) key(userID string) string {
	return "usage:quizzes:" + userID + ":" + s.clock().UTC().Format("2006-01-02")
}
