package memory

import (
	"context"
	"sync"
	"time"
)

// UsageStore counts quizzes per user per UTC day in memory.
type UsageStore struct {
	clock func() time.Time
	mu    sync.Mutex
	taken map[string]int
}

func NewUsageStore() *UsageStore {
	return NewUsageStoreWithClock(time.Now)
}

// NewUsageStoreWithClock allows deterministic days in tests.
func NewUsageStoreWithClock(now func() time.Time) *UsageStore {
	return &UsageStore{clock: now, taken: make(map[string]int)}
}

func (s *UsageStore) QuizzesToday(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken[s.key(userID)], nil
}

func (s *UsageStore) AddQuiz(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken[s.key(userID)]++
	return nil
}

func (s *UsageStore) key(userID string) string {
	return userID + ":" + s.clock().UTC().Format("2006-01-02")
}
