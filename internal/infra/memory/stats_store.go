package memory

import (
	"context"
	"sync"
	"time"

	"nikkei-quiz-service/internal/domain"
)

// DefaultHistoryCap bounds the ledger when no cap is configured.
const DefaultHistoryCap = 50

// StatsStore is an in-memory implementation of app.StatsRepository.
type StatsStore struct {
	historyCap int
	now        func() time.Time

	mu      sync.Mutex
	buckets map[domain.Identity]*bucket
}

type bucket struct {
	mu      sync.Mutex
	stats   domain.Stats
	history []domain.Attempt // oldest first
}

func NewStatsStore(historyCap int) *StatsStore {
	return NewStatsStoreWithClock(historyCap, time.Now)
}

// NewStatsStoreWithClock allows deterministic timestamps in tests.
func NewStatsStoreWithClock(historyCap int, now func() time.Time) *StatsStore {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &StatsStore{
		historyCap: historyCap,
		now:        now,
		buckets:    make(map[domain.Identity]*bucket),
	}
}

// bucketFor returns the identity's bucket, creating it exactly once.
func (s *StatsStore) bucketFor(identity domain.Identity) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[identity]; ok {
		return b
	}
	b := &bucket{stats: domain.NewStats(s.now())}
	s.buckets[identity] = b
	return b
}

func (s *StatsStore) GetOrCreate(_ context.Context, identity domain.Identity) (domain.Stats, error) {
	b := s.bucketFor(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Clone(), nil
}

func (s *StatsStore) RecordAttempt(_ context.Context, identity domain.Identity, attempt domain.Attempt) (domain.Stats, error) {
	b := s.bucketFor(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Record(attempt.Category, attempt.IsCorrect, s.now())
	b.history = AppendCapped(b.history, attempt, s.historyCap)
	return b.stats.Clone(), nil
}

func (s *StatsStore) Reset(_ context.Context, identity domain.Identity) error {
	b := s.bucketFor(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Reset(s.now())
	b.history = nil
	return nil
}

func (s *StatsStore) History(_ context.Context, identity domain.Identity, limit int) ([]domain.Attempt, error) {
	b := s.bucketFor(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	return NewestFirst(b.history, limit), nil
}

// AppendCapped appends to an oldest-first ledger and keeps only the newest limit entries.
func AppendCapped(history []domain.Attempt, attempt domain.Attempt, limit int) []domain.Attempt {
	history = append(history, attempt)
	if limit > 0 && len(history) > limit {
		trimmed := make([]domain.Attempt, limit)
		copy(trimmed, history[len(history)-limit:])
		history = trimmed
	}
	return history
}

// NewestFirst returns a reversed copy of an oldest-first ledger, at most limit entries.
func NewestFirst(history []domain.Attempt, limit int) []domain.Attempt {
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Attempt, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out
}
