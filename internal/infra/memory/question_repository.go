package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"nikkei-quiz-service/internal/domain"
)

// QuestionLoader fetches the question pool from a backing store (JSON file, Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionRepository caches the pool with TTL to avoid re-reading the backing store.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	intn   func(int) int

	mu        sync.RWMutex
	pool      []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		intn:   rand.Intn,
	}
}

const poolKey = "pool"

// All returns the cached pool, reloading it once expired.
func (r *QuestionRepository) All(ctx context.Context) ([]domain.Question, error) {
	now := r.clock()

	r.mu.RLock()
	if r.pool != nil && r.expiresAt.After(now) {
		pool := r.pool
		r.mu.RUnlock()
		return pool, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(poolKey, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.pool != nil && r.expiresAt.After(now) {
			pool := r.pool
			r.mu.RUnlock()
			return pool, nil
		}
		r.mu.RUnlock()

		pool, err := r.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.pool = pool
		r.expiresAt = now.Add(TTLWithJitter(r.ttl))
		r.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Sample draws one question uniformly at random.
func (r *QuestionRepository) Sample(ctx context.Context) (domain.Question, error) {
	pool, err := r.All(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	return Pick(pool, r.intn)
}

// Pick returns a uniformly chosen question, or ErrEmptyPool.
func Pick(pool []domain.Question, intn func(int) int) (domain.Question, error) {
	if len(pool) == 0 {
		return domain.Question{}, domain.ErrEmptyPool
	}
	return pool[intn(len(pool))], nil
}

// TTLWithJitter adds up to 10% jitter to spread expirations.
func TTLWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(rand.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by a fixed slice (tests, built-in sample pool).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}

// FallbackLoader serves a built-in pool whenever the primary source is unreadable.
type FallbackLoader struct {
	primary  QuestionLoader
	fallback []domain.Question
}

func NewFallbackLoader(primary QuestionLoader, fallback []domain.Question) *FallbackLoader {
	return &FallbackLoader{primary: primary, fallback: fallback}
}

func (l *FallbackLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	pool, err := l.primary.LoadQuestions(ctx)
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	log.Printf("[POOL] %v; serving %d built-in questions", err, len(l.fallback))
	out := make([]domain.Question, len(l.fallback))
	copy(out, l.fallback)
	return out, nil
}
