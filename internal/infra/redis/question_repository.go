package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"nikkei-quiz-service/internal/domain"
	"nikkei-quiz-service/internal/infra/memory"
)

// QuestionRepository caches the pool in Redis (hash per pool) and falls back to a loader on cache miss.
// Questions are stored as: HSET quiz:pool {questionID} {json}
type QuestionRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	intn   func(int) int
}

func NewQuestionRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		intn:   rand.Intn,
	}
}

const poolKey = "quiz:pool"

func (r *QuestionRepository) All(ctx context.Context) ([]domain.Question, error) {
	if pool, ok := r.cached(ctx); ok {
		return pool, nil
	}

	result, err, _ := r.sf.Do(poolKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := r.cached(ctx); ok {
			return pool, nil
		}

		pool, err := r.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		ttl := memory.TTLWithJitter(r.ttl)
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, poolKey)
		for _, q := range pool {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, poolKey, q.ID, raw)
		}
		if ttl > 0 && len(pool) > 0 {
			pipe.Expire(ctx, poolKey, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[POOL] redis cache fill failed: %v", err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) Sample(ctx context.Context) (domain.Question, error) {
	pool, err := r.All(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	return memory.Pick(pool, r.intn)
}

func (r *QuestionRepository) cached(ctx context.Context) ([]domain.Question, bool) {
	entries, err := r.client.HGetAll(ctx, poolKey).Result()
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	pool := make([]domain.Question, 0, len(entries))
	for id, raw := range entries {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			log.Printf("[POOL] dropping unreadable cached question %s: %v", id, err)
			return nil, false
		}
		pool = append(pool, q)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool, true
}
