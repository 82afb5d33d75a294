package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"nikkei-quiz-service/internal/domain"
)

// PendingStore keeps one binding per session in a Redis hash:
//
//	HSET quiz:pending:{sessionID} binding {uuid} question {json} bound_at {unix nanos} consumed 0|1
//
// Bindings expire after ttl so abandoned sessions do not accumulate.
type PendingStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewPendingStore(client *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{client: client, ttl: ttl, now: time.Now}
}

// takeScript reads the binding and marks it consumed in one step.
// It returns {first, binding, question, bound_at}, or nil when nothing is bound.
var takeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'binding', 'question', 'bound_at', 'consumed')
if not v[1] then
	return false
end
local first = 0
if v[4] ~= '1' then
	redis.call('HSET', KEYS[1], 'consumed', '1')
	first = 1
end
return {first, v[1], v[2], v[3] or ''}
`)

func (s *PendingStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *PendingStore) Bind(ctx context.Context, sessionID string, question domain.Question) (domain.PendingAnswer, error) {
	raw, err := json.Marshal(question)
	if err != nil {
		return domain.PendingAnswer{}, fmt.Errorf("marshal question: %w", err)
	}
	pending := domain.PendingAnswer{
		SessionID: sessionID,
		BindingID: uuid.NewString(),
		Question:  question,
		BoundAt:   s.now(),
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"binding", pending.BindingID,
			"question", string(raw),
			"bound_at", pending.BoundAt.UnixNano(),
			"consumed", "0",
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return domain.PendingAnswer{}, err
	}
	return pending, nil
}

func (s *PendingStore) Peek(ctx context.Context, sessionID string) (*domain.PendingAnswer, error) {
	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodePending(sessionID, fields["binding"], fields["question"], fields["bound_at"], fields["consumed"] == "1")
}

func (s *PendingStore) Take(ctx context.Context, sessionID string) (*domain.PendingAnswer, bool, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.key(sessionID)}).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(res) != 4 {
		return nil, false, fmt.Errorf("take binding: unexpected reply %v", res)
	}
	first, _ := res[0].(int64)
	binding, _ := res[1].(string)
	question, _ := res[2].(string)
	boundAt, _ := res[3].(string)
	pending, err := decodePending(sessionID, binding, question, boundAt, true)
	if err != nil {
		return nil, false, err
	}
	return pending, first == 1, nil
}

func decodePending(sessionID, binding, rawQuestion, boundAt string, consumed bool) (*domain.PendingAnswer, error) {
	var question domain.Question
	if err := json.Unmarshal([]byte(rawQuestion), &question); err != nil {
		return nil, fmt.Errorf("unmarshal bound question: %w", err)
	}
	pending := &domain.PendingAnswer{
		SessionID: sessionID,
		BindingID: binding,
		Question:  question,
		Consumed:  consumed,
	}
	if nanos, err := strconv.ParseInt(boundAt, 10, 64); err == nil {
		pending.BoundAt = time.Unix(0, nanos)
	}
	return pending, nil
}

func (s *PendingStore) key(sessionID string) string {
	return "quiz:pending:" + sessionID
}
