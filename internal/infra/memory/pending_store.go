package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nikkei-quiz-service/internal/domain"
)

// PendingStore is an in-memory implementation of app.PendingStore.
type PendingStore struct {
	mu       sync.Mutex
	now      func() time.Time
	bindings map[string]*domain.PendingAnswer
}

func NewPendingStore() *PendingStore {
	return &PendingStore{
		now:      time.Now,
		bindings: make(map[string]*domain.PendingAnswer),
	}
}

func (s *PendingStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, sessionID)
	return nil
}

func (s *PendingStore) Bind(_ context.Context, sessionID string, question domain.Question) (domain.PendingAnswer, error) {
	pending := &domain.PendingAnswer{
		SessionID: sessionID,
		BindingID: uuid.NewString(),
		Question:  question,
		BoundAt:   s.now(),
	}
	s.mu.Lock()
	s.bindings[sessionID] = pending
	s.mu.Unlock()
	return *pending, nil
}

func (s *PendingStore) Peek(_ context.Context, sessionID string) (*domain.PendingAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.bindings[sessionID]
	if !ok {
		return nil, nil
	}
	out := *pending
	return &out, nil
}

// Take returns the bound question and marks it answered under one lock.
// first is false when the binding had already been taken.
func (s *PendingStore) Take(_ context.Context, sessionID string) (*domain.PendingAnswer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.bindings[sessionID]
	if !ok {
		return nil, false, nil
	}
	first := !pending.Consumed
	pending.Consumed = true
	out := *pending
	return &out, first, nil
}
