package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nikkei-quiz-service/internal/domain"
	"nikkei-quiz-service/internal/infra/memory"
)

// Store keeps statistics, history and accounts in a single JSON document.
// Every mutation rewrites the document; a failed write restores the previous in-memory state.
type Store struct {
	path       string
	historyCap int
	now        func() time.Time

	mu  sync.Mutex
	doc document
}

type document struct {
	Buckets map[domain.Identity]*bucket `json:"buckets"`
	Users   map[string]domain.User      `json:"users"`
}

type bucket struct {
	Stats   domain.Stats     `json:"stats"`
	History []domain.Attempt `json:"history"` // oldest first
}

func (b *bucket) clone() *bucket {
	history := make([]domain.Attempt, len(b.History))
	copy(history, b.History)
	return &bucket{Stats: b.Stats.Clone(), History: history}
}

// Open loads the document at path; a missing file starts empty.
func Open(path string, historyCap int) (*Store, error) {
	return OpenWithClock(path, historyCap, time.Now)
}

// OpenWithClock allows deterministic timestamps in tests.
func OpenWithClock(path string, historyCap int, now func() time.Time) (*Store, error) {
	if historyCap <= 0 {
		historyCap = memory.DefaultHistoryCap
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		path:       path,
		historyCap: historyCap,
		now:        now,
		doc: document{
			Buckets: make(map[domain.Identity]*bucket),
			Users:   make(map[string]domain.User),
		},
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("[STATS] %s not found, starting with empty statistics", path)
		return s, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if s.doc.Buckets == nil {
		s.doc.Buckets = make(map[domain.Identity]*bucket)
	}
	if s.doc.Users == nil {
		s.doc.Users = make(map[string]domain.User)
	}
	return s, nil
}

func (s *Store) GetOrCreate(_ context.Context, identity domain.Identity) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.doc.Buckets[identity]; ok {
		return b.Stats.Clone(), nil
	}
	b := &bucket{Stats: domain.NewStats(s.now())}
	s.doc.Buckets[identity] = b
	if err := s.persistLocked(); err != nil {
		delete(s.doc.Buckets, identity)
		return domain.Stats{}, err
	}
	return b.Stats.Clone(), nil
}

func (s *Store) RecordAttempt(_ context.Context, identity domain.Identity, attempt domain.Attempt) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats domain.Stats
	err := s.mutateLocked(identity, func(b *bucket) {
		b.Stats.Record(attempt.Category, attempt.IsCorrect, s.now())
		b.History = memory.AppendCapped(b.History, attempt, s.historyCap)
		stats = b.Stats.Clone()
	})
	return stats, err
}

func (s *Store) Reset(_ context.Context, identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(identity, func(b *bucket) {
		b.Stats.Reset(s.now())
		b.History = nil
	})
}

func (s *Store) History(_ context.Context, identity domain.Identity, limit int) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.doc.Buckets[identity]
	if !ok {
		return []domain.Attempt{}, nil
	}
	return memory.NewestFirst(b.History, limit), nil
}

// mutateLocked applies fn to the identity's bucket and persists, restoring the old bucket on failure.
func (s *Store) mutateLocked(identity domain.Identity, fn func(*bucket)) error {
	previous, existed := s.doc.Buckets[identity]
	next := &bucket{Stats: domain.NewStats(s.now())}
	if existed {
		next = previous.clone()
	}
	fn(next)
	s.doc.Buckets[identity] = next
	if err := s.persistLocked(); err != nil {
		if existed {
			s.doc.Buckets[identity] = previous
		} else {
			delete(s.doc.Buckets, identity)
		}
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats document: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// CreateUser stores a new account; username and email are unique, case-insensitively.
func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.doc.Users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return domain.ErrUserExists
		}
	}
	s.doc.Users[user.ID] = user
	if err := s.persistLocked(); err != nil {
		delete(s.doc.Users, user.ID)
		return err
	}
	return nil
}

// FindUserByLogin matches a username or an email.
func (s *Store) FindUserByLogin(_ context.Context, login string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.doc.Users {
		if strings.EqualFold(u.Username, login) || strings.EqualFold(u.Email, login) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) FindUserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.doc.Users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) TouchLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.doc.Users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	previous := u
	u.LastLogin = &at
	s.doc.Users[id] = u
	if err := s.persistLocked(); err != nil {
		s.doc.Users[id] = previous
		return err
	}
	return nil
}
