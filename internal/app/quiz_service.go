package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"nikkei-quiz-service/internal/domain"
)

// QuestionRepository serves the read-only question pool.
type QuestionRepository interface {
	All(ctx context.Context) ([]domain.Question, error)
	Sample(ctx context.Context) (domain.Question, error)
}

// PendingStore binds one question per session (in-memory, Redis, etc).
type PendingStore interface {
	Clear(ctx context.Context, sessionID string) error
	Bind(ctx context.Context, sessionID string, question domain.Question) (domain.PendingAnswer, error)
	// Peek returns nil without error when nothing is bound.
	Peek(ctx context.Context, sessionID string) (*domain.PendingAnswer, error)
	// Take returns the binding and marks it answered in one step.
	// first reports whether this call did the marking; nil means nothing is bound.
	Take(ctx context.Context, sessionID string) (pending *domain.PendingAnswer, first bool, err error)
}

// StatsRepository owns per-identity statistics and the history ledger.
// Implementations serialize mutations per identity.
type StatsRepository interface {
	GetOrCreate(ctx context.Context, identity domain.Identity) (domain.Stats, error)
	// RecordAttempt updates counters and appends history as one unit.
	RecordAttempt(ctx context.Context, identity domain.Identity, attempt domain.Attempt) (domain.Stats, error)
	// Reset clears counters and history together; start date survives.
	Reset(ctx context.Context, identity domain.Identity) error
	// History returns attempts newest first; limit <= 0 means the store cap.
	History(ctx context.Context, identity domain.Identity, limit int) ([]domain.Attempt, error)
}

// EventPublisher forwards domain events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Options tunes QuizService behaviour.
type Options struct {
	// RejectResubmit turns a second submit against one binding into ErrAlreadyAnswered.
	RejectResubmit bool
	Events         EventPublisher
	Now            func() time.Time
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	questions QuestionRepository
	pending   PendingStore
	stats     StatsRepository
	events    EventPublisher
	feed      *StatsFeed
	now       func() time.Time
	reject    bool

	// feedLocks order a stats write and its broadcast per identity.
	feedLocks [32]sync.Mutex
}

func NewQuizService(questions QuestionRepository, pending PendingStore, stats StatsRepository, opts Options) *QuizService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &QuizService{
		questions: questions,
		pending:   pending,
		stats:     stats,
		events:    opts.Events,
		feed:      NewStatsFeed(),
		now:       now,
		reject:    opts.RejectResubmit,
	}
}

// StartSession drops whatever question the session had bound.
func (s *QuizService) StartSession(ctx context.Context, sessionID string) error {
	return s.pending.Clear(ctx, sessionID)
}

// NextQuestion draws a question, binds it to the session and returns the public view.
func (s *QuizService) NextQuestion(ctx context.Context, sessionID string) (domain.PublicQuestion, error) {
	question, err := s.questions.Sample(ctx)
	if err != nil {
		return domain.PublicQuestion{}, err
	}
	// The binding must be stored before the caller sees the question.
	if _, err := s.pending.Bind(ctx, sessionID, question); err != nil {
		return domain.PublicQuestion{}, fmt.Errorf("bind question: %w", err)
	}
	questionsServed.WithLabelValues(question.Category).Inc()
	return question.Public(), nil
}

// SubmitAnswer evaluates the answer against the session's bound question.
// Persistence failures are logged; they never change the returned verdict.
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID string, identity domain.Identity, answer int) (domain.Verdict, error) {
	pending, first, err := s.pending.Take(ctx, sessionID)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("take binding: %w", err)
	}
	if pending == nil {
		return domain.Verdict{}, domain.ErrNoPendingQuestion
	}

	question := pending.Question
	verdict := evaluate(question, answer)
	if !first {
		if s.reject {
			return domain.Verdict{}, domain.ErrAlreadyAnswered
		}
		return verdict, nil
	}

	answersEvaluated.WithLabelValues(outcomeLabel(verdict.Correct)).Inc()
	if identity.Anonymous() {
		return verdict, nil
	}

	attempt := domain.NewAttempt(question, answer, verdict.Correct, s.now())
	mu := s.feedLock(identity)
	mu.Lock()
	stats, err := s.stats.RecordAttempt(ctx, identity, attempt)
	if err == nil {
		s.feed.broadcast(identity, stats)
	}
	mu.Unlock()
	if err != nil {
		persistenceFailures.WithLabelValues("record").Inc()
		log.Printf("[STATS] record attempt for %s failed: %v", identity, err)
		return verdict, nil
	}
	s.publish(ctx, "answer.evaluated", answerEvent{
		Identity:   identity,
		QuestionID: question.ID,
		Category:   question.Category,
		Correct:    verdict.Correct,
		Timestamp:  attempt.Timestamp,
	})
	return verdict, nil
}

// Snapshot returns the identity's current statistics.
func (s *QuizService) Snapshot(ctx context.Context, identity domain.Identity) (domain.Stats, error) {
	if identity.Anonymous() {
		return domain.Stats{}, domain.ErrUnauthenticated
	}
	return s.stats.GetOrCreate(ctx, identity)
}

// History returns the identity's attempts, newest first.
func (s *QuizService) History(ctx context.Context, identity domain.Identity, limit int) ([]domain.Attempt, error) {
	if identity.Anonymous() {
		return nil, domain.ErrUnauthenticated
	}
	return s.stats.History(ctx, identity, limit)
}

// ResetStats clears statistics and history for the identity.
func (s *QuizService) ResetStats(ctx context.Context, identity domain.Identity) error {
	if identity.Anonymous() {
		return domain.ErrUnauthenticated
	}
	mu := s.feedLock(identity)
	mu.Lock()
	if err := s.stats.Reset(ctx, identity); err != nil {
		mu.Unlock()
		persistenceFailures.WithLabelValues("reset").Inc()
		return fmt.Errorf("reset stats: %w", err)
	}
	if stats, err := s.stats.GetOrCreate(ctx, identity); err == nil {
		s.feed.broadcast(identity, stats)
	}
	mu.Unlock()
	s.publish(ctx, "stats.reset", resetEvent{Identity: identity, Timestamp: s.now()})
	return nil
}

// PoolSummary counts the question pool per category and difficulty.
func (s *QuizService) PoolSummary(ctx context.Context) (domain.PoolSummary, error) {
	questions, err := s.questions.All(ctx)
	if err != nil {
		return domain.PoolSummary{}, err
	}
	return domain.Summarize(questions), nil
}

// Subscribe returns a channel of stats snapshots for the identity.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, identity domain.Identity) (<-chan domain.Stats, func(), error) {
	if identity.Anonymous() {
		return nil, nil, domain.ErrUnauthenticated
	}
	initial, err := s.stats.GetOrCreate(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.subscribe(identity, initial)
	return ch, cancel, nil
}

func (s *QuizService) feedLock(identity domain.Identity) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &s.feedLocks[h.Sum32()%uint32(len(s.feedLocks))]
}

func (s *QuizService) publish(ctx context.Context, eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		log.Printf("[EVENT] publish %s failed: %v", eventType, err)
	}
}

// evaluate compares by equality; out-of-range answers are simply incorrect.
func evaluate(question domain.Question, answer int) domain.Verdict {
	return domain.Verdict{
		Correct:       answer == question.CorrectAnswer,
		CorrectAnswer: question.CorrectAnswer,
		Explanation:   question.Explanation,
		Source:        question.Source,
	}
}

type answerEvent struct {
	Identity   domain.Identity `json:"identity"`
	QuestionID string          `json:"question_id"`
	Category   string          `json:"category"`
	Correct    bool            `json:"correct"`
	Timestamp  time.Time       `json:"timestamp"`
}

type resetEvent struct {
	Identity  domain.Identity `json:"identity"`
	Timestamp time.Time       `json:"timestamp"`
}
