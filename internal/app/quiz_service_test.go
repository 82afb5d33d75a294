package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nikkei-quiz-service/internal/app"
	"nikkei-quiz-service/internal/domain"
	"nikkei-quiz-service/internal/infra/memory"
)

func TestSubmitCorrectAnswerRecordsStats(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})

	q, err := service.NextQuestion(ctx, "s1")
	if err != nil {
		t.Fatalf("next question: %v", err)
	}
	if q.ID != "q1" || len(q.Options) != 4 {
		t.Fatalf("unexpected question %+v", q)
	}

	verdict, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 2)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !verdict.Correct || verdict.CorrectAnswer != 2 {
		t.Fatalf("expected correct verdict, got %+v", verdict)
	}

	stats, _ := service.Snapshot(ctx, domain.GlobalIdentity)
	if stats.TotalQuestions != 1 || stats.CorrectAnswers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := stats.Categories[domain.CategoryBasics]; got.Total != 1 || got.Correct != 1 {
		t.Fatalf("unexpected category stats %+v", got)
	}
}

func TestSubmitWrongAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	_, _ = service.NextQuestion(ctx, "s1")

	verdict, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if verdict.Correct || verdict.CorrectAnswer != 2 {
		t.Fatalf("expected incorrect verdict, got %+v", verdict)
	}
	stats, _ := service.Snapshot(ctx, domain.GlobalIdentity)
	if stats.TotalQuestions != 1 || stats.CorrectAnswers != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSubmitWithoutQuestion(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})

	if _, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 1); !errors.Is(err, domain.ErrNoPendingQuestion) {
		t.Fatalf("expected no pending question, got %v", err)
	}
	stats, _ := service.Snapshot(ctx, domain.GlobalIdentity)
	if stats.TotalQuestions != 0 {
		t.Fatalf("stats changed without a question: %+v", stats)
	}
}

func TestStartSessionClearsBinding(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	_, _ = service.NextQuestion(ctx, "s1")

	if err := service.StartSession(ctx, "s1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 2); !errors.Is(err, domain.ErrNoPendingQuestion) {
		t.Fatalf("expected binding cleared, got %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	pool := []domain.Question{question("q1", 0), question("q2", 3)}
	service := app.NewQuizService(
		&sequenceRepo{pool: pool},
		memory.NewPendingStore(),
		memory.NewStatsStore(10),
		app.Options{},
	)
	_, _ = service.NextQuestion(ctx, "s1") // q1
	_, _ = service.NextQuestion(ctx, "s2") // q2

	v1, _ := service.SubmitAnswer(ctx, "s1", "u1", 0)
	v2, _ := service.SubmitAnswer(ctx, "s2", "u2", 3)
	if !v1.Correct || !v2.Correct {
		t.Fatalf("each session must be judged against its own question: %+v %+v", v1, v2)
	}
}

func TestResubmitHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	_, _ = service.NextQuestion(ctx, "s1")

	first, _ := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 2)
	second, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 0)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.CorrectAnswer != first.CorrectAnswer || second.Correct {
		t.Fatalf("resubmit must be judged against the same binding: %+v", second)
	}
	stats, _ := service.Snapshot(ctx, domain.GlobalIdentity)
	if stats.TotalQuestions != 1 {
		t.Fatalf("resubmit was recorded: %+v", stats)
	}
}

func TestResubmitRejectedWhenConfigured(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{RejectResubmit: true})
	_, _ = service.NextQuestion(ctx, "s1")

	if _, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 2); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 2); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
}

func TestAnswerSurvivesRebindDuringSubmit(t *testing.T) {
	for _, reject := range []bool{false, true} {
		t.Run(fmt.Sprintf("reject=%v", reject), func(t *testing.T) {
			ctx := context.Background()
			stats := memory.NewStatsStore(10)
			pending := &rebindingPending{PendingStore: memory.NewPendingStore(), next: question("q2", 1)}
			repo := memory.NewQuestionRepository(memory.NewStaticQuestionLoader([]domain.Question{question("q1", 2)}), time.Minute)
			service := app.NewQuizService(repo, pending, stats, app.Options{RejectResubmit: reject})

			_, _ = service.NextQuestion(ctx, "s1")
			verdict, err := service.SubmitAnswer(ctx, "s1", "u1", 2)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if !verdict.Correct || verdict.CorrectAnswer != 2 {
				t.Fatalf("expected verdict for q1, got %+v", verdict)
			}
			snapshot, _ := stats.GetOrCreate(ctx, "u1")
			if snapshot.TotalQuestions != 1 || snapshot.CorrectAnswers != 1 {
				t.Fatalf("answer lost when another tab fetched a question: %+v", snapshot)
			}

			// The question fetched by the other tab is still unanswered.
			verdict, err = service.SubmitAnswer(ctx, "s1", "u1", 1)
			if err != nil || !verdict.Correct || verdict.CorrectAnswer != 1 {
				t.Fatalf("expected q2 to be answerable, got %+v %v", verdict, err)
			}
			if snapshot, _ := stats.GetOrCreate(ctx, "u1"); snapshot.TotalQuestions != 2 {
				t.Fatalf("expected both answers recorded, got %+v", snapshot)
			}
		})
	}
}

func TestStatsFeedDeliversInRecordOrder(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	const n = 40

	ch, cancel, err := service.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch

	done := make(chan error, 1)
	go func() {
		last := 0
		for {
			select {
			case update := <-ch:
				if update.TotalQuestions < last {
					done <- fmt.Errorf("total went back from %d to %d", last, update.TotalQuestions)
					return
				}
				last = update.TotalQuestions
				if last == n {
					done <- nil
					return
				}
			case <-time.After(2 * time.Second):
				done <- fmt.Errorf("stalled at total %d", last)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("s%d", i)
			_, _ = service.NextQuestion(ctx, session)
			if _, err := service.SubmitAnswer(ctx, session, "u1", 2); err != nil {
				t.Errorf("submit: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestOutOfRangeAnswerIsIncorrect(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	_, _ = service.NextQuestion(ctx, "s1")

	verdict, err := service.SubmitAnswer(ctx, "s1", domain.GlobalIdentity, 7)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if verdict.Correct {
		t.Fatalf("out of range answer judged correct")
	}
}

func TestAnonymousSkipsSideEffects(t *testing.T) {
	ctx := context.Background()
	service, stats := newTestService(app.Options{})
	_, _ = service.NextQuestion(ctx, "s1")

	verdict, err := service.SubmitAnswer(ctx, "s1", "", 2)
	if err != nil || !verdict.Correct {
		t.Fatalf("anonymous submit: %+v %v", verdict, err)
	}
	if snapshot, _ := stats.GetOrCreate(ctx, domain.GlobalIdentity); snapshot.TotalQuestions != 0 {
		t.Fatalf("anonymous submit was recorded: %+v", snapshot)
	}
	if _, err := service.Snapshot(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated snapshot, got %v", err)
	}
	if err := service.ResetStats(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated reset, got %v", err)
	}
}

func TestPersistenceFailureKeepsVerdict(t *testing.T) {
	ctx := context.Background()
	service := app.NewQuizService(
		memory.NewQuestionRepository(memory.NewStaticQuestionLoader([]domain.Question{question("q1", 2)}), time.Minute),
		memory.NewPendingStore(),
		brokenStats{StatsRepository: memory.NewStatsStore(10)},
		app.Options{},
	)
	_, _ = service.NextQuestion(ctx, "s1")

	verdict, err := service.SubmitAnswer(ctx, "s1", "u1", 2)
	if err != nil {
		t.Fatalf("persistence failure leaked into submit: %v", err)
	}
	if !verdict.Correct {
		t.Fatalf("verdict altered by persistence failure: %+v", verdict)
	}
}

func TestResetStatsAndHistory(t *testing.T) {
	ctx := context.Background()
	events := &recordingPublisher{}
	service, _ := newTestService(app.Options{Events: events})
	for i := 0; i < 3; i++ {
		_, _ = service.NextQuestion(ctx, "s1")
		_, _ = service.SubmitAnswer(ctx, "s1", "u1", 2)
	}
	history, _ := service.History(ctx, "u1", 0)
	if len(history) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(history))
	}

	if err := service.ResetStats(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stats, _ := service.Snapshot(ctx, "u1")
	if stats.TotalQuestions != 0 || len(stats.Categories) != 0 {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}
	if history, _ := service.History(ctx, "u1", 0); len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
	if got := events.types(); len(got) != 4 || got[3] != "stats.reset" {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestSubscribeReceivesStatsUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})

	ch, cancel, err := service.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if initial.TotalQuestions != 0 {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	_, _ = service.NextQuestion(ctx, "s1")
	_, _ = service.SubmitAnswer(ctx, "s1", "u1", 2)

	select {
	case update := <-ch:
		if update.TotalQuestions != 1 || update.CorrectAnswers != 1 {
			t.Fatalf("unexpected update %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update received")
	}
}

func TestPoolSummary(t *testing.T) {
	service, _ := newTestService(app.Options{})
	summary, err := service.PoolSummary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total != 1 || summary.Categories[domain.CategoryBasics] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestNextQuestionEmptyPool(t *testing.T) {
	service := app.NewQuizService(
		memory.NewQuestionRepository(memory.NewStaticQuestionLoader(nil), time.Minute),
		memory.NewPendingStore(),
		memory.NewStatsStore(10),
		app.Options{},
	)
	if _, err := service.NextQuestion(context.Background(), "s1"); !errors.Is(err, domain.ErrEmptyPool) {
		t.Fatalf("expected empty pool, got %v", err)
	}
}

func newTestService(opts app.Options) (*app.QuizService, *memory.StatsStore) {
	stats := memory.NewStatsStore(10)
	repo := memory.NewQuestionRepository(memory.NewStaticQuestionLoader([]domain.Question{question("q1", 2)}), time.Minute)
	return app.NewQuizService(repo, memory.NewPendingStore(), stats, opts), stats
}

func question(id string, correct int) domain.Question {
	return domain.Question{
		ID:            id,
		Category:      domain.CategoryBasics,
		Question:      "日銀の政策金利は",
		Options:       []string{"a", "b", "c", "d"},
		CorrectAnswer: correct,
		Explanation:   "解説",
		Source:        "日経",
	}
}

// sequenceRepo hands out the pool in order.
type sequenceRepo struct {
	mu   sync.Mutex
	pool []domain.Question
	next int
}

func (r *sequenceRepo) All(context.Context) ([]domain.Question, error) { return r.pool, nil }

func (r *sequenceRepo) Sample(context.Context) (domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.pool[r.next%len(r.pool)]
	r.next++
	return q, nil
}

// rebindingPending binds the next question right after a take, as a second tab would.
type rebindingPending struct {
	*memory.PendingStore
	next domain.Question
	once sync.Once
}

func (p *rebindingPending) Take(ctx context.Context, sessionID string) (*domain.PendingAnswer, bool, error) {
	pending, first, err := p.PendingStore.Take(ctx, sessionID)
	p.once.Do(func() { _, _ = p.PendingStore.Bind(ctx, sessionID, p.next) })
	return pending, first, err
}

type brokenStats struct {
	app.StatsRepository
}

func (brokenStats) RecordAttempt(context.Context, domain.Identity, domain.Attempt) (domain.Stats, error) {
	return domain.Stats{}, domain.ErrStoreUnavailable
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}
