package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nikkei-quiz-service/internal/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "user_stats.json")
	start := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	st, err := OpenWithClock(path, 20, func() time.Time { return start })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.RecordAttempt(ctx, domain.GlobalIdentity, attempt("q1", true)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := st.RecordAttempt(ctx, domain.GlobalIdentity, attempt("q2", false)); err != nil {
		t.Fatalf("record: %v", err)
	}

	reopened, err := Open(path, 20)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	stats, _ := reopened.GetOrCreate(ctx, domain.GlobalIdentity)
	if stats.TotalQuestions != 2 || stats.CorrectAnswers != 1 {
		t.Fatalf("unexpected persisted stats %+v", stats)
	}
	if !stats.StartDate.Equal(start) {
		t.Fatalf("start date not persisted: %v", stats.StartDate)
	}
	history, _ := reopened.History(ctx, domain.GlobalIdentity, 0)
	if len(history) != 2 || history[0].QuestionID != "q2" {
		t.Fatalf("expected newest-first history, got %+v", history)
	}
}

func TestStoreResetClearsStatsAndHistory(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "stats.json"), 20)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = st.RecordAttempt(ctx, "u1", attempt("q1", true))
	_, _ = st.RecordAttempt(ctx, "u2", attempt("q1", true))

	if err := st.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stats, _ := st.GetOrCreate(ctx, "u1")
	if stats.TotalQuestions != 0 || len(stats.Categories) != 0 {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}
	if history, _ := st.History(ctx, "u1", 0); len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
	if other, _ := st.GetOrCreate(ctx, "u2"); other.TotalQuestions != 1 {
		t.Fatalf("reset leaked into another identity: %+v", other)
	}
}

func TestStoreRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	st, err := Open(filepath.Join(dir, "stats.json"), 20)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.RecordAttempt(ctx, "u1", attempt("q1", true)); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Replace the directory with a plain file so every write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove dir: %v", err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	if _, err := st.RecordAttempt(ctx, "u1", attempt("q2", false)); err == nil {
		t.Fatalf("expected write failure")
	}
	stats, _ := st.GetOrCreate(ctx, "u1")
	if stats.TotalQuestions != 1 || stats.CorrectAnswers != 1 {
		t.Fatalf("failed write left partial stats: %+v", stats)
	}
	if history, _ := st.History(ctx, "u1", 0); len(history) != 1 {
		t.Fatalf("failed write left partial history: %d", len(history))
	}
	if err := st.Reset(ctx, "u1"); err == nil {
		t.Fatalf("expected reset to report the failure")
	}
	if stats, _ := st.GetOrCreate(ctx, "u1"); stats.TotalQuestions != 1 {
		t.Fatalf("failed reset must not be partially applied: %+v", stats)
	}
}

func TestStoreUsers(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "stats.json"), 20)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	user := domain.User{ID: "id-1", Username: "taro", Email: "taro@example.com", IsActive: true}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := domain.User{ID: "id-2", Username: "TARO", Email: "other@example.com"}
	if err := st.CreateUser(ctx, dup); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
	found, err := st.FindUserByLogin(ctx, "taro@example.com")
	if err != nil || found.ID != "id-1" {
		t.Fatalf("find by email: %+v %v", found, err)
	}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := st.TouchLogin(ctx, "id-1", at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	found, _ = st.FindUserByID(ctx, "id-1")
	if found.LastLogin == nil || !found.LastLogin.Equal(at) {
		t.Fatalf("last login not recorded: %+v", found.LastLogin)
	}
}

func TestQuestionFileLoadAndAppend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "questions.json")
	qf := NewQuestionFile(path)

	if _, err := qf.LoadQuestions(ctx); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable for missing file, got %v", err)
	}

	incoming := []domain.Question{
		question("q1"),
		question("q2"),
		{ID: "bad", Category: domain.CategoryBasics, Question: "?", Options: []string{"a"}},
	}
	result, err := qf.Append(ctx, incoming)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if result.Added != 2 || len(result.Rejected) != 1 {
		t.Fatalf("unexpected import result %+v", result)
	}

	result, err = qf.Append(ctx, []domain.Question{question("q2"), question("q3")})
	if err != nil {
		t.Fatalf("append again: %v", err)
	}
	if result.Added != 1 || len(result.Skipped) != 1 || result.Skipped[0] != "q2" {
		t.Fatalf("expected q2 skipped, got %+v", result)
	}

	pool, err := qf.LoadQuestions(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(pool) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(pool))
	}
}

func TestQuestionFileRejectsMalformedPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	raw := `[{"id":"q1","category":"基礎知識","question":"?","options":["a","b","c"],"correct_answer":0}]`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewQuestionFile(path).LoadQuestions(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected malformed pool to be rejected, got %v", err)
	}
}

func attempt(id string, correct bool) domain.Attempt {
	return domain.Attempt{
		QuestionID: id,
		Category:   domain.CategoryBasics,
		IsCorrect:  correct,
		Timestamp:  time.Now(),
	}
}

func question(id string) domain.Question {
	return domain.Question{
		ID:            id,
		Category:      domain.CategoryPractical,
		Question:      "円安が進むと輸出企業の業績は",
		Options:       []string{"改善しやすい", "悪化しやすい", "変わらない", "判断できない"},
		CorrectAnswer: 0,
	}
}
