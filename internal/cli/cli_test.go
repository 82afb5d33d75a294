package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nikkei-quiz-service/internal/config"
	"nikkei-quiz-service/internal/domain"
)

func TestBuiltinQuestionsAreValid(t *testing.T) {
	if err := domain.ValidatePool(builtinQuestions()); err != nil {
		t.Fatalf("built-in pool invalid: %v", err)
	}
}

func TestImportQuestionsIntoFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{}
	cfg.Storage.Backend = config.BackendFile
	cfg.File.QuestionsPath = filepath.Join(dir, "questions.json")

	input := builtinQuestions()
	input = append(input, domain.Question{ID: "broken", Category: "unknown", Question: "?", Options: []string{"a", "b", "c", "d"}})
	raw, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	src := filepath.Join(dir, "import.json")
	if err := os.WriteFile(src, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out bytes.Buffer
	if err := importQuestions(context.Background(), &out, cfg, src); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "imported 4, skipped 0, rejected 1") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}

	out.Reset()
	if err := importQuestions(context.Background(), &out, cfg, src); err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(out.String(), "imported 0, skipped 4, rejected 1") {
		t.Fatalf("duplicates not skipped:\n%s", out.String())
	}

	out.Reset()
	if err := printPoolStats(context.Background(), &out, cfg); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out.String(), "total: 4") || !strings.Contains(out.String(), domain.CategoryBasics+": 1") {
		t.Fatalf("unexpected summary:\n%s", out.String())
	}
}

func TestBuildSystemFileBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{}
	cfg.Storage.Backend = config.BackendFile
	cfg.File.StatsPath = filepath.Join(dir, "stats.json")
	cfg.File.QuestionsPath = filepath.Join(dir, "missing.json")
	cfg.Stats.HistoryCap = 10

	sys, err := buildSystem(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer sys.Close()

	// A missing pool falls back to the built-in questions.
	pool, err := sys.questions.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(pool) != len(builtinQuestions()) {
		t.Fatalf("expected built-in pool, got %d questions", len(pool))
	}
	if sys.events != nil {
		t.Fatalf("events should be disabled without a broker")
	}
}

func TestBuildSystemSQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{}
	cfg.Storage.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(dir, "quiz.db")
	cfg.File.QuestionsPath = filepath.Join(dir, "missing.json")
	cfg.Stats.HistoryCap = 10

	sys, err := buildSystem(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer sys.Close()

	stats, err := sys.stats.GetOrCreate(context.Background(), domain.GlobalIdentity)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.TotalQuestions != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
