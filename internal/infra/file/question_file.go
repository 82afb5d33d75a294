// Package file persists the question pool and statistics as JSON documents.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"nikkei-quiz-service/internal/domain"
)

// QuestionFile is the JSON array of question records at path.
type QuestionFile struct {
	path string
	mu   sync.Mutex
}

func NewQuestionFile(path string) *QuestionFile {
	return &QuestionFile{path: path}
}

// LoadQuestions reads and validates the whole pool.
func (f *QuestionFile) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	questions, err := f.read()
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePool(questions); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, f.path, err)
	}
	return questions, nil
}

// ImportResult reports what Append did with each incoming record.
type ImportResult struct {
	Added    int
	Skipped  []string // ids already present
	Rejected []error  // records failing validation
}

// Append validates incoming records and adds the ones whose id is new.
// A missing file is treated as an empty pool.
func (f *QuestionFile) Append(_ context.Context, incoming []domain.Question) (ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ImportResult{}, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, q := range existing {
		seen[q.ID] = struct{}{}
	}

	var result ImportResult
	for i, q := range incoming {
		if err := q.Validate(); err != nil {
			result.Rejected = append(result.Rejected, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if _, dup := seen[q.ID]; dup {
			result.Skipped = append(result.Skipped, q.ID)
			continue
		}
		seen[q.ID] = struct{}{}
		existing = append(existing, q)
		result.Added++
	}
	if result.Added == 0 {
		return result, nil
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return ImportResult{}, err
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

func (f *QuestionFile) read() ([]domain.Question, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrStoreUnavailable, f.path, err)
	}
	return questions, nil
}

// ReadQuestions decodes a question array from any JSON file (import input).
func ReadQuestions(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return questions, nil
}

// writeFileAtomic replaces path via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
