package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"nikkei-quiz-service/internal/domain"
)

// QuestionLoader loads the question pool from the questions table.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, category, question, options, correct_answer, explanation, source, difficulty
		FROM questions
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: load questions: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q   domain.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Category, &q.Question, &raw, &q.CorrectAnswer, &q.Explanation, &q.Source, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("%w: scan question: %v", domain.ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return nil, fmt.Errorf("%w: unmarshal options of %s: %v", domain.ErrStoreUnavailable, q.ID, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load questions: %v", domain.ErrStoreUnavailable, err)
	}
	if err := domain.ValidatePool(questions); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return questions, nil
}

// InsertQuestions adds validated records, leaving existing ids untouched.
// It returns how many rows were inserted.
func (l *QuestionLoader) InsertQuestions(ctx context.Context, questions []domain.Question) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return 0, err
		}
		options, err := json.Marshal(q.Options)
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO questions (id, category, question, options, correct_answer, explanation, source, difficulty)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Category, q.Question, string(options), q.CorrectAnswer, q.Explanation, q.Source, q.Difficulty)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := l.pool.SendBatch(ctx, batch)
	defer results.Close()
	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert question %s: %w", questions[i].ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
