package relational

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
	"nikkei-quiz-service/internal/domain"
)

// UserModel is one registered account.
type UserModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string     `bun:"id,pk"`
	Username     string     `bun:"username,notnull,unique"`
	Email        string     `bun:"email,notnull,unique"`
	PasswordHash string     `bun:"password_hash,notnull"`
	DisplayName  string     `bun:"display_name"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	LastLogin    *time.Time `bun:"last_login"`
	IsActive     bool       `bun:"is_active,notnull"`
}

// StatsModel is the single statistics row of an identity.
type StatsModel struct {
	bun.BaseModel `bun:"table:user_stats,alias:us"`

	ID             int64     `bun:"id,pk,autoincrement"`
	UserID         string    `bun:"user_id,notnull,unique"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	CorrectAnswers int       `bun:"correct_answers,notnull"`
	Categories     string    `bun:"categories,notnull"` // JSON object
	StartDate      time.Time `bun:"start_date,notnull"`
	LastUpdated    time.Time `bun:"last_updated,notnull"`
}

// AttemptModel is one row of the history ledger.
type AttemptModel struct {
	bun.BaseModel `bun:"table:quiz_results,alias:qr"`

	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        string    `bun:"user_id,notnull"`
	QuestionID    string    `bun:"question_id,notnull"`
	QuestionText  string    `bun:"question_text,notnull"`
	Category      string    `bun:"category,notnull"`
	UserAnswer    int       `bun:"user_answer,notnull"`
	CorrectAnswer int       `bun:"correct_answer,notnull"`
	IsCorrect     bool      `bun:"is_correct,notnull"`
	Options       string    `bun:"options"` // JSON array
	Explanation   string    `bun:"explanation"`
	Difficulty    string    `bun:"difficulty"`
	AnsweredAt    time.Time `bun:"answered_at,notnull"`
}

func (m *UserModel) toDomain() domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		DisplayName:  m.DisplayName,
		CreatedAt:    m.CreatedAt,
		LastLogin:    m.LastLogin,
		IsActive:     m.IsActive,
	}
}

func userModelFrom(u domain.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
		IsActive:     u.IsActive,
	}
}

func (m *StatsModel) toDomain() (domain.Stats, error) {
	stats := domain.Stats{
		TotalQuestions: m.TotalQuestions,
		CorrectAnswers: m.CorrectAnswers,
		Categories:     make(map[string]domain.CategoryStat),
		StartDate:      m.StartDate,
		LastUpdated:    m.LastUpdated,
	}
	if m.Categories != "" {
		if err := json.Unmarshal([]byte(m.Categories), &stats.Categories); err != nil {
			return domain.Stats{}, err
		}
	}
	return stats, nil
}

func (m *StatsModel) apply(stats domain.Stats) error {
	raw, err := json.Marshal(stats.Categories)
	if err != nil {
		return err
	}
	m.TotalQuestions = stats.TotalQuestions
	m.CorrectAnswers = stats.CorrectAnswers
	m.Categories = string(raw)
	m.LastUpdated = stats.LastUpdated
	return nil
}

func attemptModelFrom(identity domain.Identity, a domain.Attempt) (*AttemptModel, error) {
	options, err := json.Marshal(a.Options)
	if err != nil {
		return nil, err
	}
	return &AttemptModel{
		UserID:        string(identity),
		QuestionID:    a.QuestionID,
		QuestionText:  a.QuestionText,
		Category:      a.Category,
		UserAnswer:    a.UserAnswer,
		CorrectAnswer: a.CorrectAnswer,
		IsCorrect:     a.IsCorrect,
		Options:       string(options),
		Explanation:   a.Explanation,
		Difficulty:    a.Difficulty,
		AnsweredAt:    a.Timestamp,
	}, nil
}

func (m *AttemptModel) toDomain() (domain.Attempt, error) {
	a := domain.Attempt{
		QuestionID:    m.QuestionID,
		QuestionText:  m.QuestionText,
		Category:      m.Category,
		UserAnswer:    m.UserAnswer,
		CorrectAnswer: m.CorrectAnswer,
		Explanation:   m.Explanation,
		Difficulty:    m.Difficulty,
		IsCorrect:     m.IsCorrect,
		Timestamp:     m.AnsweredAt,
	}
	if m.Options != "" {
		if err := json.Unmarshal([]byte(m.Options), &a.Options); err != nil {
			return domain.Attempt{}, err
		}
	}
	return a, nil
}
