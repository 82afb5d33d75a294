package domain

import "time"

// Identity owns statistics and history: a user id or the shared global bucket.
type Identity string

// GlobalIdentity is the shared bucket used for anonymous callers when enabled.
const GlobalIdentity Identity = "global"

// Anonymous reports whether no identity was resolved.
func (i Identity) Anonymous() bool { return i == "" }

// PendingAnswer binds the question a session must answer next.
type PendingAnswer struct {
	SessionID string    `json:"session_id"`
	BindingID string    `json:"binding_id"`
	Question  Question  `json:"question"`
	BoundAt   time.Time `json:"bound_at"`
	Consumed  bool      `json:"consumed"`
}

// Verdict is the evaluation result of one submitted answer.
type Verdict struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer int    `json:"correct_answer"`
	Explanation   string `json:"explanation"`
	Source        string `json:"source"`
}

// Attempt is one entry of the history ledger.
type Attempt struct {
	QuestionID    string    `json:"question_id"`
	QuestionText  string    `json:"question"`
	Category      string    `json:"category"`
	UserAnswer    int       `json:"user_answer"`
	CorrectAnswer int       `json:"correct_answer"`
	Options       []string  `json:"options,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	Difficulty    string    `json:"difficulty,omitempty"`
	IsCorrect     bool      `json:"is_correct"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewAttempt builds the ledger entry for an evaluated answer.
func NewAttempt(q Question, userAnswer int, correct bool, at time.Time) Attempt {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return Attempt{
		QuestionID:    q.ID,
		QuestionText:  q.Question,
		Category:      q.Category,
		UserAnswer:    userAnswer,
		CorrectAnswer: q.CorrectAnswer,
		Options:       options,
		Explanation:   q.Explanation,
		Difficulty:    q.DifficultyOrDefault(),
		IsCorrect:     correct,
		Timestamp:     at,
	}
}

// CategoryStat counts attempts within one category.
type CategoryStat struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

// Stats is the rolling aggregate for one identity.
type Stats struct {
	TotalQuestions int                     `json:"total_questions"`
	CorrectAnswers int                     `json:"correct_answers"`
	Categories     map[string]CategoryStat `json:"categories"`
	StartDate      time.Time               `json:"start_date"`
	LastUpdated    time.Time               `json:"last_updated"`
}

// NewStats returns a zeroed record started at now.
func NewStats(now time.Time) Stats {
	return Stats{
		Categories:  make(map[string]CategoryStat),
		StartDate:   now,
		LastUpdated: now,
	}
}

// Record applies one attempt to the counters.
func (s *Stats) Record(category string, correct bool, now time.Time) {
	if s.Categories == nil {
		s.Categories = make(map[string]CategoryStat)
	}
	s.TotalQuestions++
	cat := s.Categories[category]
	cat.Total++
	if correct {
		s.CorrectAnswers++
		cat.Correct++
	}
	s.Categories[category] = cat
	s.LastUpdated = now
}

// Reset zeroes counters and categories; StartDate is kept.
func (s *Stats) Reset(now time.Time) {
	s.TotalQuestions = 0
	s.CorrectAnswers = 0
	s.Categories = make(map[string]CategoryStat)
	s.LastUpdated = now
}

// Accuracy is the percentage of correct answers, 0 when nothing was answered.
func (s Stats) Accuracy() float64 {
	if s.TotalQuestions == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.TotalQuestions) * 100
}

// Clone returns a deep copy safe to hand out of a lock.
func (s Stats) Clone() Stats {
	out := s
	out.Categories = make(map[string]CategoryStat, len(s.Categories))
	for k, v := range s.Categories {
		out.Categories[k] = v
	}
	return out
}

// User is a registered account.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	DisplayName  string     `json:"display_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	IsActive     bool       `json:"is_active"`
}
