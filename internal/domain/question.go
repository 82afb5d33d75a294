package domain

import "fmt"

// Category labels of the Nikkei TEST taxonomy.
const (
	CategoryBasics      = "基礎知識"
	CategoryPractical   = "実践知識"
	CategoryPerspective = "視野の広さ"
	CategoryInsight     = "知識を知恵にする力"
	CategoryApplication = "知恵を活用する力"
)

// Difficulty labels.
const (
	DifficultyBeginner     = "初級"
	DifficultyIntermediate = "中級"
	DifficultyAdvanced     = "上級"
)

// OptionCount is the fixed number of choices per question.
const OptionCount = 4

// Categories lists the closed category set in display order.
var Categories = []string{
	CategoryBasics,
	CategoryPractical,
	CategoryPerspective,
	CategoryInsight,
	CategoryApplication,
}

// Difficulties lists the accepted difficulty labels.
var Difficulties = []string{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

// IsCategory reports whether label belongs to the fixed category set.
func IsCategory(label string) bool {
	for _, c := range Categories {
		if c == label {
			return true
		}
	}
	return false
}

// IsDifficulty reports whether label is an accepted difficulty.
func IsDifficulty(label string) bool {
	for _, d := range Difficulties {
		if d == label {
			return true
		}
	}
	return false
}

// Question is an immutable pool record, correct answer included.
type Question struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
	Source        string   `json:"source,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
}

// PublicQuestion is what clients see before answering.
type PublicQuestion struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty"`
}

// Public strips the answer, explanation and source.
func (q Question) Public() PublicQuestion {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		ID:         q.ID,
		Category:   q.Category,
		Question:   q.Question,
		Options:    options,
		Difficulty: q.DifficultyOrDefault(),
	}
}

// DifficultyOrDefault returns the difficulty, falling back to intermediate.
func (q Question) DifficultyOrDefault() string {
	if q.Difficulty == "" {
		return DifficultyIntermediate
	}
	return q.Difficulty
}

// Validate checks the record invariants enforced at the store boundary.
func (q Question) Validate() error {
	switch {
	case q.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	case q.Question == "":
		return fmt.Errorf("%w: %s: missing question text", ErrInvalidQuestion, q.ID)
	case len(q.Options) != OptionCount:
		return fmt.Errorf("%w: %s: expected %d options, got %d", ErrInvalidQuestion, q.ID, OptionCount, len(q.Options))
	case q.CorrectAnswer < 0 || q.CorrectAnswer >= OptionCount:
		return fmt.Errorf("%w: %s: correct_answer %d out of range", ErrInvalidQuestion, q.ID, q.CorrectAnswer)
	case !IsCategory(q.Category):
		return fmt.Errorf("%w: %s: unknown category %q", ErrInvalidQuestion, q.ID, q.Category)
	case q.Difficulty != "" && !IsDifficulty(q.Difficulty):
		return fmt.Errorf("%w: %s: unknown difficulty %q", ErrInvalidQuestion, q.ID, q.Difficulty)
	}
	return nil
}

// ValidatePool validates every record and rejects duplicate ids.
func ValidatePool(questions []Question) error {
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("record %d: %w: duplicate id %s", i, ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// PoolSummary counts the pool by category and difficulty.
type PoolSummary struct {
	Total        int            `json:"total"`
	Categories   map[string]int `json:"categories"`
	Difficulties map[string]int `json:"difficulties"`
}

// Summarize builds a PoolSummary.
func Summarize(questions []Question) PoolSummary {
	summary := PoolSummary{
		Total:        len(questions),
		Categories:   make(map[string]int),
		Difficulties: make(map[string]int),
	}
	for _, q := range questions {
		summary.Categories[q.Category]++
		summary.Difficulties[q.DifficultyOrDefault()]++
	}
	return summary
}
