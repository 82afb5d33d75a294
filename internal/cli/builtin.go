package cli

import "nikkei-quiz-service/internal/domain"

// builtinQuestions is served when the configured pool cannot be loaded.
func builtinQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            "builtin-001",
			Category:      domain.CategoryBasics,
			Question:      "日経平均株価を構成する銘柄数はいくつか。",
			Options:       []string{"100銘柄", "200銘柄", "225銘柄", "500銘柄"},
			CorrectAnswer: 2,
			Explanation:   "日経平均株価は東京証券取引所プライム市場に上場する225銘柄で構成される。",
			Source:        "日本経済新聞社",
			Difficulty:    domain.DifficultyBeginner,
		},
		{
			ID:            "builtin-002",
			Category:      domain.CategoryPractical,
			Question:      "一般に円安が進んだときに業績が改善しやすいのはどれか。",
			Options:       []string{"輸出企業", "輸入企業", "国内小売業", "電力会社"},
			CorrectAnswer: 0,
			Explanation:   "円安は海外売上の円換算額を押し上げるため、輸出企業の採算が改善しやすい。",
			Difficulty:    domain.DifficultyIntermediate,
		},
		{
			ID:            "builtin-003",
			Category:      domain.CategoryPerspective,
			Question:      "消費者物価指数(CPI)を公表している機関はどこか。",
			Options:       []string{"日本銀行", "総務省", "財務省", "内閣府"},
			CorrectAnswer: 1,
			Explanation:   "CPIは総務省統計局が毎月公表している。",
			Difficulty:    domain.DifficultyIntermediate,
		},
		{
			ID:            "builtin-004",
			Category:      domain.CategoryInsight,
			Question:      "日本銀行が政策金利を引き上げた場合、一般に起こりやすい動きはどれか。",
			Options:       []string{"円安が進む", "住宅ローン金利が上昇する", "預金金利が低下する", "株価が必ず上昇する"},
			CorrectAnswer: 1,
			Explanation:   "政策金利の上昇は市場金利に波及し、変動型を中心に住宅ローン金利が上がりやすい。",
			Difficulty:    domain.DifficultyAdvanced,
		},
	}
}
