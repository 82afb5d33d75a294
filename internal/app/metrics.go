package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	questionsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_questions_served_total",
			Help: "Questions bound to a session and sent to the client",
		},
		[]string{"category"},
	)

	answersEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_evaluated_total",
			Help: "First submissions evaluated against a binding",
		},
		[]string{"outcome"}, // correct / incorrect
	)

	persistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_persistence_failures_total",
			Help: "Statistics or history writes that failed",
		},
		[]string{"op"},
	)
)

func outcomeLabel(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}
