package http

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nikkei-quiz-service/internal/app"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AnonymousStats lets callers without a token use the global stats bucket.
	AnonymousStats bool
}

// NewRouter wires every endpoint behind the session, identity, logging and recovery middleware.
func NewRouter(service *app.QuizService, accounts Accounts, opts RouterOptions) http.Handler {
	api := NewAPIHandler(service, accounts)
	ws := NewWSHandler(service)

	quiz := http.NewServeMux()
	quiz.HandleFunc("POST /api/start", api.Start)
	quiz.HandleFunc("GET /api/get_question", api.GetQuestion)
	quiz.HandleFunc("POST /api/submit_answer", api.SubmitAnswer)
	quiz.HandleFunc("GET /api/stats", api.GetStats)
	quiz.HandleFunc("DELETE /api/stats", api.ResetStats)
	quiz.HandleFunc("GET /api/history", api.History)
	quiz.HandleFunc("GET /api/questions/summary", api.PoolSummary)
	quiz.HandleFunc("GET /ws/stats", ws.ServeWS)

	mux := http.NewServeMux()
	fallback := notFound(quiz, mux)
	quiz.Handle("/api/", fallback)
	quiz.Handle("/ws/", fallback)
	quizChain := withSession(withIdentity(accounts, opts.AnonymousStats, quiz))

	mux.HandleFunc("POST /api/register", api.Register)
	mux.HandleFunc("POST /api/login", api.Login)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/api/", quizChain)
	mux.Handle("/ws/", quizChain)
	mux.Handle("/", fallback)

	return withRecover(withLogging(mux))
}

var catchAllPatterns = map[string]bool{"/": true, "/api/": true, "/ws/": true}

// notFound answers unmatched requests with a JSON 404, or a JSON 405 when
// the path exists under another method.
func notFound(muxes ...*http.ServeMux) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedMethods(r, muxes); len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: "このメソッドは使用できません"})
			return
		}
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "エンドポイントが見つかりません"})
	}
}

func allowedMethods(r *http.Request, muxes []*http.ServeMux) []string {
	var allow []string
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		if method == r.Method {
			continue
		}
		alt := r.Clone(r.Context())
		alt.Method = method
		for _, mux := range muxes {
			if _, pattern := mux.Handler(alt); pattern != "" && !catchAllPatterns[pattern] {
				allow = append(allow, method)
				break
			}
		}
	}
	return allow
}
