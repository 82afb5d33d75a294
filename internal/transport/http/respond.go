package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"nikkei-quiz-service/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}

// writeError maps err to a status and a stable key. 5xx bodies never carry the raw error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, key, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Error: key, Message: message})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyPool):
		return http.StatusNotFound, "no_questions", "問題が見つかりません"
	case errors.Is(err, domain.ErrNoPendingQuestion):
		return http.StatusBadRequest, "no_pending_question", "回答する問題がありません。先に問題を取得してください"
	case errors.Is(err, domain.ErrMalformedRequest):
		return http.StatusBadRequest, "malformed_request", err.Error()
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return http.StatusConflict, "already_answered", "この問題には既に回答済みです"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "ログインが必要です"
	case errors.Is(err, domain.ErrInvalidRegistration):
		return http.StatusBadRequest, "invalid_registration", err.Error()
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, "user_exists", "ユーザー名またはメールアドレスは既に使用されています"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "ユーザー名またはパスワードが正しくありません"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusInternalServerError, "store_unavailable", "データストアを利用できません"
	default:
		return http.StatusInternalServerError, "internal_error", "内部エラーが発生しました"
	}
}
