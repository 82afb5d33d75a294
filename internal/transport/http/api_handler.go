package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nikkei-quiz-service/internal/app"
	"nikkei-quiz-service/internal/auth"
	"nikkei-quiz-service/internal/domain"
)

// Accounts registers users and issues tokens.
type Accounts interface {
	Authenticator
	Register(ctx context.Context, reg auth.Registration) (domain.User, error)
	Login(ctx context.Context, login, password string) (string, domain.User, error)
}

// APIHandler serves the JSON quiz endpoints.
type APIHandler struct {
	service  *app.QuizService
	accounts Accounts
}

func NewAPIHandler(service *app.QuizService, accounts Accounts) *APIHandler {
	return &APIHandler{service: service, accounts: accounts}
}

type statsResponse struct {
	domain.Stats
	Accuracy float64          `json:"accuracy"`
	History  []domain.Attempt `json:"history"`
}

type userView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

func viewOf(u domain.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		LastLogin:   u.LastLogin,
	}
}

func (h *APIHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartSession(r.Context(), sessionFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "クイズを開始しました"})
}

func (h *APIHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.NextQuestion(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *APIHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answer *int `json:"answer"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, r, fmt.Errorf("%w: answer must be an integer", domain.ErrMalformedRequest))
		return
	}
	if body.Answer == nil {
		writeError(w, r, fmt.Errorf("%w: answer is required", domain.ErrMalformedRequest))
		return
	}
	verdict, err := h.service.SubmitAnswer(r.Context(), sessionFrom(r.Context()), identityFrom(r.Context()), *body.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	stats, err := h.service.Snapshot(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := h.service.History(r.Context(), identity, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats, Accuracy: stats.Accuracy(), History: history})
}

func (h *APIHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetStats(r.Context(), identityFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "統計をリセットしました"})
}

func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrMalformedRequest))
			return
		}
		limit = n
	}
	history, err := h.service.History(r.Context(), identityFrom(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *APIHandler) PoolSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.PoolSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&reg); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrMalformedRequest))
		return
	}
	user, err := h.accounts.Register(r.Context(), reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID, "username": user.Username})
}

func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil || body.Login == "" || body.Password == "" {
		writeError(w, r, fmt.Errorf("%w: login and password are required", domain.ErrMalformedRequest))
		return
	}
	token, user, err := h.accounts.Login(r.Context(), body.Login, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token string   `json:"token"`
		User  userView `json:"user"`
	}{Token: token, User: viewOf(user)})
}
