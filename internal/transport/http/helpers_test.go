package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"nikkei-quiz-service/internal/app"
	"nikkei-quiz-service/internal/auth"
	"nikkei-quiz-service/internal/domain"
	"nikkei-quiz-service/internal/infra/file"
	"nikkei-quiz-service/internal/infra/memory"
)

type testEnv struct {
	server *httptest.Server
	client *http.Client
	stats  *memory.StatsStore
}

func newTestEnv(t *testing.T, anonymousStats bool, opts app.Options) *testEnv {
	t.Helper()
	pool := []domain.Question{{
		ID:            "q1",
		Category:      domain.CategoryBasics,
		Question:      "日経平均株価の構成銘柄数は",
		Options:       []string{"100", "150", "225", "300"},
		CorrectAnswer: 2,
		Explanation:   "225銘柄で構成される",
		Source:        "日本経済新聞",
	}}
	stats := memory.NewStatsStore(10)
	service := app.NewQuizService(
		memory.NewQuestionRepository(memory.NewStaticQuestionLoader(pool), time.Minute),
		memory.NewPendingStore(),
		stats,
		opts,
	)
	users, err := file.Open(filepath.Join(t.TempDir(), "stats.json"), 10)
	if err != nil {
		t.Fatalf("open user store: %v", err)
	}
	accounts := auth.NewService(users, auth.NewTokens("test-secret", time.Hour))

	server := httptest.NewServer(NewRouter(service, accounts, RouterOptions{AnonymousStats: anonymousStats}))
	t.Cleanup(server.Close)
	return &testEnv{server: server, client: newClient(t), stats: stats}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

// do sends a request and decodes the JSON body into a generic map or slice.
func (e *testEnv) do(t *testing.T, client *http.Client, method, path, token string, body any) (int, any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			reader = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: body is not JSON: %s", method, path, raw)
		}
	}
	return resp.StatusCode, decoded
}

func asObject(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected JSON object, got %T (%v)", v, v)
	}
	return m
}

// registerAndLogin returns a bearer token for a fresh account.
func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()
	status, _ := e.do(t, e.client, http.MethodPost, "/api/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}
	status, body := e.do(t, e.client, http.MethodPost, "/api/login", "", map[string]string{
		"login":    username,
		"password": "secret123",
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d", username, status)
	}
	token, _ := asObject(t, body)["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}
	return token
}
