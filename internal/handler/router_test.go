package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// memoryClientSessions はmiddleware.ClientSessionStoreのインメモリ実装。
type memoryClientSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.ClientSession
}

func newMemoryClientSessions(ids ...string) *memoryClientSessions {
	m := &memoryClientSessions{sessions: map[string]*model.ClientSession{}}
	for _, id := range ids {
		m.sessions[id] = &model.ClientSession{ID: id, ExpiresAt: time.Now().Add(23 * time.Hour)}
	}
	return m
}

func (m *memoryClientSessions) Create(_ context.Context, s *model.ClientSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memoryClientSessions) FindByID(_ context.Context, id string) (*model.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id], nil
}

func (m *memoryClientSessions) Touch(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ExpiresAt = expiresAt
	}
	return nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error {
	return m.err
}

type testRouterEnv struct {
	handler  http.Handler
	repo     *memoryStorageRepo
	sessions *memoryClientSessions
	auth     *mockAuthenticator
	loans    *mockLoanService
	reviews  *mockReviewService
	metrics  *recordingMetrics
	health   *mockHealthChecker
}

// createTestRouter はすべての依存をモックにしたルーターを生成する。
// testClientID のクライアントセッションは登録済みとする。
func createTestRouter(t *testing.T) *testRouterEnv {
	t.Helper()
	env := &testRouterEnv{
		repo:     newMemoryStorageRepo(),
		sessions: newMemoryClientSessions(testClientID),
		auth:     &mockAuthenticator{},
		loans:    newMockLoanService(),
		reviews:  &mockReviewService{},
		metrics:  &recordingMetrics{},
		health:   &mockHealthChecker{},
	}
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	env.handler = NewRouter(&RouterDeps{
		Logger:         discardLogger(),
		HealthChecker:  env.health,
		Metrics:        env.metrics,
		MetricsRoute:   http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics\n")) }),
		ClientSessions: env.sessions,
		Storage:        env.repo,
		Authenticator:  env.auth,
		SessionConfig:  middleware.ClientSessionConfig{MaxAge: 24 * time.Hour},
		RateLimiter:    limiter,
		Recovery:       &mockRecoveryService{},
		LoanService:    env.loans,
		Account:        &mockAccountService{},
		ReviewService:  env.reviews,
	})
	return env
}

// do はクライアントセッションCookieとCSRFトークンを付けてリクエストを送る。
func (e *testRouterEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.AddCookie(&http.Cookie{Name: "client_id", Value: testClientID})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf-abc"})
	req.Header.Set("X-CSRF-Token", "csrf-abc")

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	env := createTestRouter(t)

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want 200", w.Code)
	}

	env.health.err = errors.New("db down")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("DB疎通失敗時のステータスコード = %d, want 503", w.Code)
	}
}

func TestRouter_PublicRoutesDoNotIssueClientSession(t *testing.T) {
	env := createTestRouter(t)

	for _, path := range []string{"/api/quote?purpose=Car&amount=1000&term=6", "/api/loan-purposes", "/metrics"} {
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusOK {
			t.Errorf("%s: ステータスコード = %d, want 200", path, w.Code)
		}
		for _, c := range w.Result().Cookies() {
			if c.Name == "client_id" {
				t.Errorf("%s: クライアントセッションを発行してはならない", path)
			}
		}
	}
}

func TestRouter_SessionIssuesClientCookie(t *testing.T) {
	env := createTestRouter(t)

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want 200", w.Code)
	}
	issued := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "client_id" && c.Value != "" && c.HttpOnly {
			issued = true
		}
	}
	if !issued {
		t.Error("client_id Cookieを発行するべき")
	}
}

func TestRouter_LoginRequiresCSRF(t *testing.T) {
	env := createTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"asha","password":"x"}`))
	req.AddCookie(&http.Cookie{Name: "client_id", Value: testClientID})
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("ステータスコード = %d, want 403", w.Code)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeCSRF {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRouter_LoginThenGatedRoute(t *testing.T) {
	env := createTestRouter(t)
	env.auth.loginFn = func(context.Context, string, string) (string, error) { return "tok-1", nil }
	env.auth.profileFn = func(context.Context, string) (*model.Profile, error) {
		return &model.Profile{ID: "1", Role: model.RoleCustomer, AccountVerified: true, BankAccountNumber: "ACC1"}, nil
	}
	env.loans.applicationsFn = func(context.Context, *session.Container) ([]model.LoanApplication, error) {
		return []model.LoanApplication{{ID: "1", AccountNumber: "ACC1"}}, nil
	}

	w := env.do(http.MethodPost, "/api/auth/login", `{"username":"asha","password":"secret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ログインのステータスコード = %d, want 200 (%s)", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/loans/applications", "")
	if w.Code != http.StatusOK {
		t.Fatalf("申請一覧のステータスコード = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	if len(env.metrics.gates) == 0 || env.metrics.gates[len(env.metrics.gates)-1] != "allow" {
		t.Errorf("gates = %v", env.metrics.gates)
	}
}

func TestRouter_GateDecisions(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		profile      string
		path         string
		wantStatus   int
		wantRedirect string
	}{
		{"未ログインで申請一覧", "", "", "/api/loans/active", http.StatusUnauthorized, "/login"},
		{"未確認顧客で申請一覧", "tok", unverifiedUser, "/api/loans/active", http.StatusForbidden, "/link-account"},
		{"顧客が審査一覧", "tok", verifiedCustomer, "/api/admin/applications", http.StatusForbidden, "/"},
		{"管理者がローン画面", "tok", adminUser, "/api/loans/active", http.StatusForbidden, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestRouter(t)
			seed(env.repo, tt.token, tt.profile)

			w := env.do(http.MethodGet, tt.path, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Redirect != tt.wantRedirect {
				t.Errorf("redirect = %q, want %q", body.Redirect, tt.wantRedirect)
			}
		})
	}
}

func TestRouter_AdminReviewFlow(t *testing.T) {
	env := createTestRouter(t)
	seed(env.repo, "admin-tok", adminUser)
	env.reviews.pendingFn = func(context.Context, session.Storage, string) ([]model.PendingApplication, error) {
		return []model.PendingApplication{{Application: model.LoanApplication{ID: "3"}}}, nil
	}

	w := env.do(http.MethodGet, "/api/admin/applications", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	var rows []model.PendingApplication
	decodeInto(t, w, &rows)
	if len(rows) != 1 || rows[0].Application.ID != "3" {
		t.Errorf("rows = %+v", rows)
	}
}
