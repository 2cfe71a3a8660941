package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// --- モック定義 ---

// memoryStorageRepo はsession.StorageRepositoryのインメモリ実装。
type memoryStorageRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryStorageRepo() *memoryStorageRepo {
	return &memoryStorageRepo{values: map[string]string{}}
}

func (m *memoryStorageRepo) GetValue(_ context.Context, sid, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[sid+"/"+key]
	return v, ok, nil
}

func (m *memoryStorageRepo) SetValue(_ context.Context, sid, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[sid+"/"+key] = value
	return nil
}

func (m *memoryStorageRepo) DeleteValue(_ context.Context, sid, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, sid+"/"+key)
	return nil
}

func (m *memoryStorageRepo) get(sid, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[sid+"/"+key]
	return v, ok
}

type mockAuthenticator struct {
	loginFn          func(ctx context.Context, username, password string) (string, error)
	profileFn        func(ctx context.Context, token string) (*model.Profile, error)
	updatePasswordFn func(ctx context.Context, token, oldPassword, newPassword string) error
}

func (m *mockAuthenticator) Login(ctx context.Context, username, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return "", model.ErrInvalidCredentials
}

func (m *mockAuthenticator) Profile(ctx context.Context, token string) (*model.Profile, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, token)
	}
	return nil, model.ErrUnauthorized
}

func (m *mockAuthenticator) UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, token, oldPassword, newPassword)
	}
	return nil
}

type recordingMetrics struct {
	mu      sync.Mutex
	logins  []string
	gates   []string
	reviews []string
}

func (r *recordingMetrics) RecordLogin(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, outcome)
}

func (r *recordingMetrics) RecordGateDecision(decision string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates = append(r.gates, decision)
}

func (r *recordingMetrics) RecordReviewDecision(decision string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.reviews = append(r.reviews, decision+":"+result)
}

// --- ヘルパー ---

const (
	testClientID     = "client-test"
	verifiedCustomer = `{"id":"1","fullName":"Asha Rao","username":"asha","role":"customer","accountVerified":true,"bankAccountNumber":"ACC1"}`
	unverifiedUser   = `{"id":"2","username":"ravi","role":"customer","accountVerified":false}`
	adminUser        = `{"id":"9","fullName":"Admin","role":"admin"}`
)

func discardLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

// newContainer はストレージ内容を読み込んだコンテナを返す。
func newContainer(t *testing.T, repo *memoryStorageRepo, auth session.Authenticator) *session.Container {
	t.Helper()
	c := session.NewContainer(session.NewScopedStorage(repo, testClientID), auth, discardLogger())
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}
	return c
}

// seed はテスト用のストレージにトークンとプロフィールを保存する。
func seed(repo *memoryStorageRepo, token, profile string) {
	if token != "" {
		repo.values[testClientID+"/"+session.KeyToken] = token
	}
	if profile != "" {
		repo.values[testClientID+"/"+session.KeyAuthUser] = profile
	}
}

// newRequest はコンテナを注入したリクエストを生成する。bodyがnilでない場合はJSONにする。
func newRequest(t *testing.T, method, path string, body any, c *session.Container) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			buf, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("リクエストのエンコードに失敗: %v", err)
			}
			r = bytes.NewReader(buf)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if c != nil {
		req = req.WithContext(middleware.ContextWithContainer(req.Context(), testClientID, c))
	}
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("エラーレスポンスのデコードに失敗: %v (%s)", err, w.Body.String())
	}
	return body
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (%s)", err, w.Body.String())
	}
}
