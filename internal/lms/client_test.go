package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/loandesk/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type recordedCall struct {
	endpoint string
	status   int
}

type stubRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *stubRecorder) RecordBackendCall(endpoint string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{endpoint: endpoint, status: status})
}

// newTestClient はhttptestサーバーを公開・保護両方の基点URLとするClientを返す。
func newTestClient(t *testing.T, h http.Handler) (*Client, *stubRecorder) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	rec := &stubRecorder{}
	return NewClient(server.Client(), newTestLogger(&buf), server.URL+"/auth", server.URL+"/api", rec), rec
}

func TestClient_Login_TokenFromBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("リクエストボディのデコードに失敗: %v", err)
			return
		}
		if body["username"] != "alice" || body["password"] != "pw" {
			t.Errorf("認証情報 = %v", body)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID が設定されていない")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jwt":"tok-123"}`)
	})

	c, rec := newTestClient(t, mux)
	token, err := c.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
	if len(rec.calls) != 1 || rec.calls[0] != (recordedCall{"login", http.StatusOK}) {
		t.Errorf("計測 = %+v", rec.calls)
	}
}

func TestClient_Login_RejectedCredentials(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		c, _ := newTestClient(t, mux)
		_, err := c.Login(context.Background(), "alice", "bad")
		if !errors.Is(err, model.ErrInvalidCredentials) {
			t.Errorf("status %d: err = %v, want ErrInvalidCredentials", status, err)
		}
	}
}

func TestClient_Login_NoTokenNeverFetchesProfile(t *testing.T) {
	profileCalled := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"ok"}`)
	})
	mux.HandleFunc("GET /api/profile", func(w http.ResponseWriter, r *http.Request) {
		profileCalled = true
	})

	c, _ := newTestClient(t, mux)
	_, err := c.Login(context.Background(), "alice", "pw")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}
	if profileCalled {
		t.Error("トークンがない場合 /profile は呼ばれてはならない")
	}
}

func TestClient_Login_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.Login(context.Background(), "alice", "pw")
	if !IsUnavailable(err) {
		t.Errorf("err = %v, want unavailable", err)
	}
}

func TestClient_Login_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	rec := &stubRecorder{}
	c := NewClient(http.DefaultClient, newTestLogger(&buf), url, url, rec)

	_, err := c.Login(context.Background(), "alice", "pw")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if len(rec.calls) != 1 || rec.calls[0].status != 0 {
		t.Errorf("通信失敗はステータス0で計測されるべき: %+v", rec.calls)
	}
}

func TestClient_Profile_MapsWireShape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/profile", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		io.WriteString(w, `{"id":7,"fullName":"Ann Lee","username":"ann","email":"a@x.io",
			"role":"ROLE_ADMIN","accountVerified":true,"bankAccountNumber":"ACC1"}`)
	})

	c, _ := newTestClient(t, mux)
	p, err := c.Profile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Profile がエラーを返した: %v", err)
	}

	want := model.Profile{
		ID: "7", FullName: "Ann Lee", Username: "ann", Email: "a@x.io",
		Role: model.RoleAdmin, AccountVerified: true, BankAccountNumber: "ACC1",
	}
	if *p != want {
		t.Errorf("profile = %+v, want %+v", *p, want)
	}
}

func TestClient_Profile_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.Profile(context.Background(), "expired")
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestClient_ConfirmMicroDeposit_BusinessError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/account/confirm-deposit", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["microDepositAmount"] != "0.42" {
			t.Errorf("microDepositAmount = %q, want 0.42", body["microDepositAmount"])
		}
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Amount does not match")
	})

	c, _ := newTestClient(t, mux)
	err := c.ConfirmMicroDeposit(context.Background(), "tok", "ACC1", decimal.RequireFromString("0.42"))

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Message != "Amount does not match" || !se.IsClientError() {
		t.Errorf("StatusError = %+v", se)
	}
	if IsUnavailable(err) {
		t.Error("4xxは通信不能とみなしてはならない")
	}
}

func TestClient_ApplyLoan_SendsStringFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/loan/apply", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("すべての値は文字列で送信されるべき: %v", err)
			return
		}
		if body["loanAmount"] != "25000" || body["termMonths"] != "12" || body["purpose"] != "Education" {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `"Loan application submitted"`)
	})

	c, _ := newTestClient(t, mux)
	msg, err := c.ApplyLoan(context.Background(), "tok", model.LoanRequest{
		AccountNumber: "ACC1",
		Amount:        decimal.NewFromInt(25000),
		Purpose:       "Education",
		TermMonths:    12,
	})
	if err != nil {
		t.Fatalf("ApplyLoan がエラーを返した: %v", err)
	}
	if msg != "Loan application submitted" {
		t.Errorf("msg = %q", msg)
	}
}

func TestClient_ListApplications_Normalizes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/applications/{account}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.PathValue("account"); got != "ACC 1" {
			t.Errorf("account = %q, want %q", got, "ACC 1")
		}
		io.WriteString(w, `[
			{"id":1,"loanAmount":"1000.50","termMonths":"6","status":"APPROVED","emiPerMonth":null,"purpose":"Travel"},
			{"id":"2","loanAmount":"abc","termMonths":12,"status":"Weird","totalEmi":1200}
		]`)
	})

	c, _ := newTestClient(t, mux)
	apps, err := c.ListApplications(context.Background(), "tok", "ACC 1")
	if err != nil {
		t.Fatalf("ListApplications がエラーを返した: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("件数 = %d, want 2", len(apps))
	}

	if apps[0].ID != "1" || apps[0].Status != model.ApplicationApproved || apps[0].TermMonths != 6 {
		t.Errorf("apps[0] = %+v", apps[0])
	}
	if !apps[0].Amount.Equal(decimal.RequireFromString("1000.50")) || !apps[0].EMI.IsZero() {
		t.Errorf("apps[0] 金額 = %s, emi = %s", apps[0].Amount, apps[0].EMI)
	}
	if apps[1].Status != model.ApplicationPending || !apps[1].Amount.IsZero() {
		t.Errorf("apps[1] = %+v", apps[1])
	}
	if !apps[1].TotalEMI.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("apps[1].TotalEMI = %s", apps[1].TotalEMI)
	}
}

func TestClient_ListActiveLoans(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/active/ACC1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":3,"totalLoan":5000,"remainingAmount":"2500","termMonths":10,"emiAmount":520.1,"dueDate":"2026-12-01"}]`)
	})

	c, _ := newTestClient(t, mux)
	loans, err := c.ListActiveLoans(context.Background(), "tok", "ACC1")
	if err != nil {
		t.Fatalf("ListActiveLoans がエラーを返した: %v", err)
	}
	if len(loans) != 1 {
		t.Fatalf("件数 = %d, want 1", len(loans))
	}
	l := loans[0]
	if l.ID != "3" || !l.RemainingAmount.Equal(decimal.NewFromInt(2500)) || l.DueDate != "2026-12-01" {
		t.Errorf("loan = %+v", l)
	}
}

func TestClient_ListPending_SkipsRowsWithoutApplication(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/loan/pending", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"application":{"id":10,"customerName":"Bo","loanAmount":900,"status":"pending"},
			 "loanSummary":{"loanPaid":"100","loanRemaining":200,"totalLoan":null}},
			{"loanSummary":{"loanPaid":1}},
			{"application":{"id":11}}
		]`)
	})

	c, _ := newTestClient(t, mux)
	pending, err := c.ListPending(context.Background(), "admin-tok")
	if err != nil {
		t.Fatalf("ListPending がエラーを返した: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("件数 = %d, want 2", len(pending))
	}
	s := pending[0].Summary
	if !s.Paid.Equal(decimal.NewFromInt(100)) || !s.Remaining.Equal(decimal.NewFromInt(200)) || !s.Total.IsZero() {
		t.Errorf("summary = %+v", s)
	}
	if pending[1].Application.ID != "11" || !pending[1].Summary.Total.IsZero() {
		t.Errorf("pending[1] = %+v", pending[1])
	}
}

func TestClient_ApproveReject_Messages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/loan/approve", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("loanApplicationId") != "10" {
			t.Errorf("loanApplicationId = %q", r.URL.Query().Get("loanApplicationId"))
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/loan/reject", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("reason") != "low score" {
			t.Errorf("reason = %q", q.Get("reason"))
		}
		io.WriteString(w, "Loan rejected: low score")
	})

	c, _ := newTestClient(t, mux)

	msg, err := c.Approve(context.Background(), "tok", "10")
	if err != nil || msg != defaultApproveMessage {
		t.Errorf("Approve = %q, %v", msg, err)
	}

	msg, err = c.Reject(context.Background(), "tok", "10", "low score")
	if err != nil || msg != "Loan rejected: low score" {
		t.Errorf("Reject = %q, %v", msg, err)
	}
}

func TestClient_Reject_OmitsEmptyReason(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/loan/reject", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("reason") {
			t.Error("空の理由は送信してはならない")
		}
	})

	c, _ := newTestClient(t, mux)
	msg, err := c.Reject(context.Background(), "tok", "10", "")
	if err != nil {
		t.Fatalf("Reject がエラーを返した: %v", err)
	}
	if msg != defaultRejectMessage {
		t.Errorf("msg = %q, want %q", msg, defaultRejectMessage)
	}
}

func TestClient_PasswordEndpoints(t *testing.T) {
	var got []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, "register")
	})
	mux.HandleFunc("POST /auth/forgotPassword", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, "forgot")
		io.WriteString(w, "If the email exists, a link was sent")
	})
	mux.HandleFunc("POST /auth/resetPassword", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, "reset")
	})
	mux.HandleFunc("PUT /auth/updatePassword", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Error("updatePassword はトークンを送信するべき")
		}
		got = append(got, "update")
	})

	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	if err := c.Register(ctx, model.Registration{Username: "bob"}); err != nil {
		t.Errorf("Register: %v", err)
	}
	msg, err := c.ForgotPassword(ctx, "b@x.io")
	if err != nil || msg != "If the email exists, a link was sent" {
		t.Errorf("ForgotPassword = %q, %v", msg, err)
	}
	if err := c.ResetPassword(ctx, "reset-tok", "newpw"); err != nil {
		t.Errorf("ResetPassword: %v", err)
	}
	if err := c.UpdatePassword(ctx, "tok", "old", "new"); err != nil {
		t.Errorf("UpdatePassword: %v", err)
	}

	want := []string{"register", "forgot", "reset", "update"}
	if len(got) != len(want) {
		t.Fatalf("呼び出し = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("呼び出し[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
