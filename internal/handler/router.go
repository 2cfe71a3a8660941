package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Recorder はハンドラーとミドルウェアが使うメトリクスの記録先。metrics.Collectorが満たす。
type Recorder interface {
	LoginRecorder
	ReviewRecorder
	middleware.GateRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	HealthChecker HealthChecker
	Metrics       Recorder
	MetricsRoute  http.Handler

	// ミドルウェア依存
	ClientSessions    middleware.ClientSessionStore
	Storage           session.StorageRepository
	Authenticator     session.Authenticator
	SessionConfig     middleware.ClientSessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	// SecureTransport はHTTPS配信時にtrueとし、HSTSヘッダーを付ける。
	SecureTransport bool

	// サービス
	Recovery      AccountRecoveryService
	LoanService   LoanServiceInterface
	Account       AccountServiceInterface
	ReviewService ReviewServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → CORS → ClientSession → RateLimit(General) → CSRF → Gate
//
// ヘルスチェック、メトリクス、CSRFトークン、試算はクライアントセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecureTransport))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.Recovery, deps.Metrics, deps.Logger)
	loanHandler := NewLoanHandler(deps.LoanService)
	accountHandler := NewAccountHandler(deps.Account)
	adminHandler := NewAdminHandler(deps.ReviewService, deps.Metrics)

	gate := func(rule middleware.GateRule) func(http.Handler) http.Handler {
		return middleware.NewGateMiddleware(rule, deps.Metrics)
	}

	// --- クライアントセッション不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsRoute != nil {
		r.Handle("/metrics", deps.MetricsRoute)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	r.Get("/api/quote", loanHandler.Quote)
	r.Get("/api/loan-purposes", loanHandler.Purposes)

	// --- クライアントセッションが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientSessionMiddleware(
			deps.ClientSessions, deps.Storage, deps.Authenticator, deps.SessionConfig, deps.Logger,
		))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/session", authHandler.Session)
		r.Get("/api/access", authHandler.Access)

		r.Route("/api/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Post("/register", authHandler.Register)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)

			r.With(gate(middleware.GateRule{})).Put("/password", authHandler.UpdatePassword)
		})

		// 口座確認（顧客）
		r.Route("/api/account", func(r chi.Router) {
			r.Use(gate(middleware.GateRule{Role: model.RoleCustomer}))
			r.Post("/send", accountHandler.Send)
			r.Post("/confirm", accountHandler.Confirm)
		})

		// ローン（口座確認済みの顧客）
		r.Route("/api/loans", func(r chi.Router) {
			r.Use(gate(middleware.GateRule{Role: model.RoleCustomer, RequireVerification: true}))
			r.Post("/", loanHandler.Apply)
			r.Post("/repay", loanHandler.Repay)
			r.Get("/applications", loanHandler.Applications)
			r.Get("/active", loanHandler.ActiveLoans)
		})

		// 審査（管理者）
		r.Route("/api/admin/applications", func(r chi.Router) {
			r.Use(gate(middleware.GateRule{Role: model.RoleAdmin}))
			r.Get("/", adminHandler.ListPending)
			r.Post("/{id}/approve", adminHandler.Approve)
			r.Post("/{id}/reject", adminHandler.Reject)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
