package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/loandesk/internal/access"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// GateRecorder はアクセス判定の記録先。metrics.Collectorが満たす。
type GateRecorder interface {
	RecordGateDecision(decision string)
}

// GateRule は保護ルートの要求条件。RoleがZero値の場合はロールを問わない。
type GateRule struct {
	Role                model.Role
	RequireVerification bool
}

// NewGateMiddleware はセッションコンテナの状態でルートへのアクセスを判定するミドルウェアを返す。
// クライアントセッションミドルウェアの後に配置する。
// プロフィールのキャッシュがなくトークンだけが残っている場合は、判定前に復元を試みる。
// 未ログインは401、ロール不一致・口座未確認は403で、いずれも誘導先をredirectに含める。
func NewGateMiddleware(rule GateRule, recorder GateRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ContainerFromContext(r.Context())
			if !ok {
				recorder.RecordGateDecision(access.RedirectLogin.String())
				WriteRedirectResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(), access.RouteLogin)
				return
			}

			if c.State() == session.StateRestoring {
				if err := c.Restore(r.Context()); err != nil {
					slog.Error("failed to restore session",
						slog.String("client_id", ClientIDFromContext(r.Context())),
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
			}

			decision := access.Authorize(c.Profile(), rule.Role, rule.RequireVerification)
			recorder.RecordGateDecision(decision.String())

			switch decision {
			case access.Allow:
				next.ServeHTTP(w, r)
			case access.RedirectLogin:
				WriteRedirectResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(), decision.Target())
			case access.RedirectVerifyAccount:
				WriteRedirectResponse(w, http.StatusForbidden,
					model.NewForbiddenError("Link and verify a bank account first"), decision.Target())
			default:
				WriteRedirectResponse(w, http.StatusForbidden,
					model.NewForbiddenError("You do not have access to this page"), decision.Target())
			}
		})
	}
}

type noopGateRecorder struct{}

func (noopGateRecorder) RecordGateDecision(string) {}

// NoopGateRecorder は記録を行わないGateRecorderを返す。
func NoopGateRecorder() GateRecorder {
	return noopGateRecorder{}
}
