package middleware

import (
	"net/http"
	"strings"

	"github.com/hitoshi/loandesk/internal/model"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsMaxAge       = "600"
)

// NewCORSMiddleware はSPAのオリジンだけにCookie付きのクロスオリジン通信を許可する。
// Originが一致しないリクエストにはCORSヘッダーを付けず、そのプリフライトは403とする。
// Originヘッダーのない同一オリジン・サーバー間の呼び出しはそのまま通す。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowedOrigin = strings.TrimRight(allowedOrigin, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if origin != "" && !strings.EqualFold(origin, allowedOrigin) {
				if preflight {
					WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
						Code:     model.ErrCodeForbidden,
						Message:  "Origin not allowed",
						Category: "auth",
						Action:   "許可されたオリジンからアクセスしてください。",
					})
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if preflight {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
