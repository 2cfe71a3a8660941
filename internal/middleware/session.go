// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

const clientCookieName = "client_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	clientIDContextKey  = contextKey("client_id")
	containerContextKey = contextKey("session_container")
)

// ClientSessionStore はクライアントセッションの検索・発行に必要なインターフェース。
// repository.ClientSessionRepositoryの部分集合として定義する。
type ClientSessionStore interface {
	Create(ctx context.Context, s *model.ClientSession) error
	FindByID(ctx context.Context, id string) (*model.ClientSession, error)
	Touch(ctx context.Context, id string, expiresAt time.Time) error
}

// ClientSessionConfig はクライアントセッションCookieの設定。
type ClientSessionConfig struct {
	MaxAge       time.Duration
	CookieSecure bool
	CookieDomain string
}

// NewClientSessionMiddleware はclient_id Cookieからクライアントセッションを特定し、
// そのストレージに束縛したセッションコンテナをリクエストコンテキストに注入する。
// Cookieがない、または期限切れの場合は新しいクライアントセッションを発行する。
// 残り有効期間が半分を切ったセッションは期限を延長する。
func NewClientSessionMiddleware(
	store ClientSessionStore,
	storage session.StorageRepository,
	auth session.Authenticator,
	config ClientSessionConfig,
	logger *slog.Logger,
) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// 1. 既存のクライアントセッションを検索
			var current *model.ClientSession
			if cookie, err := r.Cookie(clientCookieName); err == nil && cookie.Value != "" {
				found, err := store.FindByID(ctx, cookie.Value)
				if err != nil {
					logger.Error("failed to find client session", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				current = found
			}

			// 2. なければ発行、期限が近ければ延長
			now := time.Now()
			switch {
			case current == nil:
				current = &model.ClientSession{
					ID:        uuid.NewString(),
					ExpiresAt: now.Add(config.MaxAge),
					CreatedAt: now,
				}
				if err := store.Create(ctx, current); err != nil {
					logger.Error("failed to create client session", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				setClientCookie(w, current.ID, config)
			case current.ExpiresAt.Sub(now) < config.MaxAge/2:
				expiresAt := now.Add(config.MaxAge)
				if err := store.Touch(ctx, current.ID, expiresAt); err != nil {
					logger.Warn("failed to extend client session",
						slog.String("client_id", current.ID),
						slog.String("error", err.Error()),
					)
				} else {
					setClientCookie(w, current.ID, config)
				}
			}
			setLogClientID(ctx, current.ID)

			// 3. ストレージからログイン状態を読み込む
			container := session.NewContainer(session.NewScopedStorage(storage, current.ID), auth, logger)
			if err := container.Load(ctx); err != nil {
				logger.Error("failed to load session container",
					slog.String("client_id", current.ID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithContainer(ctx, current.ID, container)))
		})
	}
}

func setClientCookie(w http.ResponseWriter, id string, config ClientSessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookieName,
		Value:    id,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   int(config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ContainerFromContext はリクエストコンテキストからセッションコンテナを取得する。
// クライアントセッションミドルウェアを通過したリクエストでのみ有効。
func ContainerFromContext(ctx context.Context) (*session.Container, bool) {
	c, ok := ctx.Value(containerContextKey).(*session.Container)
	return c, ok && c != nil
}

// ClientIDFromContext はリクエストコンテキストからクライアントセッションIDを取得する。
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDContextKey).(string)
	return id
}

// ContextWithContainer はコンテキストにクライアントセッションIDとコンテナを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithContainer(ctx context.Context, clientID string, c *session.Container) context.Context {
	ctx = context.WithValue(ctx, clientIDContextKey, clientID)
	return context.WithValue(ctx, containerContextKey, c)
}
