package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/loandesk/internal/lms"
	"github.com/hitoshi/loandesk/internal/model"
)

// State はコンテナの状態を表す。
type State string

const (
	// StateUnauthenticated はセッションなし。
	StateUnauthenticated State = "unauthenticated"
	// StateRestoring はトークンがありプロフィール取得待ち。
	StateRestoring State = "restoring"
	// StateAuthenticated はプロフィールが確定している。
	StateAuthenticated State = "authenticated"
	// StateError は復元に失敗した。未ログインとして扱う。
	StateError State = "error"
)

// ErrPasswordUpdate はパスワード変更の失敗を表す。
// 現在のパスワード誤りとサーバーエラーは区別しない。
var ErrPasswordUpdate = errors.New("incorrect password or server error")

// Authenticator はコンテナが利用するバックエンドの認証API。
// lms.Clientの部分集合として定義する。
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Profile(ctx context.Context, token string) (*model.Profile, error)
	UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) error
}

// Container はログイン状態を保持する。
// リクエストごとに生成し、並行利用はしない。
type Container struct {
	storage Storage
	auth    Authenticator
	logger  *slog.Logger
	now     func() time.Time

	state   State
	token   string
	profile *model.Profile
}

// NewContainer はContainerの新しいインスタンスを生成する。状態は未ログインから始まる。
func NewContainer(storage Storage, auth Authenticator, logger *slog.Logger) *Container {
	return &Container{
		storage: storage,
		auth:    auth,
		logger:  logger,
		now:     time.Now,
		state:   StateUnauthenticated,
	}
}

// State は現在の状態を返す。
func (c *Container) State() State {
	return c.state
}

// Authenticated はプロフィールが確定しているかどうかを返す。
func (c *Container) Authenticated() bool {
	return c.state == StateAuthenticated && c.profile != nil
}

// Profile は現在のプロフィールのコピーを返す。セッションがない場合はnil。
func (c *Container) Profile() *model.Profile {
	if c.profile == nil {
		return nil
	}
	p := *c.profile
	return &p
}

// Token は保存済みのベアラートークンを返す。
func (c *Container) Token() string {
	return c.token
}

// Storage はコンテナが使用するストレージを返す。
func (c *Container) Storage() Storage {
	return c.storage
}

// Load はストレージからトークンとプロフィールのキャッシュを同期的に読み込む。
// バックエンドには問い合わせない。期限切れのJWTは復元失敗として破棄する。
func (c *Container) Load(ctx context.Context) error {
	token, ok, err := c.storage.Get(ctx, KeyToken)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !ok || token == "" {
		c.reset(StateUnauthenticated)
		return nil
	}

	if exp, ok := lms.TokenExpiry(token); ok && !exp.After(c.now()) {
		c.logger.Info("stored token has expired", slog.Time("expired_at", exp))
		c.clear(ctx)
		c.reset(StateError)
		return nil
	}

	c.token = token
	var cached model.Profile
	found, err := GetJSON(ctx, c.storage, KeyAuthUser, &cached)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !found {
		c.profile = nil
		c.state = StateRestoring
		return nil
	}

	c.profile = &cached
	c.state = StateAuthenticated
	return nil
}

// Restore は起動時の復元を行う。
// 1. トークンがなければキャッシュを無視して未ログインとする
// 2. トークンがあればプロフィールを再取得して保存する
// 3. 再取得に失敗した場合はキャッシュがあればそれを使い、なければトークンを破棄する
func (c *Container) Restore(ctx context.Context) error {
	if err := c.Load(ctx); err != nil {
		return err
	}
	if c.token == "" {
		return nil
	}

	snapshot := c.profile
	c.state = StateRestoring

	profile, err := c.auth.Profile(ctx, c.token)
	if err != nil {
		if snapshot != nil {
			c.logger.Warn("profile refresh failed, using cached profile",
				slog.String("error", err.Error()),
			)
			c.profile = snapshot
			c.state = StateAuthenticated
			return nil
		}

		c.logger.Warn("session restore failed",
			slog.String("error", err.Error()),
		)
		c.clear(ctx)
		c.reset(StateError)
		return nil
	}

	if err := SetJSON(ctx, c.storage, KeyAuthUser, profile); err != nil {
		return err
	}
	c.profile = profile
	c.state = StateAuthenticated
	return nil
}

// Login はバックエンドで認証し、プロフィールを取得してからセッションを確立する。
// 資格情報の誤りやトークン欠落は (false, nil)、通信失敗は (false, err) を返す。
func (c *Container) Login(ctx context.Context, username, password string) (bool, error) {
	// 1. 資格情報を送信してトークンを取得
	token, err := c.auth.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			return false, nil
		}
		return false, err
	}

	// 2. トークンを保存
	if err := c.storage.Set(ctx, KeyToken, token); err != nil {
		return false, fmt.Errorf("failed to store token: %w", err)
	}

	// 3. プロフィールを取得。失敗した場合は保存したトークンを取り消す
	profile, err := c.auth.Profile(ctx, token)
	if err != nil {
		c.clear(ctx)
		c.reset(StateUnauthenticated)
		if rejectedCredentials(err) {
			return false, nil
		}
		return false, err
	}

	// 4. プロフィールを保存し、前のユーザーの審査一覧キャッシュを破棄
	if err := SetJSON(ctx, c.storage, KeyAuthUser, profile); err != nil {
		c.clear(ctx)
		c.reset(StateUnauthenticated)
		return false, err
	}
	if err := c.storage.Delete(ctx, KeyPendingApplications); err != nil {
		c.logger.Warn("failed to drop cached review list", slog.String("error", err.Error()))
	}

	c.token = token
	c.profile = profile
	c.state = StateAuthenticated
	return true, nil
}

// Logout はトークンとキャッシュを無条件に破棄する。失敗しない。
func (c *Container) Logout(ctx context.Context) {
	c.clear(ctx)
	c.reset(StateUnauthenticated)
}

// Update はプロフィールに部分更新を浅くマージして保存する。
// セッションがない場合は何もしない。
func (c *Container) Update(ctx context.Context, patch model.ProfilePatch) error {
	if c.profile == nil {
		return nil
	}

	merged := patch.Apply(*c.profile)
	if err := SetJSON(ctx, c.storage, KeyAuthUser, merged); err != nil {
		return err
	}
	c.profile = &merged
	return nil
}

// UpdatePassword は保存済みトークンでパスワードを変更する。セッションは変更しない。
// 失敗の原因にかかわらず ErrPasswordUpdate を返す。
func (c *Container) UpdatePassword(ctx context.Context, oldPassword, newPassword string) error {
	if c.token == "" {
		return ErrPasswordUpdate
	}
	if err := c.auth.UpdatePassword(ctx, c.token, oldPassword, newPassword); err != nil {
		c.logger.Info("password update failed", slog.String("error", err.Error()))
		return ErrPasswordUpdate
	}
	return nil
}

// clear はストレージからセッション関連のキーをすべて削除する。エラーはログのみ。
func (c *Container) clear(ctx context.Context) {
	for _, key := range []string{KeyToken, KeyAuthUser, KeyPendingApplications} {
		if err := c.storage.Delete(ctx, key); err != nil {
			c.logger.Warn("failed to clear session key",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *Container) reset(state State) {
	c.token = ""
	c.profile = nil
	c.state = state
}

// rejectedCredentials はログイン直後のプロフィール取得で401または403が返ったかどうかを返す。
func rejectedCredentials(err error) bool {
	if errors.Is(err, model.ErrUnauthorized) {
		return true
	}
	var se *lms.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusForbidden
}
