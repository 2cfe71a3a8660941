// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/loandesk/internal/model"
)

// ClientSessionRepository はクライアントセッション（client_id Cookieの発行単位）の永続化インターフェース。
type ClientSessionRepository interface {
	// Create はクライアントセッションを作成する。
	Create(ctx context.Context, session *model.ClientSession) error
	// FindByID は指定IDのクライアントセッションを取得する。期限切れまたは存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ClientSession, error)
	// Touch は有効期限を延長する。
	Touch(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのクライアントセッションを削除する。
	// 関連するclient_storageはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// StorageRepository はクライアントセッションごとのキーバリュー値の永続化インターフェース。
// session.StorageRepository を満たす。
type StorageRepository interface {
	// GetValue は値を取得する。存在しない場合はokがfalse。
	GetValue(ctx context.Context, sessionID, key string) (value string, ok bool, err error)
	// SetValue は値を作成または上書きする。
	SetValue(ctx context.Context, sessionID, key, value string) error
	// DeleteValue は値を削除する。存在しない場合もエラーにしない。
	DeleteValue(ctx context.Context, sessionID, key string) error
}
