// Package session はログイン状態のコンテナを提供する。
// トークンとプロフィールのキャッシュをブラウザごとのストレージに保存し、
// ログイン・ログアウト・復元・部分更新の唯一の書き込み経路となる。
package session

import (
	"context"
	"encoding/json"
	"fmt"
)

// ストレージのキー。値はいずれも文字列（JSONまたはトークン文字列）。
const (
	KeyToken               = "token"
	KeyAuthUser            = "auth_user"
	KeyPendingApplications = "pending_applications"
)

// Storage はクライアントセッション1つ分のキーバリューストア。
type Storage interface {
	// Get はキーの値を返す。存在しない場合はokがfalse。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StorageRepository はクライアントセッションIDをまたいで値を保持する永続化層。
// repository.StorageRepositoryの部分集合として定義する。
type StorageRepository interface {
	GetValue(ctx context.Context, sessionID, key string) (string, bool, error)
	SetValue(ctx context.Context, sessionID, key, value string) error
	DeleteValue(ctx context.Context, sessionID, key string) error
}

// scopedStorage はStorageRepositoryを1つのクライアントセッションに束縛する。
type scopedStorage struct {
	repo      StorageRepository
	sessionID string
}

// NewScopedStorage はsessionIDの名前空間に限定したStorageを返す。
func NewScopedStorage(repo StorageRepository, sessionID string) Storage {
	return &scopedStorage{repo: repo, sessionID: sessionID}
}

func (s *scopedStorage) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.GetValue(ctx, s.sessionID, key)
}

func (s *scopedStorage) Set(ctx context.Context, key, value string) error {
	return s.repo.SetValue(ctx, s.sessionID, key, value)
}

func (s *scopedStorage) Delete(ctx context.Context, key string) error {
	return s.repo.DeleteValue(ctx, s.sessionID, key)
}

// GetJSON はキーの値をJSONとしてvにデコードする。
// キーが存在しない場合はfalseを返す。デコードに失敗した値は存在しないものとして扱う。
func GetJSON(ctx context.Context, st Storage, key string, v any) (bool, error) {
	raw, ok, err := st.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON はvをJSONにエンコードしてキーに保存する。
func SetJSON(ctx context.Context, st Storage, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := st.Set(ctx, key, string(buf)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
