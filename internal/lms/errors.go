package lms

import (
	"fmt"

	"github.com/hitoshi/loandesk/internal/model"
)

// ErrTokenNotFound はログイン応答のどこからもトークンを取り出せなかったことを表す。
// 認証失敗として扱うため model.ErrInvalidCredentials をラップする。
var ErrTokenNotFound = fmt.Errorf("no bearer token in login response: %w", model.ErrInvalidCredentials)

// TransportError はバックエンドとの通信自体が失敗したことを表す。
// 利用者には詳細を出さず汎用メッセージに変換する。
type TransportError struct {
	Endpoint string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("lms %s: transport failure: %v", e.Endpoint, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError はバックエンドが2xx以外のステータスを返したことを表す。
// Messageにはバックエンドが返した本文をそのまま保持する。
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("lms %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsClientError はバックエンドが業務エラー（4xx）を返したかどうかを返す。
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
