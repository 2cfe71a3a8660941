// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials はログイン時にバックエンドが資格情報を拒否したことを表す。
// トークンが見つからないログイン応答もこのエラーとして扱う。
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUnauthorized は保護APIがベアラートークンを拒否したことを表す（401）。
var ErrUnauthorized = errors.New("unauthorized")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, business, system
	Action   string // ユーザー向け対処方法
	Field    string // 入力エラーの対象フィールド（validationのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeBackendRejected    = "BACKEND_REJECTED"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodePasswordUpdate     = "PASSWORD_UPDATE_FAILED"
	ErrCodeAccountNotLinked   = "ACCOUNT_NOT_LINKED"
	ErrCodeDecisionInFlight   = "DECISION_IN_FLIGHT"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRF               = "CSRF_VALIDATION_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError はログイン失敗（資格情報不一致）エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewUnauthorizedError は未ログイン・セッション切れのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError はロール不一致・口座未確認による拒否エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
		Action:   "表示された画面に移動してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
// fieldはUIが該当入力欄の横にメッセージを表示するために使う。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Field:    field,
	}
}

// NewBackendRejectedError はバックエンドが業務エラーとして返したメッセージをそのまま包む。
// メッセージは再解釈せずに表示する。
func NewBackendRejectedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendRejected,
		Message:  message,
		Category: "business",
		Action:   "表示された内容を確認してください。",
	}
}

// NewBackendUnavailableError は通信失敗時の汎用エラーを生成する。詳細は含めない。
func NewBackendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  "Request failed. Please try again.",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPasswordUpdateError はパスワード変更失敗エラーを生成する。
// どちらの資格情報が誤っていたかは区別しない。
func NewPasswordUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordUpdate,
		Message:  "Incorrect password or server error",
		Category: "auth",
		Action:   "現在のパスワードを確認して再度お試しください。",
	}
}

// NewAccountNotLinkedError は口座未連携時のエラーを生成する。
func NewAccountNotLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotLinked,
		Message:  "No verified bank account is linked to this profile",
		Category: "validation",
		Action:   "口座連携を完了してください。",
		Field:    "accountNumber",
	}
}

// NewDecisionInFlightError は同一申請への審査操作が処理中の場合のエラーを生成する。
func NewDecisionInFlightError(applicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeDecisionInFlight,
		Message:  fmt.Sprintf("A decision for application %s is already in progress", applicationID),
		Category: "business",
		Action:   "処理の完了を待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Malformed request body",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong. Please try again.",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
