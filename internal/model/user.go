// Package model はドメインモデルを定義する。
package model

import "time"

// Role はクライアント側のロールを表す。
type Role string

const (
	// RoleAdmin は審査担当者。
	RoleAdmin Role = "admin"
	// RoleCustomer は借り手。
	RoleCustomer Role = "customer"
)

// バックエンドのロール表記。
const (
	WireRoleAdmin = "ROLE_ADMIN"
	WireRoleUser  = "ROLE_USER"
)

// MapRole はバックエンドのロール表記をクライアントのロールに変換する。
// ROLE_ADMIN のみ admin、それ以外はすべて customer。逆変換は提供しない。
func MapRole(wire string) Role {
	if wire == WireRoleAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

// Profile はクライアントが把握しているログインユーザーを表す。
// roleとaccountVerifiedはバックエンドの値のみが正となる。
type Profile struct {
	ID                string `json:"id"`
	FullName          string `json:"fullName"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	Role              Role   `json:"role"`
	AccountVerified   bool   `json:"accountVerified"`
	BankAccountNumber string `json:"bankAccountNumber,omitempty"`
}

// ProfilePatch はProfileへの部分更新を表す。nilのフィールドは変更しない。
type ProfilePatch struct {
	FullName          *string
	Email             *string
	AccountVerified   *bool
	BankAccountNumber *string
}

// Apply はpatchをpへ浅くマージした新しいProfileを返す。pは変更しない。
func (patch ProfilePatch) Apply(p Profile) Profile {
	if patch.FullName != nil {
		p.FullName = *patch.FullName
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.AccountVerified != nil {
		p.AccountVerified = *patch.AccountVerified
	}
	if patch.BankAccountNumber != nil {
		p.BankAccountNumber = *patch.BankAccountNumber
	}
	return p
}

// ClientSession はブラウザごとのストレージ名前空間を表す。
// Cookieのclient_idで識別され、トークンとプロフィールのキャッシュを保持する。
type ClientSession struct {
	ID        string
	ExpiresAt time.Time
	CreatedAt time.Time
}
