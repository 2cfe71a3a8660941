package access

import (
	"strings"

	"github.com/hitoshi/loandesk/internal/model"
)

// fallbackName は表示名が得られない場合の固定表示。
const fallbackName = "User"

// NameFields は表示名の算出に使う名前フィールド群。
// バックエンドやキャッシュによって存在するフィールドが異なるため、すべて任意。
type NameFields struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	FirstNameSnake string `json:"first_name"`
	LastNameSnake  string `json:"last_name"`
	FullName       string `json:"fullName"`
	Name           string `json:"name"`
	Username       string `json:"username"`
}

// NameFieldsFromProfile はProfileから表示名用フィールドを取り出す。
func NameFieldsFromProfile(p *model.Profile) *NameFields {
	if p == nil {
		return nil
	}
	return &NameFields{FullName: p.FullName, Username: p.Username}
}

// DisplayName は画面に表示するユーザー名を返す。
// 姓名ペア → 単一の氏名 → ユーザー名 → "User" の順に採用する。
func DisplayName(n *NameFields) string {
	if n == nil {
		return fallbackName
	}

	first := strings.TrimSpace(firstNonEmpty(n.FirstName, n.FirstNameSnake))
	last := strings.TrimSpace(firstNonEmpty(n.LastName, n.LastNameSnake))
	if pair := strings.TrimSpace(first + " " + last); pair != "" {
		return pair
	}

	if single := strings.TrimSpace(firstNonEmpty(n.FullName, n.Name)); single != "" {
		return single
	}

	if username := strings.TrimSpace(n.Username); username != "" {
		return username
	}

	return fallbackName
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
