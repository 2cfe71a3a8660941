// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は審査担当者が入力する自由記述（却下理由など）から
// マークアップを取り除き、バックエンドへ送れるプレーンテキストにする。
// bluemondayのStrictPolicyを使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLength はサニタイズ後に保持する最大文字数（rune数）。
const MaxTextLength = 500

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はタグを除去し、連続する空白を1つにまとめたテキストを返す。
	// MaxTextLength を超える部分は切り捨てる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は自由記述テキストをプレーンテキストに変換する。
func (s *textSanitizer) Sanitize(raw string) string {
	// 1. タグを除去（StrictPolicyは文字参照をエスケープして返す）
	stripped := html.UnescapeString(s.policy.Sanitize(raw))

	// 2. 改行・タブを含む連続空白を1つにまとめる
	text := strings.Join(strings.Fields(stripped), " ")

	// 3. 長さを制限
	if utf8.RuneCountInString(text) > MaxTextLength {
		text = strings.TrimSpace(string([]rune(text)[:MaxTextLength]))
	}
	return text
}
