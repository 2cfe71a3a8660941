package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTextSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"プレーンテキストはそのまま", "Insufficient income", "Insufficient income"},
		{"タグを除去", "<b>Low</b> credit score", "Low credit score"},
		{"scriptは中身ごと除去", `Bad<script>alert("x")</script> history`, "Bad history"},
		{"イベント属性ごと除去", `<img src=x onerror=alert(1)>Missing docs`, "Missing docs"},
		{"空白をまとめる", "  too\n\tmany   spaces ", "too many spaces"},
		{"記号は文字として残る", "Debt & income < 2", "Debt & income < 2"},
		{"日本語", "<p>収入証明が不足しています</p>", "収入証明が不足しています"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Truncates(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize(strings.Repeat("あ", MaxTextLength+50))
	if n := utf8.RuneCountInString(got); n != MaxTextLength {
		t.Errorf("文字数 = %d, want %d", n, MaxTextLength)
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{
		"<i>Rejected</i> due to &amp; policy",
		"Plain reason",
		"  spaced\n reason ",
	}
	for _, in := range inputs {
		once := sanitizer.Sanitize(in)
		if twice := sanitizer.Sanitize(once); twice != once {
			t.Errorf("冪等でない: %q -> %q -> %q", in, once, twice)
		}
	}
}
