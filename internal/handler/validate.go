package handler

import (
	"regexp"
	"strings"

	"github.com/hitoshi/loandesk/internal/model"
)

// minPasswordLength は新しいパスワードの最小文字数。
const minPasswordLength = 8

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`\d`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// requireText は空白のみの入力をフィールドの入力エラーとして返す。
func requireText(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return model.NewValidationError(field, message)
	}
	return nil
}

// validateRegistration は新規登録フォームを検証する。最初に見つかったエラーを返す。
func validateRegistration(reg model.Registration, confirmPassword string) error {
	if err := requireText("fullName", reg.FullName, "Full name is required"); err != nil {
		return err
	}
	if !emailPattern.MatchString(strings.TrimSpace(reg.Email)) {
		return model.NewValidationError("email", "Please enter a valid email address")
	}
	if err := requireText("username", reg.Username, "Username is required"); err != nil {
		return err
	}
	if !strongPassword(reg.Password) {
		return model.NewValidationError("password", "Password does not meet requirements")
	}
	if reg.Password != confirmPassword {
		return model.NewValidationError("confirmPassword", "Passwords do not match")
	}
	return nil
}

// strongPassword は8文字以上で大文字・小文字・数字・記号をそれぞれ含むかを返す。
func strongPassword(p string) bool {
	return len(p) >= minPasswordLength &&
		upperPattern.MatchString(p) &&
		lowerPattern.MatchString(p) &&
		digitPattern.MatchString(p) &&
		specialPattern.MatchString(p)
}

// validateNewPassword はパスワード変更・再設定の新しいパスワードを検証する。
func validateNewPassword(newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return model.NewValidationError("confirmPassword", "Passwords do not match")
	}
	if len(newPassword) < minPasswordLength {
		return model.NewValidationError("newPassword", "New password must be at least 8 characters long")
	}
	return nil
}
