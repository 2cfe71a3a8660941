// Package account は少額入金による銀行口座の確認を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// Backend は口座確認に必要なバックエンドAPI。lms.Clientの部分集合として定義する。
type Backend interface {
	SendMicroDeposit(ctx context.Context, token, accountNumber string) (string, error)
	ConfirmMicroDeposit(ctx context.Context, token, accountNumber string, amount decimal.Decimal) error
}

// Service は口座確認のサービス層。
type Service struct {
	backend Backend
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(backend Backend, logger *slog.Logger) *Service {
	return &Service{backend: backend, logger: logger}
}

// Send は口座への少額入金を依頼し、バックエンドのメッセージを返す。
func (s *Service) Send(ctx context.Context, c *session.Container, accountNumber string) (string, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return "", model.NewValidationError("accountNumber", "Account number is required")
	}

	msg, err := s.backend.SendMicroDeposit(ctx, c.Token(), accountNumber)
	if err != nil {
		return "", fmt.Errorf("少額入金の依頼に失敗しました: %w", err)
	}
	return msg, nil
}

// Confirm は入金額を照合する。成功した場合に限り、セッションの口座を確認済みに更新する。
func (s *Service) Confirm(ctx context.Context, c *session.Container, accountNumber string, amount decimal.Decimal) error {
	// 1. 入力検証（通信前）
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return model.NewValidationError("accountNumber", "Account number is required")
	}
	if !amount.IsPositive() {
		return model.NewValidationError("amount", "Enter the deposited amount")
	}

	// 2. バックエンドで照合
	if err := s.backend.ConfirmMicroDeposit(ctx, c.Token(), accountNumber, amount); err != nil {
		return fmt.Errorf("少額入金の照合に失敗しました: %w", err)
	}

	// 3. 確認済み状態をセッションに反映
	verified := true
	patch := model.ProfilePatch{
		AccountVerified:   &verified,
		BankAccountNumber: &accountNumber,
	}
	if err := c.Update(ctx, patch); err != nil {
		return fmt.Errorf("セッションの更新に失敗しました: %w", err)
	}

	s.logger.Info("bank account verified",
		slog.String("user_id", profileID(c)),
	)
	return nil
}

func profileID(c *session.Container) string {
	if p := c.Profile(); p != nil {
		return p.ID
	}
	return ""
}
