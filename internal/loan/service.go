// Package loan は顧客向けのローン申請・返済・一覧を提供する。
package loan

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/loandesk/internal/emi"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// Backend はローン操作に必要なバックエンドAPI。lms.Clientの部分集合として定義する。
type Backend interface {
	ApplyLoan(ctx context.Context, token string, req model.LoanRequest) (string, error)
	RepayLoan(ctx context.Context, token, accountNumber string, amount decimal.Decimal) (string, error)
	ListApplications(ctx context.Context, token, accountNumber string) ([]model.LoanApplication, error)
	ListActiveLoans(ctx context.Context, token, accountNumber string) ([]model.ActiveLoan, error)
}

// ApplyInput はローン申請フォームの入力。AccountNumberが空の場合は連携済み口座を使う。
type ApplyInput struct {
	AccountNumber string
	Amount        decimal.Decimal
	Purpose       string
	TermMonths    int
}

// ApplyResult は申請結果。Messageはバックエンドの文言をそのまま保持する。
type ApplyResult struct {
	Message string          `json:"message"`
	Quote   emi.QuoteResult `json:"quote"`
	Rate    decimal.Decimal `json:"annualRatePercent"`
}

// Service はローン操作のサービス層。
type Service struct {
	backend Backend
	rates   emi.RateTable
}

// NewService はServiceの新しいインスタンスを生成する。ratesがnilの場合は既定の金利表を使う。
func NewService(backend Backend, rates emi.RateTable) *Service {
	if rates == nil {
		rates = emi.DefaultRateTable()
	}
	return &Service{backend: backend, rates: rates}
}

// Rates は使用中の金利表を返す。
func (s *Service) Rates() emi.RateTable {
	return s.rates
}

// Quote は用途の金利で返済額の試算を行う。不正な入力の場合はすべて0となる。
func (s *Service) Quote(purpose string, principal decimal.Decimal, termMonths int) (emi.QuoteResult, decimal.Decimal) {
	rate := s.rates.Rate(purpose)
	return emi.Quote(emi.QuoteInput{
		Principal:         principal,
		AnnualRatePercent: rate,
		TermMonths:        termMonths,
	}), rate
}

// Apply は入力を検証してからローンを申請する。
func (s *Service) Apply(ctx context.Context, c *session.Container, in ApplyInput) (*ApplyResult, error) {
	// 1. 入力検証（通信前）
	account, err := resolveAccount(c, in.AccountNumber)
	if err != nil {
		return nil, err
	}
	purpose := strings.TrimSpace(in.Purpose)
	if !emi.IsPurpose(purpose) {
		return nil, model.NewValidationError("purpose", "Select a loan purpose")
	}
	if !in.Amount.IsPositive() {
		return nil, model.NewValidationError("amount", "Loan amount must be greater than zero")
	}
	if in.TermMonths <= 0 {
		return nil, model.NewValidationError("termMonths", "Term must be at least one month")
	}

	// 2. バックエンドに申請
	msg, err := s.backend.ApplyLoan(ctx, c.Token(), model.LoanRequest{
		AccountNumber: account,
		Amount:        in.Amount,
		Purpose:       purpose,
		TermMonths:    in.TermMonths,
	})
	if err != nil {
		return nil, fmt.Errorf("ローン申請に失敗しました: %w", err)
	}

	// 3. 試算結果を添えて返す
	quote, rate := s.Quote(purpose, in.Amount, in.TermMonths)
	return &ApplyResult{Message: msg, Quote: quote, Rate: rate}, nil
}

// Repay は連携済み口座のローンを返済する。
func (s *Service) Repay(ctx context.Context, c *session.Container, amount decimal.Decimal) (string, error) {
	account, err := resolveAccount(c, "")
	if err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", model.NewValidationError("amount", "Repayment amount must be greater than zero")
	}

	msg, err := s.backend.RepayLoan(ctx, c.Token(), account, amount)
	if err != nil {
		return "", fmt.Errorf("返済に失敗しました: %w", err)
	}
	return msg, nil
}

// Applications は連携済み口座の申請一覧を返す。
func (s *Service) Applications(ctx context.Context, c *session.Container) ([]model.LoanApplication, error) {
	account, err := resolveAccount(c, "")
	if err != nil {
		return nil, err
	}

	apps, err := s.backend.ListApplications(ctx, c.Token(), account)
	if err != nil {
		return nil, fmt.Errorf("申請一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// ActiveLoans は連携済み口座の返済中ローン一覧を返す。
func (s *Service) ActiveLoans(ctx context.Context, c *session.Container) ([]model.ActiveLoan, error) {
	account, err := resolveAccount(c, "")
	if err != nil {
		return nil, err
	}

	loans, err := s.backend.ListActiveLoans(ctx, c.Token(), account)
	if err != nil {
		return nil, fmt.Errorf("返済中ローンの取得に失敗しました: %w", err)
	}
	return loans, nil
}

// resolveAccount は明示された口座番号、なければセッションの連携済み口座番号を返す。
func resolveAccount(c *session.Container, explicit string) (string, error) {
	if account := strings.TrimSpace(explicit); account != "" {
		return account, nil
	}
	if p := c.Profile(); p != nil && p.BankAccountNumber != "" {
		return p.BankAccountNumber, nil
	}
	return "", model.NewAccountNotLinkedError()
}
