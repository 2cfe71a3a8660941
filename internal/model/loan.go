// Package model はドメインモデルを定義する。
package model

import "github.com/shopspring/decimal"

// ApplicationStatus はローン申請の審査状態を表す。
type ApplicationStatus string

const (
	// ApplicationPending は審査待ち。
	ApplicationPending ApplicationStatus = "pending"
	// ApplicationApproved は承認済み。
	ApplicationApproved ApplicationStatus = "approved"
	// ApplicationRejected は却下済み。
	ApplicationRejected ApplicationStatus = "rejected"
)

// LoanApplication はローン申請を表す。
type LoanApplication struct {
	ID            string            `json:"id"`
	CustomerName  string            `json:"customerName,omitempty"`
	AccountNumber string            `json:"accountNumber"`
	Purpose       string            `json:"purpose"`
	Amount        decimal.Decimal   `json:"amount"`
	TermMonths    int               `json:"termMonths"`
	EMI           decimal.Decimal   `json:"emi"`
	TotalEMI      decimal.Decimal   `json:"totalEmi"`
	Status        ApplicationStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	AppliedDate   string            `json:"appliedDate,omitempty"`
}

// ActiveLoan は返済中のローンを表す。
type ActiveLoan struct {
	ID              string          `json:"id"`
	AccountNumber   string          `json:"accountNumber"`
	TotalLoan       decimal.Decimal `json:"totalLoan"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	TermMonths      int             `json:"termMonths"`
	EMI             decimal.Decimal `json:"emi"`
	LoanDate        string          `json:"loanDate,omitempty"`
	DueDate         string          `json:"dueDate,omitempty"`
}

// LoanSummary は銀行側から見た既存ローンの状況。
type LoanSummary struct {
	Paid      decimal.Decimal `json:"paid"`
	Remaining decimal.Decimal `json:"remaining"`
	Total     decimal.Decimal `json:"total"`
}

// PendingApplication は審査待ち申請と申請者の既存ローン状況の組。
type PendingApplication struct {
	Application LoanApplication `json:"application"`
	Summary     LoanSummary     `json:"summary"`
}

// LoanRequest はローン申請の送信内容。
type LoanRequest struct {
	AccountNumber string
	Amount        decimal.Decimal
	Purpose       string
	TermMonths    int
}

// Registration は新規ユーザー登録の送信内容。
type Registration struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
