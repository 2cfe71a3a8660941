package lms

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/loandesk/internal/model"
)

// バックエンドの応答形はエンドポイントごとに揺れがあるため、
// このファイルの型はパッケージ外に出さず、必ずmap関数でmodelの型に正規化する。

// flexNumber は数値・数値文字列・null のいずれでも受け付ける数値。
// 数値として解釈できない値は0として扱う。
type flexNumber struct {
	decimal.Decimal
}

// UnmarshalJSON はjson.Unmarshalerを実装する。解析エラーは返さない。
func (n *flexNumber) UnmarshalJSON(b []byte) error {
	n.Decimal = parseLooseDecimal(b)
	return nil
}

func parseLooseDecimal(b []byte) decimal.Decimal {
	raw := bytes.TrimSpace(b)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero
		}
	}

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// flexID は数値・文字列どちらのIDも文字列として受け付ける。
type flexID string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (id *flexID) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		*id = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*id = flexID(s)
	default:
		*id = flexID(raw)
	}
	return nil
}

type rawProfile struct {
	ID                flexID `json:"id"`
	FullName          string `json:"fullName"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	AccountVerified   bool   `json:"accountVerified"`
	BankAccountNumber string `json:"bankAccountNumber"`
}

type rawApplication struct {
	ID            flexID     `json:"id"`
	AccountNumber string     `json:"accountNumber"`
	Purpose       string     `json:"purpose"`
	TermMonths    flexNumber `json:"termMonths"`
	Status        string     `json:"status"`
	LoanAmount    flexNumber `json:"loanAmount"`
	EMIPerMonth   flexNumber `json:"emiPerMonth"`
	TotalEMI      flexNumber `json:"totalEmi"`
	AppliedDate   string     `json:"appliedDate"`
	CustomerName  string     `json:"customerName"`
	Reason        string     `json:"reason"`
}

type rawLoan struct {
	ID              flexID     `json:"id"`
	AccountNumber   string     `json:"accountNumber"`
	TotalLoan       flexNumber `json:"totalLoan"`
	RemainingAmount flexNumber `json:"remainingAmount"`
	TermMonths      flexNumber `json:"termMonths"`
	EMIAmount       flexNumber `json:"emiAmount"`
	LoanDate        string     `json:"loanDate"`
	DueDate         string     `json:"dueDate"`
}

type rawSummary struct {
	LoanPaid      flexNumber `json:"loanPaid"`
	LoanRemaining flexNumber `json:"loanRemaining"`
	TotalLoan     flexNumber `json:"totalLoan"`
}

type rawPending struct {
	Application *rawApplication `json:"application"`
	LoanSummary *rawSummary     `json:"loanSummary"`
}

// mapProfile はバックエンドのプロフィールをクライアントのProfileに変換する。
func mapProfile(p rawProfile) *model.Profile {
	return &model.Profile{
		ID:                string(p.ID),
		FullName:          p.FullName,
		Username:          p.Username,
		Email:             p.Email,
		Role:              model.MapRole(p.Role),
		AccountVerified:   p.AccountVerified,
		BankAccountNumber: p.BankAccountNumber,
	}
}

// mapStatus は申請状態を正規化する。未知の値は審査待ちとみなす。
func mapStatus(s string) model.ApplicationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved":
		return model.ApplicationApproved
	case "rejected":
		return model.ApplicationRejected
	default:
		return model.ApplicationPending
	}
}

func mapApplication(a rawApplication) model.LoanApplication {
	return model.LoanApplication{
		ID:            string(a.ID),
		CustomerName:  a.CustomerName,
		AccountNumber: a.AccountNumber,
		Purpose:       a.Purpose,
		Amount:        a.LoanAmount.Decimal,
		TermMonths:    int(a.TermMonths.IntPart()),
		EMI:           a.EMIPerMonth.Decimal,
		TotalEMI:      a.TotalEMI.Decimal,
		Status:        mapStatus(a.Status),
		Reason:        a.Reason,
		AppliedDate:   a.AppliedDate,
	}
}

func mapLoan(l rawLoan) model.ActiveLoan {
	return model.ActiveLoan{
		ID:              string(l.ID),
		AccountNumber:   l.AccountNumber,
		TotalLoan:       l.TotalLoan.Decimal,
		RemainingAmount: l.RemainingAmount.Decimal,
		TermMonths:      int(l.TermMonths.IntPart()),
		EMI:             l.EMIAmount.Decimal,
		LoanDate:        l.LoanDate,
		DueDate:         l.DueDate,
	}
}

// mapPending は審査待ち行を変換する。applicationを持たない行はfalseを返す。
func mapPending(p rawPending) (model.PendingApplication, bool) {
	if p.Application == nil {
		return model.PendingApplication{}, false
	}

	out := model.PendingApplication{
		Application: mapApplication(*p.Application),
		Summary: model.LoanSummary{
			Paid:      decimal.Zero,
			Remaining: decimal.Zero,
			Total:     decimal.Zero,
		},
	}
	if p.LoanSummary != nil {
		out.Summary = model.LoanSummary{
			Paid:      p.LoanSummary.LoanPaid.Decimal,
			Remaining: p.LoanSummary.LoanRemaining.Decimal,
			Total:     p.LoanSummary.TotalLoan.Decimal,
		}
	}
	return out, true
}

// decodeMessage は文字列を返すエンドポイントの本文をメッセージに変換する。
// JSON文字列リテラルは展開し、空の場合はfallbackを返す。
func decodeMessage(body []byte, fallback string) string {
	raw := bytes.TrimSpace(body)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			raw = []byte(strings.TrimSpace(s))
		}
	}
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}
