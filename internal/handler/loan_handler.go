package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/loandesk/internal/emi"
	"github.com/hitoshi/loandesk/internal/loan"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// LoanServiceInterface はローンハンドラーが必要とするサービスインターフェース。
type LoanServiceInterface interface {
	Rates() emi.RateTable
	Quote(purpose string, principal decimal.Decimal, termMonths int) (emi.QuoteResult, decimal.Decimal)
	Apply(ctx context.Context, c *session.Container, in loan.ApplyInput) (*loan.ApplyResult, error)
	Repay(ctx context.Context, c *session.Container, amount decimal.Decimal) (string, error)
	Applications(ctx context.Context, c *session.Container) ([]model.LoanApplication, error)
	ActiveLoans(ctx context.Context, c *session.Container) ([]model.ActiveLoan, error)
}

// LoanHandler はローン試算・申請・返済のHTTPハンドラー。
type LoanHandler struct {
	service LoanServiceInterface
}

// NewLoanHandler はLoanHandlerを生成する。
func NewLoanHandler(service LoanServiceInterface) *LoanHandler {
	return &LoanHandler{service: service}
}

type purposeResponse struct {
	Purpose           string          `json:"purpose"`
	AnnualRatePercent decimal.Decimal `json:"annualRatePercent"`
}

// Purposes はローン目的と適用金利の一覧を返す。
// GET /api/loan-purposes
func (h *LoanHandler) Purposes(w http.ResponseWriter, r *http.Request) {
	rates := h.service.Rates()
	purposes := emi.Purposes()

	resp := make([]purposeResponse, len(purposes))
	for i, p := range purposes {
		resp[i] = purposeResponse{Purpose: p, AnnualRatePercent: rates.Rate(p)}
	}
	writeJSON(w, http.StatusOK, resp)
}

type quoteResponse struct {
	emi.QuoteResult
	AnnualRatePercent decimal.Decimal `json:"annualRatePercent"`
}

// Quote は返済額を試算する。解釈できない入力は0として扱い、エラーにはしない。
// GET /api/quote?purpose=Car&amount=25000&term=12
func (h *LoanHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil {
		amount = decimal.Zero
	}
	term, err := strconv.Atoi(strings.TrimSpace(q.Get("term")))
	if err != nil {
		term = 0
	}

	result, rate := h.service.Quote(q.Get("purpose"), amount, term)
	writeJSON(w, http.StatusOK, quoteResponse{QuoteResult: result, AnnualRatePercent: rate})
}

type applyRequest struct {
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Purpose       string          `json:"purpose"`
	TermMonths    int             `json:"termMonths"`
}

// Apply はローンを申請する。
// POST /api/loans
func (h *LoanHandler) Apply(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	var req applyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.Apply(r.Context(), c, loan.ApplyInput{
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		Purpose:       req.Purpose,
		TermMonths:    req.TermMonths,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

type repayRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Repay は連携済み口座から返済する。
// POST /api/loans/repay
func (h *LoanHandler) Repay(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	var req repayRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.service.Repay(r.Context(), c, req.Amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// Applications は申請一覧を返す。
// GET /api/loans/applications
func (h *LoanHandler) Applications(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	apps, err := h.service.Applications(r.Context(), c)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if apps == nil {
		apps = []model.LoanApplication{}
	}
	writeJSON(w, http.StatusOK, apps)
}

// ActiveLoans は返済中のローン一覧を返す。
// GET /api/loans/active
func (h *LoanHandler) ActiveLoans(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	loans, err := h.service.ActiveLoans(r.Context(), c)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if loans == nil {
		loans = []model.ActiveLoan{}
	}
	writeJSON(w, http.StatusOK, loans)
}
