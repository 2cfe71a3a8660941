package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/loandesk/internal/session"
)

// AccountServiceInterface は口座確認ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Send(ctx context.Context, c *session.Container, accountNumber string) (string, error)
	Confirm(ctx context.Context, c *session.Container, accountNumber string, amount decimal.Decimal) error
}

// AccountHandler は少額入金による口座確認のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

type sendDepositRequest struct {
	AccountNumber string `json:"accountNumber"`
}

// Send は少額入金を依頼する。
// POST /api/account/send
func (h *AccountHandler) Send(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	var req sendDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.service.Send(r.Context(), c, req.AccountNumber)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

type confirmDepositRequest struct {
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
}

// Confirm は入金額を照合し、成功時は更新後のログイン状態を返す。
// POST /api/account/confirm
func (h *AccountHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	var req confirmDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.Confirm(r.Context(), c, req.AccountNumber, req.Amount); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(c))
}
