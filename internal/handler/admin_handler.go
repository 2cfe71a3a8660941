package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/review"
	"github.com/hitoshi/loandesk/internal/session"
)

// ReviewServiceInterface は審査ハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	Pending(ctx context.Context, st session.Storage, token string) ([]model.PendingApplication, error)
	Decide(ctx context.Context, st session.Storage, token, applicationID string, decision review.Decision, reason string) (*review.Outcome, error)
}

// ReviewRecorder は審査操作の記録先。
type ReviewRecorder interface {
	RecordReviewDecision(decision string, ok bool)
}

// AdminHandler は審査担当者向けのHTTPハンドラー。
type AdminHandler struct {
	service  ReviewServiceInterface
	recorder ReviewRecorder
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service ReviewServiceInterface, recorder ReviewRecorder) *AdminHandler {
	return &AdminHandler{service: service, recorder: recorder}
}

// ListPending は審査待ちの申請一覧を返す。
// GET /api/admin/applications
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	pending, err := h.service.Pending(r.Context(), c.Storage(), c.Token())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if pending == nil {
		pending = []model.PendingApplication{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// Approve は申請を承認する。
// POST /api/admin/applications/{id}/approve
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, review.DecisionApprove, "")
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject は申請を却下する。理由は任意。
// POST /api/admin/applications/{id}/reject
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	h.decide(w, r, review.DecisionReject, req.Reason)
}

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, decision review.Decision, reason string) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.Decide(r.Context(), c.Storage(), c.Token(), chi.URLParam(r, "id"), decision, reason)
	h.recorder.RecordReviewDecision(string(decision), err == nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if outcome.Pending == nil {
		outcome.Pending = []model.PendingApplication{}
	}
	writeJSON(w, http.StatusOK, outcome)
}
