// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loandesk/internal/access"
	"github.com/hitoshi/loandesk/internal/lms"
	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// maxRequestBody はリクエストボディの上限（バイト）。
const maxRequestBody = 64 << 10

// messageResponse はバックエンドの文言をそのまま返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	middleware.WriteJSON(w, statusCode, v)
}

// decodeBody はJSONボディをvにデコードする。失敗時はエラーレスポンスを書き込みfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// decodeOptionalBody はdecodeBodyと同じだが、空のボディを許可する。
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// containerFrom はリクエストのセッションコンテナを返す。
// クライアントセッションミドルウェアを通過していない場合は401を書き込む。
func containerFrom(w http.ResponseWriter, r *http.Request) (*session.Container, bool) {
	c, ok := middleware.ContainerFromContext(r.Context())
	if !ok {
		middleware.WriteRedirectResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(), access.RouteLogin)
		return nil, false
	}
	return c, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// バックエンドの業務エラーは文言を変えずに返し、通信失敗は汎用メッセージに置き換える。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	case errors.Is(err, model.ErrUnauthorized):
		middleware.WriteRedirectResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(), access.RouteLogin)
		return
	case errors.Is(err, session.ErrPasswordUpdate):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewPasswordUpdateError())
		return
	}

	var statusErr *lms.StatusError
	if errors.As(err, &statusErr) && statusErr.IsClientError() {
		middleware.WriteErrorResponse(w, statusErr.StatusCode, model.NewBackendRejectedError(statusErr.Message))
		return
	}

	if lms.IsUnavailable(err) {
		slog.Warn("backend unavailable", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendUnavailableError())
		return
	}

	// 上記以外は内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest,
		model.ErrCodeAccountNotLinked, model.ErrCodePasswordUpdate, model.ErrCodeBackendRejected:
		return http.StatusBadRequest
	case model.ErrCodeDecisionInFlight:
		return http.StatusConflict
	case model.ErrCodeBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
