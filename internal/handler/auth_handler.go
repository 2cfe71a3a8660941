package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/loandesk/internal/access"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/session"
)

// ログイン結果の記録値。metricsのラベルと一致させる。
const (
	loginSuccess  = "success"
	loginRejected = "rejected"
	loginError    = "error"
)

// AccountRecoveryService は登録・パスワード再設定に必要なバックエンドAPI。
// lms.Clientの部分集合として定義する。
type AccountRecoveryService interface {
	Register(ctx context.Context, reg model.Registration) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

// LoginRecorder はログイン結果の記録先。
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// AuthHandler はログイン状態に関するHTTPハンドラー。
type AuthHandler struct {
	recovery AccountRecoveryService
	recorder LoginRecorder
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(recovery AccountRecoveryService, recorder LoginRecorder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		recovery: recovery,
		recorder: recorder,
		logger:   logger,
	}
}

// sessionResponse はログイン状態のAPIレスポンス。
type sessionResponse struct {
	State         session.State  `json:"state"`
	Authenticated bool           `json:"authenticated"`
	Profile       *model.Profile `json:"profile"`
	DisplayName   string         `json:"displayName"`
	Landing       string         `json:"landing"`
}

func toSessionResponse(c *session.Container) sessionResponse {
	resp := sessionResponse{
		State:         c.State(),
		Authenticated: c.Authenticated(),
		Profile:       c.Profile(),
		DisplayName:   access.DisplayName(access.NameFieldsFromProfile(c.Profile())),
		Landing:       access.RouteLogin,
	}
	if resp.Profile != nil {
		resp.Landing = access.LandingRoute(resp.Profile.Role)
	}
	return resp
}

// Session は保存済みのトークンからプロフィールを再取得し、ログイン状態を返す。
// GET /api/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	if err := c.Restore(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(c))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login はバックエンドで認証し、プロフィールまで取得できた場合にログイン状態を返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := requireText("username", req.Username, "Username is required"); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.Password == "" {
		handleServiceError(w, model.NewValidationError("password", "Password is required"))
		return
	}

	loggedIn, err := c.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.recorder.RecordLogin(loginError)
		handleServiceError(w, err)
		return
	}
	if !loggedIn {
		h.recorder.RecordLogin(loginRejected)
		handleServiceError(w, model.NewInvalidCredentialsError())
		return
	}

	h.recorder.RecordLogin(loginSuccess)
	writeJSON(w, http.StatusOK, toSessionResponse(c))
}

// Logout はトークンとプロフィールのキャッシュを破棄する。失敗しない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	c.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	model.Registration
	ConfirmPassword string `json:"confirmPassword"`
}

// Register は新規ユーザーを登録する。ログインは行わない。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reg := model.Registration{
		FullName: strings.TrimSpace(req.FullName),
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	}
	if err := validateRegistration(reg, req.ConfirmPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.recovery.Register(r.Context(), reg); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "Registration successful. Please sign in."})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword はパスワード再設定メールの送信を依頼する。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if !emailPattern.MatchString(email) {
		handleServiceError(w, model.NewValidationError("email", "Please enter a valid email address"))
		return
	}

	msg, err := h.recovery.ForgotPassword(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResetPassword はメールのトークンで新しいパスワードを設定する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := requireText("token", req.Token, "Reset link is invalid or has expired"); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := validateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.recovery.ResetPassword(r.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset. Please sign in."})
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UpdatePassword はログイン中のユーザーのパスワードを変更する。ログイン状態は変えない。
// PUT /api/auth/password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	var req updatePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" {
		handleServiceError(w, model.NewValidationError("currentPassword", "Current password is required"))
		return
	}
	if err := validateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := c.UpdatePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated successfully"})
}

// accessResponse はアクセス判定のAPIレスポンス。
type accessResponse struct {
	Decision string `json:"decision"`
	Redirect string `json:"redirect,omitempty"`
}

// Access はSPAの画面遷移前に認可判定を返す。
// GET /api/access?role=admin|customer&verify=true
func (h *AuthHandler) Access(w http.ResponseWriter, r *http.Request) {
	c, ok := containerFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	role := model.Role(q.Get("role"))
	if role != "" && role != model.RoleAdmin && role != model.RoleCustomer {
		handleServiceError(w, model.NewValidationError("role", "Unknown role"))
		return
	}
	requireVerification := q.Get("verify") == "true"

	if c.State() == session.StateRestoring {
		if err := c.Restore(r.Context()); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	decision := access.Authorize(c.Profile(), role, requireVerification)
	writeJSON(w, http.StatusOK, accessResponse{
		Decision: decision.String(),
		Redirect: decision.Target(),
	})
}
