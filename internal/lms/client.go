// Package lms は融資管理バックエンド（LMS）のRESTクライアントを提供する。
// 公開エンドポイント（ログイン・登録・パスワード系）と
// ベアラートークン必須の保護エンドポイントで基点URLが異なる。
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/loandesk/internal/model"
)

const (
	// maxResponseBytes はバックエンド応答本文の読み取り上限。
	maxResponseBytes = 1 << 20
	userAgent        = "Loandesk/1.0"

	defaultApproveMessage = "OK"
	defaultRejectMessage  = "Application rejected"
)

// Recorder はバックエンド呼び出しの計測先。statusCodeは通信失敗時に0となる。
type Recorder interface {
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordBackendCall(string, int, time.Duration) {}

// Client はLMSバックエンドのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	publicURL  string
	apiURL     string
	recorder   Recorder
}

// NewClient はClient の新しいインスタンスを生成する。
// publicURLは公開エンドポイント、apiURLは保護エンドポイントの基点URL。
// recorderがnilの場合は計測しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, publicURL, apiURL string, recorder Recorder) *Client {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		publicURL:  strings.TrimRight(publicURL, "/"),
		apiURL:     strings.TrimRight(apiURL, "/"),
		recorder:   recorder,
	}
}

// call は1回のバックエンド呼び出しの内容。
type call struct {
	endpoint string // ログとメトリクス用のラベル
	method   string
	base     string
	path     string
	query    url.Values
	body     any
	token    string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do はリクエストを送信し、ステータスにかかわらず応答を返す。
// 通信・読み取りの失敗のみ *TransportError として返す。
func (c *Client) do(ctx context.Context, cl call) (*response, error) {
	reqURL := cl.base + cl.path
	if len(cl.query) > 0 {
		reqURL += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		buf, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", bearerPrefix+cl.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordBackendCall(cl.endpoint, 0, time.Since(start))
		c.logger.Error("バックエンドの呼び出しに失敗しました",
			slog.String("endpoint", cl.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Endpoint: cl.endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.recorder.RecordBackendCall(cl.endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", cl.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Endpoint: cl.endpoint, Err: err}
	}

	if resp.StatusCode >= 500 {
		c.logger.Error("バックエンドがエラーステータスを返しました",
			slog.String("endpoint", cl.endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// expectOK は2xx以外の応答をエラーに変換する。
// 401は model.ErrUnauthorized、それ以外は *StatusError となる。
func (c *Client) expectOK(cl call, resp *response) error {
	if resp.ok() {
		return nil
	}
	if resp.status == http.StatusUnauthorized {
		return fmt.Errorf("lms %s: %w", cl.endpoint, model.ErrUnauthorized)
	}
	return &StatusError{
		Endpoint:   cl.endpoint,
		StatusCode: resp.status,
		Message:    decodeMessage(resp.body, http.StatusText(resp.status)),
	}
}

// send は呼び出しを実行し、2xxでなければエラーを返す。
func (c *Client) send(ctx context.Context, cl call) (*response, error) {
	resp, err := c.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	if err := c.expectOK(cl, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// decodeJSON は応答本文をJSONとしてvにデコードする。
func (c *Client) decodeJSON(cl call, resp *response, v any) error {
	if err := json.Unmarshal(resp.body, v); err != nil {
		c.logger.Error("バックエンドのレスポンスのパースに失敗しました",
			slog.String("endpoint", cl.endpoint),
			slog.String("error", err.Error()),
		)
		return &TransportError{Endpoint: cl.endpoint, Err: fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)}
	}
	return nil
}

// Login は認証情報を送信し、ベアラートークンを返す。
// 401/403 は model.ErrInvalidCredentials、トークンが見つからない場合は ErrTokenNotFound を返す。
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	cl := call{
		endpoint: "login",
		method:   http.MethodPost,
		base:     c.publicURL,
		path:     "/login",
		body:     map[string]string{"username": username, "password": password},
	}

	resp, err := c.do(ctx, cl)
	if err != nil {
		return "", err
	}

	switch {
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return "", model.ErrInvalidCredentials
	case !resp.ok():
		return "", c.expectOK(cl, resp)
	}

	token, strategy, err := extractToken(resp.header, resp.body)
	if err != nil {
		c.logger.Warn("ログイン応答にトークンが含まれていません",
			slog.Int("http_status", resp.status),
		)
		return "", err
	}

	c.logger.Debug("トークンを取得しました", slog.String("strategy", strategy))
	return token, nil
}

// Register は新規ユーザーを登録する。
func (c *Client) Register(ctx context.Context, reg model.Registration) error {
	_, err := c.send(ctx, call{
		endpoint: "register",
		method:   http.MethodPost,
		base:     c.publicURL,
		path:     "/register",
		body:     reg,
	})
	return err
}

// ForgotPassword はパスワード再設定メールの送信を依頼し、バックエンドのメッセージを返す。
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	resp, err := c.send(ctx, call{
		endpoint: "forgot_password",
		method:   http.MethodPost,
		base:     c.publicURL,
		path:     "/forgotPassword",
		body:     map[string]string{"email": email},
	})
	if err != nil {
		return "", err
	}
	return decodeMessage(resp.body, ""), nil
}

// ResetPassword は再設定トークンを使って新しいパスワードを設定する。
func (c *Client) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	_, err := c.send(ctx, call{
		endpoint: "reset_password",
		method:   http.MethodPost,
		base:     c.publicURL,
		path:     "/resetPassword",
		body:     map[string]string{"token": resetToken, "newPassword": newPassword},
	})
	return err
}

// UpdatePassword はログイン中ユーザーのパスワードを変更する。
func (c *Client) UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	_, err := c.send(ctx, call{
		endpoint: "update_password",
		method:   http.MethodPut,
		base:     c.publicURL,
		path:     "/updatePassword",
		body:     map[string]string{"oldPassword": oldPassword, "newPassword": newPassword},
		token:    token,
	})
	return err
}

// Profile はトークンの持ち主のプロフィールを取得する。
func (c *Client) Profile(ctx context.Context, token string) (*model.Profile, error) {
	cl := call{
		endpoint: "profile",
		method:   http.MethodGet,
		base:     c.apiURL,
		path:     "/profile",
		token:    token,
	}

	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}

	var raw rawProfile
	if err := c.decodeJSON(cl, resp, &raw); err != nil {
		return nil, err
	}
	return mapProfile(raw), nil
}

// SendMicroDeposit は口座確認用の少額入金を依頼し、バックエンドのメッセージを返す。
func (c *Client) SendMicroDeposit(ctx context.Context, token, accountNumber string) (string, error) {
	resp, err := c.send(ctx, call{
		endpoint: "account_send",
		method:   http.MethodPost,
		base:     c.apiURL,
		path:     "/account/send",
		body:     map[string]string{"accountNumber": accountNumber},
		token:    token,
	})
	if err != nil {
		return "", err
	}
	return decodeMessage(resp.body, ""), nil
}

// ConfirmMicroDeposit は入金額を照合して口座を確認済みにする。
func (c *Client) ConfirmMicroDeposit(ctx context.Context, token, accountNumber string, amount decimal.Decimal) error {
	_, err := c.send(ctx, call{
		endpoint: "account_confirm",
		method:   http.MethodPost,
		base:     c.apiURL,
		path:     "/account/confirm-deposit",
		body: map[string]string{
			"accountNumber":      accountNumber,
			"microDepositAmount": amount.String(),
		},
		token: token,
	})
	return err
}

// ApplyLoan はローンを申請し、バックエンドのメッセージを返す。
func (c *Client) ApplyLoan(ctx context.Context, token string, req model.LoanRequest) (string, error) {
	resp, err := c.send(ctx, call{
		endpoint: "loan_apply",
		method:   http.MethodPost,
		base:     c.apiURL,
		path:     "/loan/apply",
		body: map[string]string{
			"accountNumber": req.AccountNumber,
			"loanAmount":    req.Amount.String(),
			"purpose":       req.Purpose,
			"termMonths":    strconv.Itoa(req.TermMonths),
		},
		token: token,
	})
	if err != nil {
		return "", err
	}
	return decodeMessage(resp.body, ""), nil
}

// RepayLoan はローンを返済し、バックエンドのメッセージを返す。
func (c *Client) RepayLoan(ctx context.Context, token, accountNumber string, amount decimal.Decimal) (string, error) {
	resp, err := c.send(ctx, call{
		endpoint: "loan_repay",
		method:   http.MethodPost,
		base:     c.apiURL,
		path:     "/loan/repay",
		body: map[string]string{
			"accountNumber": accountNumber,
			"amount":        amount.String(),
		},
		token: token,
	})
	if err != nil {
		return "", err
	}
	return decodeMessage(resp.body, ""), nil
}

// ListApplications は口座に紐づくローン申請の一覧を返す。
func (c *Client) ListApplications(ctx context.Context, token, accountNumber string) ([]model.LoanApplication, error) {
	cl := call{
		endpoint: "loan_applications",
		method:   http.MethodGet,
		base:     c.apiURL,
		path:     "/applications/" + url.PathEscape(accountNumber),
		token:    token,
	}

	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}

	var raws []rawApplication
	if err := c.decodeJSON(cl, resp, &raws); err != nil {
		return nil, err
	}

	apps := make([]model.LoanApplication, 0, len(raws))
	for _, r := range raws {
		apps = append(apps, mapApplication(r))
	}
	return apps, nil
}

// ListActiveLoans は口座に紐づく返済中ローンの一覧を返す。
func (c *Client) ListActiveLoans(ctx context.Context, token, accountNumber string) ([]model.ActiveLoan, error) {
	cl := call{
		endpoint: "loan_active",
		method:   http.MethodGet,
		base:     c.apiURL,
		path:     "/active/" + url.PathEscape(accountNumber),
		token:    token,
	}

	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}

	var raws []rawLoan
	if err := c.decodeJSON(cl, resp, &raws); err != nil {
		return nil, err
	}

	loans := make([]model.ActiveLoan, 0, len(raws))
	for _, r := range raws {
		loans = append(loans, mapLoan(r))
	}
	return loans, nil
}

// ListPending は審査待ち申請の一覧を返す。applicationを持たない行は除外する。
func (c *Client) ListPending(ctx context.Context, token string) ([]model.PendingApplication, error) {
	cl := call{
		endpoint: "loan_pending",
		method:   http.MethodGet,
		base:     c.apiURL,
		path:     "/loan/pending",
		token:    token,
	}

	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}

	var raws []rawPending
	if err := c.decodeJSON(cl, resp, &raws); err != nil {
		return nil, err
	}

	pending := make([]model.PendingApplication, 0, len(raws))
	for _, r := range raws {
		if p, ok := mapPending(r); ok {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// Approve は申請を承認し、バックエンドのメッセージを返す。
func (c *Client) Approve(ctx context.Context, token, applicationID string) (string, error) {
	resp, err := c.send(ctx, call{
		endpoint: "loan_approve",
		method:   http.MethodPost,
		base:     c.apiURL,
		path:     "/loan/approve",
		query:    url.Values{"loanApplicationId": {applicationID}},
		token:    token,
	})
	if err != nil {
		return "", err
	}
	return decodeMessage(resp.body, defaultApproveMessage), nil
}

// Reject は申請を却下し、バックエンドのメッセージを返す。reasonが空の場合は送信しない。
func (c *Client) Reject(ctx context.Context, token, applicationID, reason string) (string, error) {
	q := url.Values{"loanApplicationId": {applicationID}}
	if reason != "" {
		q.Set("reason", reason)
	}

	resp, err := c.send(ctx, call{
		endpoint: "loan_reject",
		method:   http.MethodPost,
		base:     c.apiURL,
		path:     "/loan/reject",
		query:    q,
		token:    token,
	})
	if err != nil {
		return "", err
	}
	return decodeMessage(resp.body, defaultRejectMessage), nil
}

// IsUnavailable はエラーがバックエンドとの通信失敗またはサーバーエラーかどうかを返す。
func IsUnavailable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return false
}
