// Package review は審査担当者向けのローン申請審査ボードを提供する。
// 審査待ち一覧はクライアントセッションのストレージにキャッシュし、
// 承認・却下は一覧から先に取り除いてからバックエンドに送る（失敗時は元に戻す）。
package review

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/security"
	"github.com/hitoshi/loandesk/internal/session"
)

// Decision は審査の判定。
type Decision string

const (
	// DecisionApprove は承認。
	DecisionApprove Decision = "approve"
	// DecisionReject は却下。
	DecisionReject Decision = "reject"
)

// warningPattern に一致するバックエンドのメッセージは、成功応答でも警告として表示する。
var warningPattern = regexp.MustCompile(`(?i)reject|cannot approve`)

// Backend は審査に必要なバックエンドAPI。lms.Clientの部分集合として定義する。
type Backend interface {
	ListPending(ctx context.Context, token string) ([]model.PendingApplication, error)
	Approve(ctx context.Context, token, applicationID string) (string, error)
	Reject(ctx context.Context, token, applicationID, reason string) (string, error)
}

// Outcome は審査操作の結果。
type Outcome struct {
	Message string                     `json:"message"`
	Warning bool                       `json:"warning"`
	Pending []model.PendingApplication `json:"pending"`
}

// Service は審査ボードのサービス層。
// 同一申請への審査操作は同時に1つまでに制限する。
type Service struct {
	backend   Backend
	sanitizer security.TextSanitizer
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(backend Backend, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	return &Service{
		backend:   backend,
		sanitizer: sanitizer,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// Pending はバックエンドから審査待ち一覧を取得し、ストレージにキャッシュして返す。
func (s *Service) Pending(ctx context.Context, st session.Storage, token string) ([]model.PendingApplication, error) {
	pending, err := s.backend.ListPending(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("審査待ち一覧の取得に失敗しました: %w", err)
	}
	if err := session.SetJSON(ctx, st, session.KeyPendingApplications, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// Decide は申請を承認または却下する。
// 1. 同一申請の操作中であれば拒否する
// 2. キャッシュ済み一覧を退避し、対象を取り除いた一覧を先に保存する
// 3. バックエンドに判定を送る
// 4. 失敗時は退避した一覧を戻してから再同期し、エラーを返す
// 5. 成功時は再同期してメッセージを返す
func (s *Service) Decide(ctx context.Context, st session.Storage, token, applicationID string, decision Decision, reason string) (*Outcome, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, model.NewValidationError("id", "Application id is required")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, model.NewValidationError("decision", "Unknown decision")
	}

	if !s.acquire(applicationID) {
		return nil, model.NewDecisionInFlightError(applicationID)
	}
	defer s.release(applicationID)

	// 退避と仮反映
	var snapshot []model.PendingApplication
	if _, err := session.GetJSON(ctx, st, session.KeyPendingApplications, &snapshot); err != nil {
		return nil, err
	}
	speculative := without(snapshot, applicationID)
	if err := session.SetJSON(ctx, st, session.KeyPendingApplications, speculative); err != nil {
		return nil, err
	}

	// バックエンドに送信
	var (
		msg string
		err error
	)
	switch decision {
	case DecisionApprove:
		msg, err = s.backend.Approve(ctx, token, applicationID)
	case DecisionReject:
		msg, err = s.backend.Reject(ctx, token, applicationID, s.sanitizer.Sanitize(reason))
	}

	if err != nil {
		s.logger.Warn("review decision failed, rolling back",
			slog.String("application_id", applicationID),
			slog.String("decision", string(decision)),
			slog.String("error", err.Error()),
		)
		if rbErr := session.SetJSON(ctx, st, session.KeyPendingApplications, snapshot); rbErr != nil {
			s.logger.Error("failed to restore review list", slog.String("error", rbErr.Error()))
		}
		s.resync(ctx, st, token)
		return nil, fmt.Errorf("審査結果の送信に失敗しました: %w", err)
	}

	s.logger.Info("review decision recorded",
		slog.String("application_id", applicationID),
		slog.String("decision", string(decision)),
	)

	pending := s.resync(ctx, st, token)
	if pending == nil {
		pending = speculative
	}
	return &Outcome{
		Message: msg,
		Warning: IsWarning(msg),
		Pending: pending,
	}, nil
}

// IsWarning はバックエンドのメッセージを警告として表示すべきかどうかを返す。
func IsWarning(message string) bool {
	return warningPattern.MatchString(message)
}

// resync はバックエンドの一覧でキャッシュを置き換える。失敗した場合はnilを返す。
func (s *Service) resync(ctx context.Context, st session.Storage, token string) []model.PendingApplication {
	pending, err := s.Pending(ctx, st, token)
	if err != nil {
		s.logger.Warn("failed to resync review list", slog.String("error", err.Error()))
		return nil
	}
	return pending
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// without はidの申請を除いた新しいスライスを返す。
func without(list []model.PendingApplication, id string) []model.PendingApplication {
	out := make([]model.PendingApplication, 0, len(list))
	for _, p := range list {
		if p.Application.ID != id {
			out = append(out, p)
		}
	}
	return out
}
