// Package cleanup は有効期限切れのクライアントセッションを定期削除するワーカーを提供する。
// client_storageの行は外部キーのCASCADEで一緒に消える。Redisに保存した値はTTLで失効する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultGrace は有効期限後もセッションを残しておく期間。
const DefaultGrace = 24 * time.Hour

const deleteExpiredSessions = `DELETE FROM client_sessions WHERE expires_at < $1`

// Executor は*sql.DBと*sql.Txが満たす。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Job は期限切れセッションの削除ジョブ。削除対象がなくても成功として扱う。
type Job struct {
	db     Executor
	logger *slog.Logger
	grace  time.Duration
	now    func() time.Time
}

// NewJob はJobを生成する。graceが0以下の場合はDefaultGraceを使う。
func NewJob(db Executor, logger *slog.Logger, grace time.Duration) *Job {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Job{db: db, logger: logger, grace: grace, now: time.Now}
}

// Run は有効期限からgraceを過ぎたセッションを削除し、削除件数を返す。
func (j *Job) Run(ctx context.Context) (int64, error) {
	start := j.now()
	cutoff := start.Add(-j.grace).UTC()

	result, err := j.db.ExecContext(ctx, deleteExpiredSessions, cutoff)
	if err != nil {
		j.logger.Error("client session cleanup failed",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
		)
		return 0, fmt.Errorf("failed to delete expired client sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted client sessions: %w", err)
	}

	j.logger.Info("client session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Time("cutoff", cutoff),
		slog.Duration("grace", j.grace),
		slog.Int64("duration_ms", j.now().Sub(start).Milliseconds()),
	)
	return deleted, nil
}

// RunEvery は起動直後に1回、以後intervalごとにRunを実行し、ctxのキャンセルで戻る。
// 失敗はログに残して次の周期で再試行する。
func (j *Job) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, _ = j.Run(ctx)

		select {
		case <-ctx.Done():
			j.logger.Info("client session cleanup stopped")
			return
		case <-ticker.C:
		}
	}
}
