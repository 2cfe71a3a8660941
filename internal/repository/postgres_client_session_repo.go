package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/loandesk/internal/model"
)

// PostgresClientSessionRepo はPostgreSQLを使用したクライアントセッションリポジトリ。
type PostgresClientSessionRepo struct {
	db *sql.DB
}

// NewPostgresClientSessionRepo はPostgresClientSessionRepoを生成する。
func NewPostgresClientSessionRepo(db *sql.DB) *PostgresClientSessionRepo {
	return &PostgresClientSessionRepo{db: db}
}

// Create はクライアントセッションを作成する。
func (r *PostgresClientSessionRepo) Create(ctx context.Context, session *model.ClientSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_sessions (id, expires_at, created_at)
		 VALUES ($1, $2, $3)`,
		session.ID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client session: %w", err)
	}
	return nil
}

// FindByID は指定IDのクライアントセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresClientSessionRepo) FindByID(ctx context.Context, id string) (*model.ClientSession, error) {
	session := &model.ClientSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, expires_at, created_at
		 FROM client_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find client session: %w", err)
	}

	return session, nil
}

// Touch は有効期限を延長する。
func (r *PostgresClientSessionRepo) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE client_sessions SET expires_at = $2 WHERE id = $1`,
		id, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to touch client session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのクライアントセッションを削除する。
func (r *PostgresClientSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete client session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ClientSessionRepository = (*PostgresClientSessionRepo)(nil)
