package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStorageRepo はPostgreSQLを使用したクライアントストレージリポジトリ。
// 値はclient_storageテーブルに(session_id, key)単位で保存する。
type PostgresStorageRepo struct {
	db *sql.DB
}

// NewPostgresStorageRepo はPostgresStorageRepoを生成する。
func NewPostgresStorageRepo(db *sql.DB) *PostgresStorageRepo {
	return &PostgresStorageRepo{db: db}
}

// GetValue は値を取得する。
func (r *PostgresStorageRepo) GetValue(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE session_id = $1 AND key = $2`,
		sessionID, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get storage value: %w", err)
	}
	return value, true, nil
}

// SetValue は値をUPSERTする。
func (r *PostgresStorageRepo) SetValue(ctx context.Context, sessionID, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_storage (session_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		sessionID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set storage value: %w", err)
	}
	return nil
}

// DeleteValue は値を削除する。
func (r *PostgresStorageRepo) DeleteValue(ctx context.Context, sessionID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE session_id = $1 AND key = $2`,
		sessionID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete storage value: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StorageRepository = (*PostgresStorageRepo)(nil)
