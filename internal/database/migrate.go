package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationState はスキーマの適用状況。
type MigrationState struct {
	Version uint
	Dirty   bool
}

// slogMigrateLogger はmigrate.Loggerをslogに橋渡しする。
type slogMigrateLogger struct {
	logger *slog.Logger
}

func (l slogMigrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l slogMigrateLogger) Verbose() bool {
	return false
}

// newMigrator は埋め込みSQLを読み込むmigrateインスタンスを生成する。
func newMigrator(databaseURL string, logger *slog.Logger) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if logger != nil {
		m.Log = slogMigrateLogger{logger: logger}
	}
	return m, nil
}

// RunMigrations はclient_sessions・client_storageのスキーマを最新まで適用し、適用後の状態を返す。
// すでに最新の場合もエラーにはしない。前回の適用が途中で失敗している（dirty）場合はエラーを返す。
func RunMigrations(databaseURL string, logger *slog.Logger) (MigrationState, error) {
	m, err := newMigrator(databaseURL, logger)
	if err != nil {
		return MigrationState{}, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationState{}, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return currentState(m)
}

// RollbackMigrations はすべてのマイグレーションを取り消す。テストと手動復旧用。
func RollbackMigrations(databaseURL string) error {
	m, err := newMigrator(databaseURL, nil)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

func currentState(m *migrate.Migrate) (MigrationState, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationState{}, nil
	}
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to read migration version: %w", err)
	}
	return MigrationState{Version: version, Dirty: dirty}, nil
}
