package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/loandesk/internal/account"
	"github.com/hitoshi/loandesk/internal/config"
	"github.com/hitoshi/loandesk/internal/database"
	"github.com/hitoshi/loandesk/internal/emi"
	"github.com/hitoshi/loandesk/internal/handler"
	"github.com/hitoshi/loandesk/internal/lms"
	"github.com/hitoshi/loandesk/internal/loan"
	"github.com/hitoshi/loandesk/internal/logger"
	"github.com/hitoshi/loandesk/internal/metrics"
	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/repository"
	"github.com/hitoshi/loandesk/internal/review"
	"github.com/hitoshi/loandesk/internal/security"
	"github.com/hitoshi/loandesk/internal/session"
	"github.com/hitoshi/loandesk/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	inv := ParseInvocation(args)
	cmd := inv.Command

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck("http://localhost:" + port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", cmd.String()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, inv.Rollback)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// storageBackend はクライアントストレージの実装と、その疎通確認・終了処理をまとめたもの。
type storageBackend struct {
	repo   session.StorageRepository
	health handler.HealthChecker
	close  func() error
}

// openStorage は設定に応じてクライアントストレージを選択する。
// postgresの場合はDB接続を共有し、redisの場合は別途接続する。
func openStorage(ctx context.Context, cfg *config.Config, db *sql.DB) (*storageBackend, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendRedis:
		client, err := database.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return &storageBackend{
			repo:   repository.NewRedisStorageRepo(client, cfg.SessionMaxAgeDuration()),
			health: healthCheckers{db, redisPinger{client}},
			close:  client.Close,
		}, nil
	default:
		return &storageBackend{
			repo:   repository.NewPostgresStorageRepo(db),
			health: db,
			close:  func() error { return nil },
		}, nil
	}
}

// redisPinger はredis.ClientをHealthCheckerに適合させる。
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// healthCheckers は複数の依存先を順に確認する。
type healthCheckers []handler.HealthChecker

func (hs healthCheckers) PingContext(ctx context.Context) error {
	for _, h := range hs {
		if err := h.PingContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

// rateLimiterConfig はreq/min単位の設定値をreq/secのレート制限設定に変換する。
// 0以下の値はデフォルトのままとする。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitLogin > 0 {
		rl.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
		rl.LoginBurst = cfg.RateLimitLogin
	}
	return rl
}

// loadRates はINTEREST_RATES_FILEが指定されていれば金利表を読み込む。
func loadRates(cfg *config.Config) (emi.RateTable, error) {
	if cfg.InterestRatesFile == "" {
		return emi.DefaultRateTable(), nil
	}
	rates, err := emi.LoadRateTable(cfg.InterestRatesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load interest rates: %w", err)
	}
	slog.Info("interest rate table loaded", slog.String("path", cfg.InterestRatesFile))
	return rates, nil
}

// buildRouter はDB・ストレージ・メトリクスレジストリから全依存関係をワイヤリングしてルーターを返す。
// 返されるRateLimiterはシャットダウン時にStopすること。
func buildRouter(cfg *config.Config, db *sql.DB, storage *storageBackend, reg *prometheus.Registry) (http.Handler, *middleware.RateLimiter, error) {
	rates, err := loadRates(cfg)
	if err != nil {
		return nil, nil, err
	}

	collector := metrics.NewCollector(reg)

	// 1. バックエンドクライアント
	lmsClient := lms.NewClient(
		&http.Client{Timeout: cfg.LMSTimeout},
		slog.Default(),
		cfg.LMSBaseURL,
		cfg.LMSAPIURL,
		collector,
	)

	// 2. ドメインサービス
	loanService := loan.NewService(lmsClient, rates)
	accountService := account.NewService(lmsClient, slog.Default())
	reviewService := review.NewService(lmsClient, security.NewTextSanitizer(), slog.Default())

	// 3. ルーター
	limiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		HealthChecker: storage.health,
		Metrics:       collector,
		MetricsRoute:  metrics.SetupMetricsRoute(reg),

		ClientSessions: repository.NewPostgresClientSessionRepo(db),
		Storage:        storage.repo,
		Authenticator:  lmsClient,
		SessionConfig: middleware.ClientSessionConfig{
			MaxAge:       cfg.SessionMaxAgeDuration(),
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAgeDuration(),
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		SecureTransport:   cfg.CookieSecure,
		RateLimiter:       limiter,

		Recovery:      lmsClient,
		LoanService:   loanService,
		Account:       accountService,
		ReviewService: reviewService,
	}

	return handler.NewRouter(deps), limiter, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. クライアントストレージ
	storage, err := openStorage(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer storage.close()

	// 3. ルーターの構築
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router, limiter, err := buildRouter(cfg, db, storage, reg)
	if err != nil {
		return err
	}
	defer limiter.Stop()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LMSTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("lms_base_url", cfg.LMSBaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は期限切れクライアントセッションの削除を周期実行する。
// SIGINTまたはSIGTERMを受信すると現在の周期を終えて戻る。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	grace := time.Duration(cfg.CleanupGraceHours) * time.Hour
	job := cleanup.NewJob(db, slog.Default(), grace)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("grace", grace),
	)
	job.RunEvery(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はスキーマを最新まで適用する。rollbackがtrueの場合はすべて取り消す。
func runMigrate(cfg *config.Config, rollback bool) error {
	dbURL := maskDatabaseURL(cfg.DatabaseURL)

	if rollback {
		slog.Warn("rolling back all database migrations", slog.String("database_url", dbURL))
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back")
		return nil
	}

	slog.Info("running database migrations", slog.String("database_url", dbURL))
	state, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if state.Dirty {
		return fmt.Errorf("migration failed: schema version %d is dirty", state.Version)
	}

	slog.Info("database migrations completed",
		slog.Uint64("version", uint64(state.Version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// baseURLの/healthにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
