package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストレージバックエンドの種類。
const (
	StorageBackendPostgres = "postgres"
	StorageBackendRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// LMS Backend
	LMSBaseURL string // 公開エンドポイント（ログイン・登録・パスワード系）
	LMSAPIURL  string // 保護エンドポイント。未設定時は LMSBaseURL + "/api"
	LMSTimeout time.Duration

	// Interest Rates
	InterestRatesFile string

	// Client Session
	SessionMaxAge  int // 秒
	StorageBackend string
	RedisURL       string

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitLogin   int

	// Cleanup
	CleanupInterval   time.Duration
	CleanupGraceHours int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.LMSBaseURL = strings.TrimRight(os.Getenv("LMS_BASE_URL"), "/")
	if cfg.LMSBaseURL == "" {
		missing = append(missing, "LMS_BASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.LMSAPIURL = getEnvString("LMS_API_URL", cfg.LMSBaseURL+"/api")
	cfg.LMSTimeout = getEnvDuration("LMS_TIMEOUT", 15*time.Second)
	cfg.InterestRatesFile = getEnvString("INTEREST_RATES_FILE", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.StorageBackend = strings.ToLower(getEnvString("STORAGE_BACKEND", StorageBackendPostgres))
	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.CleanupGraceHours = getEnvInt("CLEANUP_GRACE_HOURS", 24)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.StorageBackend != StorageBackendPostgres && cfg.StorageBackend != StorageBackendRedis {
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q (want %s or %s)",
			cfg.StorageBackend, StorageBackendPostgres, StorageBackendRedis)
	}

	return cfg, nil
}

// SessionMaxAgeDuration はクライアントセッションの有効期間をDurationで返す。
func (c *Config) SessionMaxAgeDuration() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
