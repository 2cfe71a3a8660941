// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	LoginSuccess  = "success"
	LoginRejected = "rejected"
	LoginError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、ミドルウェア、ハンドラーから利用する。
type MetricsCollector interface {
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
	RecordLogin(outcome string)
	RecordGateDecision(decision string)
	RecordReviewDecision(decision string, ok bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	reviewDecisions *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandesk_backend_requests_total",
			Help: "バックエンド呼び出しのエンドポイント・ステータス別の合計数（通信失敗は0）",
		}, []string{"endpoint", "status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loandesk_backend_latency_seconds",
			Help:    "バックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandesk_login_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"outcome"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandesk_gate_decisions_total",
			Help: "アクセス判定の結果別の合計数",
		}, []string{"decision"}),
		reviewDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandesk_review_decisions_total",
			Help: "審査操作の判定・成否別の合計数",
		}, []string{"decision", "result"}),
	}

	reg.MustRegister(
		c.backendRequests,
		c.backendLatency,
		c.logins,
		c.gateDecisions,
		c.reviewDecisions,
	)

	return c
}

// RecordBackendCall はバックエンド呼び出しを記録する。
func (c *Collector) RecordBackendCall(endpoint string, statusCode int, duration time.Duration) {
	c.backendRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordGateDecision はアクセス判定を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// RecordReviewDecision は審査操作の結果を記録する。
func (c *Collector) RecordReviewDecision(decision string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.reviewDecisions.WithLabelValues(decision, result).Inc()
}

// スクレイプが重なってもバックエンド呼び出しを妨げないよう同時実行数と処理時間を制限する。
const (
	scrapeMaxInFlight = 2
	scrapeTimeout     = 10 * time.Second
)

// SetupMetricsRoute は/metricsにマウントするスクレイプ用ハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		MaxRequestsInFlight: scrapeMaxInFlight,
		Timeout:             scrapeTimeout,
	})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
