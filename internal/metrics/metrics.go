// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// レート制限・識別・エラー分類・アクセスログの各観測点から呼ばれる。
type Collector struct {
	reg prometheus.Registerer

	rateLimitDecisions *prometheus.CounterVec
	rateLimitSwept     prometheus.Counter
	identityOutcomes   *prometheus.CounterVec
	errors             *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpLatency        prometheus.Histogram
	importRows         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reg: reg,
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gooddrive_ratelimit_decisions_total",
			Help: "スコープ・判定結果別のレート制限判定数",
		}, []string{"scope", "result"}),
		rateLimitSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gooddrive_ratelimit_swept_total",
			Help: "掃除で削除された期限切れレコードの合計数",
		}),
		identityOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gooddrive_identity_resolutions_total",
			Help: "結果別のセッション識別数",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gooddrive_errors_total",
			Help: "分類・コード別のエラーレスポンス数",
		}, []string{"kind", "code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gooddrive_http_requests_total",
			Help: "メソッド・ステータスコード別のレスポンス数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gooddrive_http_request_duration_seconds",
			Help:    "リクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gooddrive_import_rows_total",
			Help: "結果別のCSV取り込み行数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.rateLimitDecisions,
		c.rateLimitSwept,
		c.identityOutcomes,
		c.errors,
		c.httpRequests,
		c.httpLatency,
		c.importRows,
	)

	return c
}

// ObserveDecision はレート制限の判定を記録する。
func (c *Collector) ObserveDecision(scope string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	c.rateLimitDecisions.WithLabelValues(scope, result).Inc()
}

// ObserveSweep は掃除で削除された件数を記録する。
func (c *Collector) ObserveSweep(removed int) {
	c.rateLimitSwept.Add(float64(removed))
}

// ObserveIdentity はセッション識別の結果を記録する。
func (c *Collector) ObserveIdentity(outcome string) {
	c.identityOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveError は分類済みエラーを記録する。
func (c *Collector) ObserveError(kind model.ErrorKind, code string) {
	c.errors.WithLabelValues(string(kind), code).Inc()
}

// ObserveHTTPRequest はレスポンスのステータスと処理時間を記録する。
func (c *Collector) ObserveHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordImportRows は取り込み結果別の行数を記録する。
func (c *Collector) RecordImportRows(result string, count int) {
	c.importRows.WithLabelValues(result).Add(float64(count))
}

// RegisterTrackedKeys はレート制限ストアが保持するキー数のゲージを登録する。
func (c *Collector) RegisterTrackedKeys(count func() int) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gooddrive_ratelimit_tracked_keys",
		Help: "レート制限ストアが保持しているキー数",
	}, func() float64 { return float64(count()) }))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
