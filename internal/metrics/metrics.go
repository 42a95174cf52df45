// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// キャッシュ、コンテンツクライアント、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordCacheResult(cache, result string)
	RecordCacheEviction(cache string)
	RecordUpstreamFetch(operation string, duration time.Duration, err error)
	RecordPageLoad(page string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheRequests    *prometheus.CounterVec
	cacheEvictions   *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamFailures *prometheus.CounterVec
	pageLoad         *prometheus.HistogramVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskuto_cache_requests_total",
			Help: "キャッシュ参照の結果別の合計数",
		}, []string{"cache", "result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskuto_cache_evictions_total",
			Help: "容量超過によるキャッシュ追い出しの合計数",
		}, []string{"cache"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diskuto_upstream_fetch_seconds",
			Help:    "コンテンツソースへの問い合わせのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskuto_upstream_failures_total",
			Help: "コンテンツソースへの問い合わせ失敗の合計数",
		}, []string{"operation"}),
		pageLoad: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diskuto_page_load_seconds",
			Help:    "ページ単位の集約処理の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"page"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskuto_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cacheRequests,
		c.cacheEvictions,
		c.upstreamLatency,
		c.upstreamFailures,
		c.pageLoad,
		c.httpStatus,
	)

	return c
}

// RecordCacheResult はキャッシュ参照の結果（hit/miss/stale/coalesced）を記録する。
func (c *Collector) RecordCacheResult(cache, result string) {
	c.cacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordCacheEviction はキャッシュの追い出しを記録する。
func (c *Collector) RecordCacheEviction(cache string) {
	c.cacheEvictions.WithLabelValues(cache).Inc()
}

// RecordUpstreamFetch はコンテンツソースへの問い合わせ時間を記録する。
// errがnilでない場合は失敗数も加算する。
func (c *Collector) RecordUpstreamFetch(operation string, duration time.Duration, err error) {
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		c.upstreamFailures.WithLabelValues(operation).Inc()
	}
}

// RecordPageLoad はページ集約処理の所要時間を記録する。
func (c *Collector) RecordPageLoad(page string, duration time.Duration) {
	c.pageLoad.WithLabelValues(page).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NoopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NoopCollector struct{}

func (NoopCollector) RecordCacheResult(string, string)                 {}
func (NoopCollector) RecordCacheEviction(string)                       {}
func (NoopCollector) RecordUpstreamFetch(string, time.Duration, error) {}
func (NoopCollector) RecordPageLoad(string, time.Duration)             {}
func (NoopCollector) RecordHTTPStatus(int)                             {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
