// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// フォロー解除の理由ラベル。
const (
	RemovalReasonUnfollow = "unfollow"
	RemovalReasonBlock    = "block"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordFollowCreated()
	RecordFollowsRemoved(reason string, count int)
	RecordBlockCreated()
	RecordFeedBuild(duration time.Duration, items int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	followsCreated prometheus.Counter
	followsRemoved *prometheus.CounterVec
	blocksCreated  prometheus.Counter
	feedBuild      prometheus.Histogram
	feedItems      prometheus.Histogram
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		followsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "litreview_follows_created_total",
			Help: "作成されたフォロー関係の合計数",
		}),
		followsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litreview_follows_removed_total",
			Help: "削除されたフォロー関係の合計数（理由別）",
		}, []string{"reason"}),
		blocksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "litreview_blocks_created_total",
			Help: "作成されたブロック関係の合計数",
		}),
		feedBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "litreview_feed_build_seconds",
			Help:    "フィード構築にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		feedItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "litreview_feed_items",
			Help:    "1回のフィード構築で返した項目数",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litreview_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.followsCreated,
		c.followsRemoved,
		c.blocksCreated,
		c.feedBuild,
		c.feedItems,
		c.httpStatus,
	)

	return c
}

// RecordFollowCreated はフォロー作成を記録する。
func (c *Collector) RecordFollowCreated() {
	c.followsCreated.Inc()
}

// RecordFollowsRemoved は削除されたフォロー関係の数を理由別に記録する。
func (c *Collector) RecordFollowsRemoved(reason string, count int) {
	if count <= 0 {
		return
	}
	c.followsRemoved.WithLabelValues(reason).Add(float64(count))
}

// RecordBlockCreated はブロック作成を記録する。
func (c *Collector) RecordBlockCreated() {
	c.blocksCreated.Inc()
}

// RecordFeedBuild はフィード構築の所要時間と項目数を記録する。
func (c *Collector) RecordFeedBuild(duration time.Duration, items int) {
	c.feedBuild.Observe(duration.Seconds())
	c.feedItems.Observe(float64(items))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成やテストで利用する。
type Nop struct{}

func (Nop) RecordFollowCreated()               {}
func (Nop) RecordFollowsRemoved(string, int)   {}
func (Nop) RecordBlockCreated()                {}
func (Nop) RecordFeedBuild(time.Duration, int) {}
func (Nop) RecordHTTPStatus(int)               {}
