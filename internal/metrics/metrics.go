// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// インジェストコーディネーターや通知ディスパッチャーから利用する。
type MetricsCollector interface {
	RecordCandidateReceived(category string)
	RecordDuplicateDetected(tier string)
	RecordPostingInserted(category string)
	RecordValidationFailure(reason string)
	RecordNotification(channel string, success bool)
	RecordRunLatency(duration time.Duration)
	RecordEngagementRefreshed(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	candidatesReceived  *prometheus.CounterVec
	duplicatesDetected  *prometheus.CounterVec
	postingsInserted    *prometheus.CounterVec
	validationFailures  *prometheus.CounterVec
	notificationsSent   *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec
	runLatency          prometheus.Histogram
	engagementRefreshed prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		candidatesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobwatch_candidates_received_total",
			Help: "取り込んだ候補投稿の合計数",
		}, []string{"category"}),
		duplicatesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobwatch_duplicates_detected_total",
			Help: "重複と判定された候補の段別合計数",
		}, []string{"tier"}),
		postingsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobwatch_postings_inserted_total",
			Help: "保存された非重複投稿の合計数",
		}, []string{"category"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobwatch_validation_failures_total",
			Help: "検証に失敗した候補の理由別合計数",
		}, []string{"reason"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobwatch_notifications_sent_total",
			Help: "チャネル別の通知送信成功の合計数",
		}, []string{"channel"}),
		notificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobwatch_notifications_failed_total",
			Help: "チャネル別の通知送信失敗の合計数",
		}, []string{"channel"}),
		runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobwatch_ingest_run_latency_seconds",
			Help:    "インジェスト1サイクルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		engagementRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobwatch_engagement_refreshed_total",
			Help: "エンゲージメント数を更新した投稿の合計数",
		}),
	}

	reg.MustRegister(
		c.candidatesReceived,
		c.duplicatesDetected,
		c.postingsInserted,
		c.validationFailures,
		c.notificationsSent,
		c.notificationsFailed,
		c.runLatency,
		c.engagementRefreshed,
	)

	return c
}

// RecordCandidateReceived は候補の取り込みを記録する。
func (c *Collector) RecordCandidateReceived(category string) {
	c.candidatesReceived.WithLabelValues(category).Inc()
}

// RecordDuplicateDetected は重複判定を段別に記録する。
func (c *Collector) RecordDuplicateDetected(tier string) {
	c.duplicatesDetected.WithLabelValues(tier).Inc()
}

// RecordPostingInserted は非重複投稿の保存を記録する。
func (c *Collector) RecordPostingInserted(category string) {
	c.postingsInserted.WithLabelValues(category).Inc()
}

// RecordValidationFailure は検証失敗を理由別に記録する。
func (c *Collector) RecordValidationFailure(reason string) {
	c.validationFailures.WithLabelValues(reason).Inc()
}

// RecordNotification は通知送信の成否をチャネル別に記録する。
func (c *Collector) RecordNotification(channel string, success bool) {
	if success {
		c.notificationsSent.WithLabelValues(channel).Inc()
	} else {
		c.notificationsFailed.WithLabelValues(channel).Inc()
	}
}

// RecordRunLatency はインジェスト1サイクルのレイテンシを記録する。
func (c *Collector) RecordRunLatency(duration time.Duration) {
	c.runLatency.Observe(duration.Seconds())
}

// RecordEngagementRefreshed はエンゲージメント更新件数を記録する。
func (c *Collector) RecordEngagementRefreshed(count int) {
	c.engagementRefreshed.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector実装。テストで使用する。
type Nop struct{}

func (Nop) RecordCandidateReceived(category string) {}
func (Nop) RecordDuplicateDetected(tier string) {}
func (Nop) RecordPostingInserted(category string) {}
func (Nop) RecordValidationFailure(reason string) {}
func (Nop) RecordNotification(channel string, ok bool) {}
func (Nop) RecordRunLatency(duration time.Duration) {}
func (Nop) RecordEngagementRefreshed(count int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
var _ MetricsCollector = Nop{}
