// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証・セッション発行の方式を表すラベル値。
const (
	MethodOTP    = "otp"
	MethodGoogle = "google"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやインク台帳サービスから利用する。
type MetricsCollector interface {
	RecordOTPSent(delivered bool)
	RecordOTPVerify(result string)
	RecordSessionIssued(method string)
	RecordUserCreated(method string)
	RecordInkDeducted(amount int)
	RecordInkDeductRejected(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	otpSent           *prometheus.CounterVec
	otpVerify         *prometheus.CounterVec
	sessionsIssued    *prometheus.CounterVec
	usersCreated      *prometheus.CounterVec
	inkDeducted       prometheus.Counter
	inkDeductRejected *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkstudio_otp_sent_total",
			Help: "発行したワンタイムコードの数（メール配送結果別）",
		}, []string{"delivery"}),
		otpVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkstudio_otp_verify_total",
			Help: "ワンタイムコード検証の結果別件数",
		}, []string{"result"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkstudio_sessions_issued_total",
			Help: "発行したセッション数（認証方式別）",
		}, []string{"method"}),
		usersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkstudio_users_created_total",
			Help: "新規作成されたユーザー数（認証方式別）",
		}, []string{"method"}),
		inkDeducted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkstudio_ink_deducted_total",
			Help: "消費されたインクの合計量",
		}),
		inkDeductRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkstudio_ink_deduct_rejected_total",
			Help: "拒否されたインク消費リクエスト数（理由別）",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.otpSent,
		c.otpVerify,
		c.sessionsIssued,
		c.usersCreated,
		c.inkDeducted,
		c.inkDeductRejected,
	)

	return c
}

// RecordOTPSent はコード発行を記録する。deliveredはメール送信に成功したかどうか。
func (c *Collector) RecordOTPSent(delivered bool) {
	label := "ok"
	if !delivered {
		label = "failed"
	}
	c.otpSent.WithLabelValues(label).Inc()
}

// RecordOTPVerify はコード検証の結果を記録する。
func (c *Collector) RecordOTPVerify(result string) {
	c.otpVerify.WithLabelValues(result).Inc()
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued(method string) {
	c.sessionsIssued.WithLabelValues(method).Inc()
}

// RecordUserCreated はユーザー作成を記録する。
func (c *Collector) RecordUserCreated(method string) {
	c.usersCreated.WithLabelValues(method).Inc()
}

// RecordInkDeducted は消費されたインク量を加算する。
func (c *Collector) RecordInkDeducted(amount int) {
	c.inkDeducted.Add(float64(amount))
}

// RecordInkDeductRejected はインク消費の拒否を記録する。
func (c *Collector) RecordInkDeductRejected(reason string) {
	c.inkDeductRejected.WithLabelValues(reason).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordOTPSent(bool)             {}
func (NopCollector) RecordOTPVerify(string)         {}
func (NopCollector) RecordSessionIssued(string)     {}
func (NopCollector) RecordUserCreated(string)       {}
func (NopCollector) RecordInkDeducted(int)          {}
func (NopCollector) RecordInkDeductRejected(string) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
