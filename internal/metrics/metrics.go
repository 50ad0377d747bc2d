// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// 認証・同期のコアから利用する。
type Recorder interface {
	RecordRenewalSuccess()
	RecordRenewalFailure()
	RecordModeTransition(mode string)
	SetCurrentMode(mode string)
	RecordEventApplied(kind string)
	RecordEventDiscarded(reason string)
	RecordPollCycle()
	RecordPollFailure()
	RecordReconnect()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	renewalSuccess  prometheus.Counter
	renewalFailure  prometheus.Counter
	modeTransitions *prometheus.CounterVec
	currentMode     *prometheus.GaugeVec
	eventsApplied   *prometheus.CounterVec
	eventsDiscarded *prometheus.CounterVec
	pollCycles      prometheus.Counter
	pollFailures    prometheus.Counter
	reconnects      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		renewalSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociosync_renewal_success_total",
			Help: "トークン更新成功の合計数",
		}),
		renewalFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociosync_renewal_failure_total",
			Help: "トークン更新失敗の合計数",
		}),
		modeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociosync_feed_mode_transitions_total",
			Help: "チェンジフィードのモード遷移数（遷移先モード別）",
		}, []string{"to"}),
		currentMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sociosync_feed_mode",
			Help: "現在のチェンジフィードモード（該当モードのみ1）",
		}, []string{"mode"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociosync_events_applied_total",
			Help: "キャッシュに適用されたプッシュイベント数（種別別）",
		}, []string{"kind"}),
		eventsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociosync_events_discarded_total",
			Help: "破棄されたプッシュイベント数（理由別）",
		}, []string{"reason"}),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociosync_poll_cycles_total",
			Help: "ポーリング再取得サイクルの合計数",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociosync_poll_failures_total",
			Help: "失敗したポーリングサイクルの合計数",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sociosync_reconnects_total",
			Help: "プッシュチャネルの再接続試行数",
		}),
	}

	reg.MustRegister(
		c.renewalSuccess,
		c.renewalFailure,
		c.modeTransitions,
		c.currentMode,
		c.eventsApplied,
		c.eventsDiscarded,
		c.pollCycles,
		c.pollFailures,
		c.reconnects,
	)

	return c
}

// RecordRenewalSuccess はトークン更新成功を記録する。
func (c *Collector) RecordRenewalSuccess() {
	c.renewalSuccess.Inc()
}

// RecordRenewalFailure はトークン更新失敗を記録する。
func (c *Collector) RecordRenewalFailure() {
	c.renewalFailure.Inc()
}

// RecordModeTransition はフィードのモード遷移を記録する。
func (c *Collector) RecordModeTransition(mode string) {
	c.modeTransitions.WithLabelValues(mode).Inc()
}

// SetCurrentMode は現在のフィードモードのゲージを更新する。
func (c *Collector) SetCurrentMode(mode string) {
	for _, m := range []string{"connecting", "push", "poll"} {
		v := 0.0
		if m == mode {
			v = 1.0
		}
		c.currentMode.WithLabelValues(m).Set(v)
	}
}

// RecordEventApplied は適用されたプッシュイベントを記録する。
func (c *Collector) RecordEventApplied(kind string) {
	c.eventsApplied.WithLabelValues(kind).Inc()
}

// RecordEventDiscarded は破棄されたプッシュイベントを記録する。
func (c *Collector) RecordEventDiscarded(reason string) {
	c.eventsDiscarded.WithLabelValues(reason).Inc()
}

// RecordPollCycle はポーリングサイクルの実行を記録する。
func (c *Collector) RecordPollCycle() {
	c.pollCycles.Inc()
}

// RecordPollFailure はポーリングサイクルの失敗を記録する。
func (c *Collector) RecordPollFailure() {
	c.pollFailures.Inc()
}

// RecordReconnect はプッシュチャネルの再接続試行を記録する。
func (c *Collector) RecordReconnect() {
	c.reconnects.Inc()
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRenewalSuccess()       {}
func (Nop) RecordRenewalFailure()       {}
func (Nop) RecordModeTransition(string) {}
func (Nop) SetCurrentMode(string)       {}
func (Nop) RecordEventApplied(string)   {}
func (Nop) RecordEventDiscarded(string) {}
func (Nop) RecordPollCycle()            {}
func (Nop) RecordPollFailure()          {}
func (Nop) RecordReconnect()            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
