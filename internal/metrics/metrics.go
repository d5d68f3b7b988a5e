// Package metrics はcamgateのPrometheusメトリクスを定義する
// ラベルには状態・結果など値の種類が限られるものだけを使う
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionRequestsTotal は requestCameraPermission の結果を、要求時の認可状態ごとに数える
	PermissionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camgate_permission_requests_total",
		Help: "Total number of permission requests, by observed status and result.",
	}, []string{"status", "result"})

	// PromptsIssuedTotal はプラットフォームの許可プロンプトを出した回数
	PromptsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camgate_prompts_issued_total",
		Help: "Total number of platform authorization prompts issued.",
	})

	// PromptInFlight はプロンプト表示中なら1
	PromptInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camgate_prompt_in_flight",
		Help: "1 while a platform authorization prompt is outstanding.",
	})

	// WarmupOutcomesTotal はウォームアップの結果ごとの回数
	WarmupOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camgate_warmup_outcomes_total",
		Help: "Total number of capture warm-ups, by outcome.",
	}, []string{"outcome"})

	// ChannelCallsTotal は境界チャンネルの呼び出しをメソッドごとに数える
	// 未知のメソッドはカーディナリティを抑えるため "unknown" にまとめる
	ChannelCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camgate_channel_calls_total",
		Help: "Total number of boundary channel calls, by method.",
	}, []string{"method"})
)
