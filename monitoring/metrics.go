package monitoring

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auditrisk"

var (
	// PredictionsTotal 按结果统计预测请求
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		},
		[]string{"outcome"},
	)

	// PredictedRiskTotal 按风险标签统计成功预测
	PredictedRiskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predicted_risk_total",
			Help:      "Successful predictions by risk label.",
		},
		[]string{"risk"},
	)

	// LogAppendFailuresTotal 预测日志写入失败次数
	LogAppendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_log_append_failures_total",
			Help:      "Prediction log appends that failed.",
		},
	)

	// LogAppendDuration 预测日志写入耗时
	LogAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_log_append_duration_seconds",
			Help:      "Time spent appending to the prediction log.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// HTTPRequestsTotal HTTP请求计数
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path pattern and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP请求耗时
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// FeedClients 当前WebSocket订阅数
	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prediction_feed_clients",
			Help:      "Connected prediction feed clients.",
		},
	)
)

var registerOnce sync.Once

// Register 注册所有指标（可重复调用）
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PredictionsTotal,
			PredictedRiskTotal,
			LogAppendFailuresTotal,
			LogAppendDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			FeedClients,
		)
	})
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
