package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 流水线与外部服务调用的 Prometheus 指标
// 所有方法对 nil 接收者安全，测试中可直接传 nil
type Metrics struct {
	registry         *prometheus.Registry
	transitions      *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
}

// New 创建指标集合并注册到独立的 Registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ugc",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Generation status transitions by target status kind.",
		}, []string{"to"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ugc",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Calls to external job providers.",
		}, []string{"provider", "op", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ugc",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to external job providers.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "op"}),
	}
	reg.MustRegister(m.transitions, m.providerRequests, m.providerDuration)

	return m
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTransition 记录一次状态迁移
func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// ObserveProviderCall 记录一次外部服务调用
func (m *Metrics) ObserveProviderCall(provider, op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerRequests.WithLabelValues(provider, op, outcome).Inc()
	m.providerDuration.WithLabelValues(provider, op).Observe(elapsed.Seconds())
}
