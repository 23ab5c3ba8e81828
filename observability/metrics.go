package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics covers the JSON-RPC front end.
type RPCMetrics struct {
	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled *prometheus.CounterVec
	denied    *prometheus.CounterVec
}

// VMMetrics tracks contract router activity.
type VMMetrics struct {
	executions  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	subMessages *prometheus.CounterVec
	rollbacks   *prometheus.CounterVec
}

// ProxyMetrics tracks generator proxy operations.
type ProxyMetrics struct {
	operations *prometheus.CounterVec
	forwarded  *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	vmMetricsOnce sync.Once
	vmRegistry    *VMMetrics

	proxyMetricsOnce sync.Once
	proxyRegistry    *ProxyMetrics
)

// RPC returns the JSON-RPC metrics, registering them on first use.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "rpc",
				Name:      "calls_total",
				Help:      "JSON-RPC calls by method namespace, method and HTTP status.",
			}, []string{"namespace", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "genproxy",
				Subsystem: "rpc",
				Name:      "call_duration_seconds",
				Help:      "Time from request decode to response write.",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}, []string{"namespace"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "rpc",
				Name:      "throttled_total",
				Help:      "Requests rejected before dispatch, by reason.",
			}, []string{"reason"}),
			denied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "rpc",
				Name:      "auth_denied_total",
				Help:      "Requests refused because the bearer token was missing or invalid.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.calls, rpcRegistry.latency, rpcRegistry.throttled, rpcRegistry.denied)
	})
	return rpcRegistry
}

// Observe records a dispatched call. status is the HTTP status written.
func (m *RPCMetrics) Observe(namespace, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	namespace = labelOrUnknown(namespace)
	m.calls.WithLabelValues(namespace, labelOrUnknown(method), strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(namespace).Observe(d.Seconds())
}

// RecordThrottle counts a request dropped with reason, e.g. "rate_limit".
func (m *RPCMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(labelOrUnknown(reason)).Inc()
}

// RecordAuthDenied counts a rejected bearer token.
func (m *RPCMetrics) RecordAuthDenied(method string) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(labelOrUnknown(method)).Inc()
}

// VM returns the router metrics registry.
func VM() *VMMetrics {
	vmMetricsOnce.Do(func() {
		vmRegistry = &VMMetrics{
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "vm",
				Name:      "executions_total",
				Help:      "Top-level contract operations segmented by entry point, contract label and outcome.",
			}, []string{"kind", "contract", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "genproxy",
				Subsystem: "vm",
				Name:      "execution_duration_seconds",
				Help:      "Wall time spent executing a top-level operation including follow-up messages.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			subMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "vm",
				Name:      "submessages_total",
				Help:      "Follow-up messages executed by committed operations, by originating contract.",
			}, []string{"contract"}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "vm",
				Name:      "rollbacks_total",
				Help:      "Operations reverted because the handler or a follow-up message failed.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			vmRegistry.executions,
			vmRegistry.duration,
			vmRegistry.subMessages,
			vmRegistry.rollbacks,
		)
	})
	return vmRegistry
}

// RecordExecution records a finished top-level operation.
func (m *VMMetrics) RecordExecution(kind, contract, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(labelOrUnknown(kind), labelOrUnknown(contract), labelOrUnknown(outcome)).Inc()
	m.duration.WithLabelValues(labelOrUnknown(kind)).Observe(d.Seconds())
}

// RecordSubMessages adds n executed follow-up messages.
func (m *VMMetrics) RecordSubMessages(contract string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.subMessages.WithLabelValues(labelOrUnknown(contract)).Add(float64(n))
}

// RecordRollback counts a reverted operation.
func (m *VMMetrics) RecordRollback(kind string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(labelOrUnknown(kind)).Inc()
}

// Proxy returns the generator proxy metrics registry.
func Proxy() *ProxyMetrics {
	proxyMetricsOnce.Do(func() {
		proxyRegistry = &ProxyMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "proxy",
				Name:      "operations_total",
				Help:      "Generator proxy operations by outcome. Successes are counted after commit.",
			}, []string{"operation", "outcome"}),
			forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "proxy",
				Name:      "forwarded_messages_total",
				Help:      "Follow-up messages issued by the proxy segmented by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(proxyRegistry.operations, proxyRegistry.forwarded)
	})
	return proxyRegistry
}

// RecordOperation counts an operation outcome. Outcomes are stable strings such
// as "success", "unauthorized" or "invalid".
func (m *ProxyMetrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(labelOrUnknown(operation), labelOrUnknown(outcome)).Inc()
}

// RecordForwarded adds n follow-up messages issued by operation.
func (m *ProxyMetrics) RecordForwarded(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.forwarded.WithLabelValues(labelOrUnknown(operation)).Add(float64(n))
}

func labelOrUnknown(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
