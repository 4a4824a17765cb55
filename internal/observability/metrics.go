package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms the loop and gateway report to.
// A nil *Metrics is valid everywhere and records nothing, so wiring metrics
// stays optional.
type Metrics struct {
	modelCalls    prometheus.Counter
	modelRetries  prometheus.Counter
	modelFailures prometheus.Counter
	toolCalls     prometheus.Counter
	toolFailures  prometheus.Counter
	toolDuration  prometheus.Histogram
	chatRounds    prometheus.Histogram
}

// NewMetrics builds and registers the metric set. Pass
// prometheus.DefaultRegisterer for the usual process-global registry, or a
// fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		modelCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastgemini",
			Name:      "model_calls_total",
			Help:      "Generate-content calls issued, including retries.",
		}),
		modelRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastgemini",
			Name:      "model_retries_total",
			Help:      "Generate-content attempts beyond the first.",
		}),
		modelFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastgemini",
			Name:      "model_failures_total",
			Help:      "Generate-content calls that failed after the retry budget.",
		}),
		toolCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastgemini",
			Name:      "tool_calls_total",
			Help:      "Tool invocations executed.",
		}),
		toolFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastgemini",
			Name:      "tool_failures_total",
			Help:      "Tool invocations that returned an error or panicked.",
		}),
		toolDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fastgemini",
			Name:      "tool_batch_duration_seconds",
			Help:      "Wall time per executed tool batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		chatRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fastgemini",
			Name:      "chat_rounds",
			Help:      "Model rounds consumed per chat invocation.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
	}
	reg.MustRegister(
		m.modelCalls, m.modelRetries, m.modelFailures,
		m.toolCalls, m.toolFailures, m.toolDuration, m.chatRounds,
	)
	return m
}

// ModelCall records one generate-content attempt.
func (m *Metrics) ModelCall() {
	if m == nil {
		return
	}
	m.modelCalls.Inc()
}

// ModelRetry records an attempt beyond the first.
func (m *Metrics) ModelRetry() {
	if m == nil {
		return
	}
	m.modelRetries.Inc()
}

// ModelFailure records a call that exhausted its retry budget.
func (m *Metrics) ModelFailure() {
	if m == nil {
		return
	}
	m.modelFailures.Inc()
}

// ToolBatch records an executed batch: the number of invocations it carried
// and its wall time.
func (m *Metrics) ToolBatch(calls int, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.Add(float64(calls))
	m.toolDuration.Observe(d.Seconds())
}

// ToolFailure records a failed tool invocation.
func (m *Metrics) ToolFailure() {
	if m == nil {
		return
	}
	m.toolFailures.Inc()
}

// ChatRounds records how many model rounds one chat invocation used.
func (m *Metrics) ChatRounds(n int) {
	if m == nil {
		return
	}
	m.chatRounds.Observe(float64(n))
}
