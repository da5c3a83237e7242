package generation

import "github.com/prometheus/client_golang/prometheus"

var (
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamachat_generation_tokens_total",
			Help: "Tokens processed by generation sessions, by kind (prompt|completion).",
		},
		[]string{"kind"},
	)
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamachat_generation_sessions_total",
			Help: "Finished generation sessions by finish reason.",
		},
		[]string{"finish_reason"},
	)
	sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llamachat_generation_session_seconds",
			Help:    "Wall time of generation sessions from start to finish.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
	sessionsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llamachat_generation_sessions_running",
			Help: "Generation workers currently running (0 or 1 per handle).",
		},
	)
)

func init() {
	prometheus.MustRegister(tokensTotal, sessionsTotal, sessionDuration, sessionsRunning)
}

func observeFinish(r Result) {
	tokensTotal.WithLabelValues("prompt").Add(float64(r.PromptTokens))
	tokensTotal.WithLabelValues("completion").Add(float64(r.CompletionTokens))
	sessionsTotal.WithLabelValues(string(r.FinishReason)).Inc()
	sessionDuration.Observe(r.Duration.Seconds())
}
