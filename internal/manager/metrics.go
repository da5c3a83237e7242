package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "llamachat",
		Subsystem: "manager",
		Name:      "queue_depth",
		Help:      "Requests holding or waiting for the generation slot",
	})

	queueWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "llamachat",
		Subsystem: "manager",
		Name:      "queue_wait_seconds",
		Help:      "Time spent waiting for the generation slot",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamachat",
			Subsystem: "manager",
			Name:      "backpressure_total",
			Help:      "Admissions rejected after waiting MaxWait",
		},
		[]string{"stage"},
	)

	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamachat",
			Subsystem: "manager",
			Name:      "model_loads_total",
			Help:      "Model load attempts by outcome",
		},
		[]string{"outcome"},
	)

	conversationsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "llamachat",
		Subsystem: "manager",
		Name:      "conversations",
		Help:      "Live conversations",
	})
)

func init() {
	prometheus.MustRegister(queueDepth, queueWaitSeconds, backpressureTotal, modelLoadsTotal, conversationsGauge)
}
