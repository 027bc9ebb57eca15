package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ReportsIngestedTotal counts accepted reports by source.
	ReportsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "santiagoapie",
		Subsystem: "reports",
		Name:      "ingested_total",
		Help:      "Total number of reports accepted, labeled by source.",
	}, []string{"source"})

	// ReportsRejectedTotal counts rejected submissions by reason.
	ReportsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "santiagoapie",
		Subsystem: "reports",
		Name:      "rejected_total",
		Help:      "Total number of report submissions rejected, labeled by reason.",
	}, []string{"reason"})

	// SoSafeImportTotal counts SoSafe import outcomes per poll.
	SoSafeImportTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "santiagoapie",
		Subsystem: "sosafe",
		Name:      "import_total",
		Help:      "Total number of SoSafe feed items processed, labeled by result.",
	}, []string{"result"})

	// SoSafeLastImportSeconds is a unix timestamp (seconds) of the last successful poll.
	SoSafeLastImportSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "santiagoapie",
		Subsystem: "sosafe",
		Name:      "last_import_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last successful SoSafe feed poll.",
	})

	// PublishErrorTotal counts RabbitMQ publish failures.
	PublishErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "santiagoapie",
		Subsystem: "rabbitmq",
		Name:      "publish_error_total",
		Help:      "Total number of RabbitMQ publish errors.",
	})

	// RabbitMQConnected is 1 when the publisher considers itself connected.
	RabbitMQConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "santiagoapie",
		Subsystem: "rabbitmq",
		Name:      "connected",
		Help:      "Whether the RabbitMQ publisher is currently connected (best-effort).",
	})

	// ConnectedClients is the current number of WebSocket listeners.
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "santiagoapie",
		Subsystem: "websocket",
		Name:      "connected_clients",
		Help:      "Current number of connected WebSocket clients.",
	})

	// ScoreRecomputeDurationSeconds is the time of a full score recompute.
	ScoreRecomputeDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "santiagoapie",
		Subsystem: "scores",
		Name:      "recompute_duration_seconds",
		Help:      "Time to recompute all segment and comuna scores.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// AlertsSentTotal counts comuna alert emails sent.
	AlertsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "santiagoapie",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Total number of comuna alert emails sent.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ReportsIngestedTotal,
			ReportsRejectedTotal,
			SoSafeImportTotal,
			SoSafeLastImportSeconds,
			PublishErrorTotal,
			RabbitMQConnected,
			ConnectedClients,
			ScoreRecomputeDurationSeconds,
			AlertsSentTotal,
		)
	})
}

func NowUnixSeconds() float64 {
	return float64(time.Now().Unix())
}
