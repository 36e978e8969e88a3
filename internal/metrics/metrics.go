package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusNotice  = "notice"
	StatusSkipped = "skipped"
)

var (
	subscribersTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weather_bot_subscribers_total",
		Help: "Number of subscriber records in the store",
	})

	ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_bot_ticks_total",
		Help: "Scheduler ticks by result",
	}, []string{"result"})

	tickDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "weather_bot_tick_duration_seconds",
		Help:    "Duration of scheduler ticks in seconds",
		Buckets: prometheus.DefBuckets,
	})

	deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_bot_deliveries_total",
		Help: "Notification deliveries by occasion and status",
	}, []string{"occasion", "status"})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_bot_errors_total",
		Help: "Total number of errors",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(subscribersTotal)
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(tickDurationSeconds)
	prometheus.MustRegister(deliveriesTotal)
	prometheus.MustRegister(errorsTotal)
}

// SetSubscribers updates the subscribers_total gauge
func SetSubscribers(n int) {
	subscribersTotal.Set(float64(n))
}

// RecordTick records a scheduler tick and how long it took
func RecordTick(result string, duration time.Duration) {
	ticksTotal.WithLabelValues(result).Inc()
	tickDurationSeconds.Observe(duration.Seconds())
}

// RecordDelivery records one delivery attempt
func RecordDelivery(occasion, status string) {
	deliveriesTotal.WithLabelValues(occasion, status).Inc()
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
