package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Collector metrics
	ServersMonitored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_servers_monitored",
			Help: "Total number of servers currently being polled",
		},
	)

	CollectorPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_collector_polls_total",
			Help: "Total number of agent polls attempted by result",
		},
		[]string{"server_id", "result"},
	)

	CollectorPollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_collector_poll_duration_seconds",
			Help:    "Time taken to poll an agent and decode its response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server_id"},
	)

	// Service monitor metrics
	ServicesMonitored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_services_monitored",
			Help: "Total number of services currently being probed",
		},
	)

	ServiceChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_service_checks_total",
			Help: "Total number of service probes by status",
		},
		[]string{"service_name", "status"},
	)

	ServiceCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_service_check_duration_seconds",
			Help:    "Time taken for a service probe to complete",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service_name"},
	)

	// Alert metrics
	AlertsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_dispatched_total",
			Help: "Total number of alerts dispatched by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	AlertsMuted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_alerts_muted",
			Help: "Whether alert dispatch is currently muted (1) or not (0)",
		},
	)

	// Storage metrics
	StorageFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_storage_flush_duration_seconds",
			Help:    "Time taken for a storage flush cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_storage_flushes_total",
			Help: "Total number of storage flush cycles completed",
		},
	)

	StorageRowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetwatch_storage_rows_total",
			Help: "Total rows currently retained by kind",
		},
		[]string{"kind"},
	)

	StorageCleanupDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_storage_cleanup_deleted_total",
			Help: "Total rows deleted by retention cleanup, by kind",
		},
		[]string{"kind"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	StreamClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_stream_clients_connected",
			Help: "Number of WebSocket clients currently subscribed to the live stream",
		},
	)

	BusLagEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_bus_lag_events_total",
			Help: "Total number of bus events skipped by lagging stream clients",
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(ServersMonitored)
	prometheus.MustRegister(CollectorPollsTotal)
	prometheus.MustRegister(CollectorPollDuration)
	prometheus.MustRegister(ServicesMonitored)
	prometheus.MustRegister(ServiceChecksTotal)
	prometheus.MustRegister(ServiceCheckDuration)
	prometheus.MustRegister(AlertsDispatchedTotal)
	prometheus.MustRegister(AlertsMuted)
	prometheus.MustRegister(StorageFlushDuration)
	prometheus.MustRegister(StorageFlushesTotal)
	prometheus.MustRegister(StorageRowsTotal)
	prometheus.MustRegister(StorageCleanupDeletedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(StreamClientsConnected)
	prometheus.MustRegister(BusLagEventsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
