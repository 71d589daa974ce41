/*
Package metrics provides Prometheus metrics collection and exposition for
the hub.

All metrics are registered at package init against the default Prometheus
registry and exposed for scraping via Handler().

# Metrics Catalog

Collector:

	fleetwatch_servers_monitored                 Gauge
	fleetwatch_collector_polls_total{server_id,result}  Counter
	fleetwatch_collector_poll_duration_seconds{server_id} Histogram

Service monitor:

	fleetwatch_services_monitored                 Gauge
	fleetwatch_service_checks_total{service_name,status} Counter
	fleetwatch_service_check_duration_seconds{service_name} Histogram

Alerting:

	fleetwatch_alerts_dispatched_total{sink,outcome} Counter
	fleetwatch_alerts_muted                          Gauge

Storage:

	fleetwatch_storage_flush_duration_seconds     Histogram
	fleetwatch_storage_flushes_total               Counter
	fleetwatch_storage_rows_total{kind}            Gauge (registered; no component sets it)
	fleetwatch_storage_cleanup_deleted_total{kind} Counter

API:

	fleetwatch_api_requests_total{route,status}           Counter
	fleetwatch_api_request_duration_seconds{route}        Histogram
	fleetwatch_stream_clients_connected                   Gauge
	fleetwatch_bus_lag_events_total{topic}                Counter

# Usage

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.ServiceCheckDuration, "api")

	metrics.AlertsDispatchedTotal.WithLabelValues("discord", "ok").Inc()

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
