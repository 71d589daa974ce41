package storage

import (
	"encoding/json"
	"time"

	"github.com/fleetwatch/hub/pkg/types"
)

// MetricRow is one stored sample for one server: the hot columns used for
// range/latest queries pulled out of ServerMetrics, plus the full snapshot
// retained as a JSON blob for display.
type MetricRow struct {
	Timestamp   time.Time `json:"timestamp"`
	ServerID    string    `json:"server_id"`
	DisplayName string    `json:"display_name"`
	CPUAvg      *float32  `json:"cpu_avg,omitempty"`
	MemoryUsed  *uint64   `json:"memory_used,omitempty"`
	MemoryTotal *uint64   `json:"memory_total,omitempty"`
	TempAvg     *float32  `json:"temp_avg,omitempty"`
	Metadata    types.ServerMetrics `json:"metadata"`
}

// RowFromMetricEvent extracts a MetricRow's indexed columns from a full
// MetricEvent, mirroring schema.rs's MetricRow::from_server_metrics.
func RowFromMetricEvent(event types.MetricEvent) MetricRow {
	m := event.Metrics
	row := MetricRow{
		Timestamp:   event.Timestamp,
		ServerID:    event.ServerID,
		DisplayName: event.DisplayName,
		MemoryUsed:  &m.Memory.Used,
		MemoryTotal: &m.Memory.Total,
		Metadata:    m,
	}
	if m.Cpus.AverageUsage != 0 || len(m.Cpus.Cpus) > 0 {
		avg := m.Cpus.AverageUsage
		row.CPUAvg = &avg
	}
	row.TempAvg = m.Components.AverageTemperature
	return row
}

// metadataJSON marshals the row's metadata for the JSON-blob column a SQL
// backend stores alongside the indexed columns.
func (r MetricRow) metadataJSON() ([]byte, error) {
	return json.Marshal(r.Metadata)
}

// ServiceCheckRow is one stored probe result for one service.
type ServiceCheckRow struct {
	Timestamp      time.Time           `json:"timestamp"`
	ServiceName    string              `json:"service_name"`
	URL            string              `json:"url"`
	Status         types.ServiceStatus `json:"status"`
	ResponseTimeMs *uint64             `json:"response_time_ms,omitempty"`
	HTTPStatusCode *int                `json:"http_status_code,omitempty"`
	ErrorMessage   *string             `json:"error_message,omitempty"`
}

// RowFromServiceCheckEvent builds a storage row from a published event.
func RowFromServiceCheckEvent(event types.ServiceCheckEvent) ServiceCheckRow {
	return ServiceCheckRow{
		Timestamp:      event.Timestamp,
		ServiceName:    event.ServiceName,
		URL:            event.URL,
		Status:         event.Status,
		ResponseTimeMs: event.ResponseTimeMs,
		HTTPStatusCode: event.HTTPStatusCode,
		ErrorMessage:   event.ErrorMessage,
	}
}

// UptimeStats summarizes service checks over a window.
type UptimeStats struct {
	ServiceName        string    `json:"service_name"`
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	TotalChecks         int       `json:"total_checks"`
	SuccessfulChecks    int       `json:"successful_checks"`
	UptimePercentage    float64   `json:"uptime_percentage"`
	AvgResponseTimeMs   *float64  `json:"avg_response_time_ms,omitempty"`
}
