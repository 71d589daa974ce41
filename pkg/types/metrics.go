// Package types holds the data shapes shared across the hub and the agent
// probe: raw server metrics, resolved configuration and the events
// actors publish to each other.
package types

import "time"

// SystemInformation describes the host OS an agent is running on.
type SystemInformation struct {
	Name          *string `json:"name,omitempty"`
	KernelVersion *string `json:"kernel_version,omitempty"`
	OSVersion     *string `json:"os_version,omitempty"`
	HostName      *string `json:"host_name,omitempty"`
}

// MemoryInformation reports memory and swap usage in bytes.
type MemoryInformation struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	TotalSwap uint64 `json:"total_swap"`
	UsedSwap  uint64 `json:"used_swap"`
}

// CpuInformation is a single CPU core's reading.
type CpuInformation struct {
	Name      string  `json:"name"`
	Frequency uint64  `json:"frequency"`
	Usage     float32 `json:"usage"`
}

// CpuOverview aggregates per-core readings plus the average usage across
// cores. AverageUsage is computed by the agent when the snapshot is built,
// mirroring the value the original resource monitor reads directly off the
// struct rather than recomputing it per evaluation.
type CpuOverview struct {
	Total        int              `json:"total"`
	Arch         string           `json:"arch"`
	AverageUsage float32          `json:"average_usage"`
	Cpus         []CpuInformation `json:"cpus"`
}

// ComponentInformation is a single sensor (e.g. a CPU package or a fan
// controller) with an optional temperature reading.
type ComponentInformation struct {
	Name        string   `json:"name"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// ComponentOverview aggregates sensor readings plus the average temperature
// across all sensors that reported one.
type ComponentOverview struct {
	AverageTemperature *float32               `json:"average_temperature,omitempty"`
	Components         []ComponentInformation `json:"components"`
}

// ServerMetrics is the full snapshot an agent serves from GET /metrics and a
// collector decodes on every poll.
type ServerMetrics struct {
	System     SystemInformation `json:"system"`
	Memory     MemoryInformation `json:"memory"`
	Cpus       CpuOverview       `json:"cpus"`
	Components ComponentOverview `json:"components"`
}

// ComputeAverages fills AverageUsage and AverageTemperature from the raw
// per-core/per-sensor readings. The agent stub calls this once per snapshot;
// a collector calls it defensively in case an agent sent raw readings only.
func (m *ServerMetrics) ComputeAverages() {
	if n := len(m.Cpus.Cpus); n > 0 {
		var sum float32
		for _, c := range m.Cpus.Cpus {
			sum += c.Usage
		}
		m.Cpus.AverageUsage = sum / float32(n)
	}

	var sum float32
	var count int
	for _, c := range m.Components.Components {
		if c.Temperature != nil {
			sum += *c.Temperature
			count++
		}
	}
	if count > 0 {
		avg := sum / float32(count)
		m.Components.AverageTemperature = &avg
	}
}

// MetricEvent is published by a collector every time it successfully polls
// an agent, and consumed by the alert actor, the storage actor and any
// stream subscriber.
type MetricEvent struct {
	ServerID    string        `json:"server_id"`
	DisplayName string        `json:"display_name"`
	Metrics     ServerMetrics `json:"metrics"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ServiceStatus is the three-way verdict a service monitor assigns to a
// single probe.
type ServiceStatus string

const (
	ServiceUp       ServiceStatus = "up"
	ServiceDown     ServiceStatus = "down"
	ServiceDegraded ServiceStatus = "degraded"
)

// ServiceCheckEvent is published by a service monitor after every probe.
type ServiceCheckEvent struct {
	ServiceName     string        `json:"service_name"`
	URL             string        `json:"url"`
	Timestamp       time.Time     `json:"timestamp"`
	Status          ServiceStatus `json:"status"`
	ResponseTimeMs  *uint64       `json:"response_time_ms,omitempty"`
	HTTPStatusCode  *int          `json:"http_status_code,omitempty"`
	ErrorMessage    *string       `json:"error_message,omitempty"`
}
