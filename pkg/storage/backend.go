// Package storage defines the pluggable persistence abstraction the storage
// actor writes through, and provides two implementations: an in-memory ring
// buffer (the default, for tests and no-persistence deployments) and an
// embedded SQLite backend (WAL journal mode, bounded busy timeout).
package storage

import (
	"context"
	"time"
)

// QueryRange selects metric rows for one server within a closed time
// interval, optionally capped to the first Limit rows in timestamp order
// (the earliest rows of the interval).
type QueryRange struct {
	ServerID string
	Start    time.Time
	End      time.Time
	Limit    int // 0 means unlimited
}

// HealthStatus is returned by Backend.HealthCheck.
type HealthStatus struct {
	Healthy  bool
	Message  string
	Metadata map[string]string
}

// Backend is the storage abstraction the storage actor drives. Every method
// takes a context so a SQL-backed implementation can honor cancellation and
// timeouts; the in-memory implementation ignores it since it never blocks.
type Backend interface {
	InsertBatch(ctx context.Context, rows []MetricRow) error
	QueryRange(ctx context.Context, q QueryRange) ([]MetricRow, error)
	QueryLatest(ctx context.Context, serverID string, limit int) ([]MetricRow, error)
	CleanupOldMetrics(ctx context.Context, before time.Time) (int, error)

	InsertServiceChecksBatch(ctx context.Context, rows []ServiceCheckRow) error
	QueryServiceChecksRange(ctx context.Context, serviceName string, start, end time.Time) ([]ServiceCheckRow, error)
	QueryLatestServiceChecks(ctx context.Context, serviceName string, limit int) ([]ServiceCheckRow, error)
	CalculateUptime(ctx context.Context, serviceName string, since time.Time) (UptimeStats, error)
	CleanupOldServiceChecks(ctx context.Context, before time.Time) (int, error)

	HealthCheck(ctx context.Context) (HealthStatus, error)
	Stats(ctx context.Context) (string, error)
	Close() error
}
