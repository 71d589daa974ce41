package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetwatch/hub/pkg/types"
)

// memoryRingCapacity bounds how many rows the in-memory backend retains per
// server/service before evicting the oldest. At one sample per 15s this is
// roughly 17h of history — plenty for a dashboard, not meant as durable
// storage (see backend docs).
const memoryRingCapacity = 4096

// MemoryBackend is the default storage backend: a ring buffer per
// server/service kept entirely in the process's memory. Unlike the Rust
// stub it is grounded on (which left insert/cleanup as no-ops pending
// "interior mutability"), this implementation actually mutates its buffers
// under a mutex, since Go has no borrow checker forcing that deferral.
type MemoryBackend struct {
	mu                    sync.RWMutex
	metrics               map[string][]MetricRow
	serviceChecks         map[string][]ServiceCheckRow
	totalMetrics          int
	totalServiceChecks    int
	totalMetricsDeleted   int
	totalChecksDeleted    int
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		metrics:       make(map[string][]MetricRow),
		serviceChecks: make(map[string][]ServiceCheckRow),
	}
}

func pushRing[T any](ring []T, row T, capacity int) []T {
	ring = append(ring, row)
	if len(ring) > capacity {
		ring = ring[len(ring)-capacity:]
	}
	return ring
}

// upsertByTimestamp enforces (key, timestamp) primary-key semantics even
// for the ephemeral backend: a row sharing an existing row's timestamp
// overwrites it in place rather than appending a duplicate.
func upsertByTimestamp[T any](ring []T, row T, ts time.Time, tsOf func(T) time.Time, capacity int) ([]T, bool) {
	for i, existing := range ring {
		if tsOf(existing).Equal(ts) {
			ring[i] = row
			return ring, false
		}
	}
	return pushRing(ring, row, capacity), true
}

func (b *MemoryBackend) InsertBatch(_ context.Context, rows []MetricRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, row := range rows {
		var inserted bool
		b.metrics[row.ServerID], inserted = upsertByTimestamp(b.metrics[row.ServerID], row, row.Timestamp,
			func(r MetricRow) time.Time { return r.Timestamp }, memoryRingCapacity)
		if inserted {
			b.totalMetrics++
		}
	}
	return nil
}

func (b *MemoryBackend) QueryRange(_ context.Context, q QueryRange) ([]MetricRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []MetricRow
	for _, row := range b.metrics[q.ServerID] {
		if row.Timestamp.Before(q.Start) || row.Timestamp.After(q.End) {
			continue
		}
		out = append(out, row)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (b *MemoryBackend) QueryLatest(_ context.Context, serverID string, limit int) ([]MetricRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows := b.metrics[serverID]
	return lastN(rows, limit), nil
}

func lastN[T any](rows []T, limit int) []T {
	if limit <= 0 || limit >= len(rows) {
		out := make([]T, len(rows))
		copy(out, rows)
		return reverseCopy(out)
	}
	out := make([]T, limit)
	copy(out, rows[len(rows)-limit:])
	return reverseCopy(out)
}

func reverseCopy[T any](rows []T) []T {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

func (b *MemoryBackend) CleanupOldMetrics(_ context.Context, before time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for serverID, rows := range b.metrics {
		kept := rows[:0:0]
		for _, row := range rows {
			if row.Timestamp.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		b.metrics[serverID] = kept
	}
	b.totalMetricsDeleted += deleted
	return deleted, nil
}

func (b *MemoryBackend) InsertServiceChecksBatch(_ context.Context, rows []ServiceCheckRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, row := range rows {
		var inserted bool
		b.serviceChecks[row.ServiceName], inserted = upsertByTimestamp(b.serviceChecks[row.ServiceName], row, row.Timestamp,
			func(r ServiceCheckRow) time.Time { return r.Timestamp }, memoryRingCapacity)
		if inserted {
			b.totalServiceChecks++
		}
	}
	return nil
}

func (b *MemoryBackend) QueryServiceChecksRange(_ context.Context, serviceName string, start, end time.Time) ([]ServiceCheckRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []ServiceCheckRow
	for _, row := range b.serviceChecks[serviceName] {
		if row.Timestamp.Before(start) || row.Timestamp.After(end) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (b *MemoryBackend) QueryLatestServiceChecks(_ context.Context, serviceName string, limit int) ([]ServiceCheckRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lastN(b.serviceChecks[serviceName], limit), nil
}

func (b *MemoryBackend) CalculateUptime(_ context.Context, serviceName string, since time.Time) (UptimeStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	var checks []ServiceCheckRow
	for _, row := range b.serviceChecks[serviceName] {
		if row.Timestamp.Before(since) {
			continue
		}
		checks = append(checks, row)
	}

	stats := UptimeStats{ServiceName: serviceName, Start: since, End: now, TotalChecks: len(checks)}
	var respSum float64
	var respCount int
	for _, c := range checks {
		if c.Status == types.ServiceUp {
			stats.SuccessfulChecks++
		}
		if c.ResponseTimeMs != nil {
			respSum += float64(*c.ResponseTimeMs)
			respCount++
		}
	}
	if stats.TotalChecks > 0 {
		stats.UptimePercentage = float64(stats.SuccessfulChecks) / float64(stats.TotalChecks) * 100
	}
	if respCount > 0 {
		avg := respSum / float64(respCount)
		stats.AvgResponseTimeMs = &avg
	}
	return stats, nil
}

func (b *MemoryBackend) CleanupOldServiceChecks(_ context.Context, before time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for name, rows := range b.serviceChecks {
		kept := rows[:0:0]
		for _, row := range rows {
			if row.Timestamp.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		b.serviceChecks[name] = kept
	}
	b.totalChecksDeleted += deleted
	return deleted, nil
}

func (b *MemoryBackend) HealthCheck(_ context.Context) (HealthStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return HealthStatus{
		Healthy: true,
		Message: "in-memory storage operational",
		Metadata: map[string]string{
			"backend":       "memory",
			"total_metrics": fmt.Sprintf("%d", b.totalMetrics),
		},
	}, nil
}

func (b *MemoryBackend) Stats(_ context.Context) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return fmt.Sprintf(
		"in-memory: %d metrics across %d servers, %d service checks across %d services",
		b.totalMetrics, len(b.metrics), b.totalServiceChecks, len(b.serviceChecks),
	), nil
}

func (b *MemoryBackend) Close() error { return nil }
