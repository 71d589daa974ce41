package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/hub/pkg/types"
)

func TestMemoryBackendInsertAndQueryLatest(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	now := time.Now().UTC()
	avg := float32(55.5)
	rows := []MetricRow{
		{ServerID: "s1", Timestamp: now.Add(-2 * time.Minute), CPUAvg: &avg},
		{ServerID: "s1", Timestamp: now.Add(-1 * time.Minute), CPUAvg: &avg},
		{ServerID: "s1", Timestamp: now, CPUAvg: &avg},
	}
	require.NoError(t, b.InsertBatch(ctx, rows))

	latest, err := b.QueryLatest(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.True(t, latest[0].Timestamp.After(latest[1].Timestamp), "latest should be most-recent-first")
}

func TestMemoryBackendQueryRangeFiltersByWindow(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Now().UTC()

	require.NoError(t, b.InsertBatch(ctx, []MetricRow{
		{ServerID: "s1", Timestamp: now.Add(-3 * time.Hour)},
		{ServerID: "s1", Timestamp: now.Add(-30 * time.Minute)},
		{ServerID: "s1", Timestamp: now},
	}))

	rows, err := b.QueryRange(ctx, QueryRange{ServerID: "s1", Start: now.Add(-1 * time.Hour), End: now})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMemoryBackendCleanupOldMetrics(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Now().UTC()

	require.NoError(t, b.InsertBatch(ctx, []MetricRow{
		{ServerID: "s1", Timestamp: now.Add(-48 * time.Hour)},
		{ServerID: "s1", Timestamp: now},
	}))

	deleted, err := b.CleanupOldMetrics(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := b.QueryLatest(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMemoryBackendInsertIsIdempotentOnServerAndTimestamp(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	ts := time.Now().UTC()

	firstAvg := float32(10)
	secondAvg := float32(90)
	require.NoError(t, b.InsertBatch(ctx, []MetricRow{{ServerID: "s1", Timestamp: ts, CPUAvg: &firstAvg}}))
	require.NoError(t, b.InsertBatch(ctx, []MetricRow{{ServerID: "s1", Timestamp: ts, CPUAvg: &secondAvg}}))

	rows, err := b.QueryLatest(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "re-inserting the same (server_id, timestamp) must overwrite, not duplicate")
	assert.Equal(t, secondAvg, *rows[0].CPUAvg, "latest write should win on conflict")
}

func TestMemoryBackendCalculateUptime(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Now().UTC()

	resp1 := uint64(100)
	resp2 := uint64(200)
	require.NoError(t, b.InsertServiceChecksBatch(ctx, []ServiceCheckRow{
		{ServiceName: "svc", Timestamp: now.Add(-3 * time.Minute), Status: types.ServiceUp, ResponseTimeMs: &resp1},
		{ServiceName: "svc", Timestamp: now.Add(-2 * time.Minute), Status: types.ServiceDown},
		{ServiceName: "svc", Timestamp: now.Add(-1 * time.Minute), Status: types.ServiceUp, ResponseTimeMs: &resp2},
	}))

	stats, err := b.CalculateUptime(ctx, "svc", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalChecks)
	assert.Equal(t, 2, stats.SuccessfulChecks)
	assert.InDelta(t, 66.66, stats.UptimePercentage, 0.1)
	require.NotNil(t, stats.AvgResponseTimeMs)
	assert.InDelta(t, 150.0, *stats.AvgResponseTimeMs, 0.01)
}
