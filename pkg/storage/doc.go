/*
Package storage provides time-series persistence for the hub's metric and
service-check history behind a single Backend interface, plus the actor
(Spawn) that owns buffering, periodic flush, and retention cleanup.

Two implementations are provided: MemoryBackend, a fixed-capacity ring per
server/service for tests and no-persistence deployments, and SQLiteBackend,
a modernc.org/sqlite (pure Go, no cgo) file-backed store in WAL mode.

# Actor

The storage actor subscribes to the metric and service-check buses and
buffers incoming rows rather than writing on every event. A flush happens
on whichever comes first: a 10s ticker, the buffer crossing 100 rows, an
explicit Flush call, or actor shutdown. A failed flush keeps the buffered
rows for the next attempt instead of guessing which insert succeeded.
Retention cleanup runs hourly, deleting rows older than the configured
retention window.

Reads (QueryRange, QueryLatest, the service-check equivalents, and
CalculateUptime) pass through the actor to the backend rather than the API
layer holding its own handle, so a read never runs concurrently with a
flush. A read sees only rows already flushed to the backend; rows still in
the actor's buffer become visible after the next flush.

# Schema

MetricRow and ServiceCheckRow are upserted keyed on (server/service
identity, timestamp): re-inserting a sample with the same timestamp
overwrites rather than duplicates, so an agent retry or overlapping
collector poll never double-counts.

# Usage

	backend, err := storage.NewSQLiteBackend(ctx, "/var/lib/fleetwatch/hub.db")
	handle := storage.Spawn(backend, retentionDays, metricBus, checkBus)
	defer handle.Shutdown()

	rows, err := handle.QueryLatest(ctx, "10.0.0.5:51243", 100)
*/
package storage
