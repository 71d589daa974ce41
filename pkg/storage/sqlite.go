package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fleetwatch/hub/pkg/types"
)

// SQLiteBackend persists metrics and service checks to an embedded SQLite
// database via the pure-Go modernc.org/sqlite driver (chosen over
// mattn/go-sqlite3 specifically to avoid a cgo dependency — see DESIGN.md).
//
// Connection setup uses WAL journal mode, a 30s busy timeout and a small
// connection pool; each row stores indexed scalar columns alongside a JSON
// metadata blob for full round-trip fidelity.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at path and runs
// its schema migration.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapf(ErrConnectionFailed, "opening %s: %v", path, err)
	}
	db.SetMaxOpenConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrapf(ErrConnectionFailed, "pinging %s: %v", path, err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metrics (
			timestamp_ms INTEGER NOT NULL,
			server_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			cpu_avg REAL,
			memory_used INTEGER,
			memory_total INTEGER,
			temp_avg REAL,
			metadata TEXT NOT NULL,
			PRIMARY KEY (server_id, timestamp_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_server_ts ON metrics (server_id, timestamp_ms)`,
		`CREATE TABLE IF NOT EXISTS service_checks (
			timestamp_ms INTEGER NOT NULL,
			service_name TEXT NOT NULL,
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			response_time_ms INTEGER,
			http_status_code INTEGER,
			error_message TEXT,
			PRIMARY KEY (service_name, timestamp_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_service_ts ON service_checks (service_name, timestamp_ms)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return wrapf(ErrMigrationFailed, "%v", err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64   { return t.UnixMilli() }
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (b *SQLiteBackend) InsertBatch(ctx context.Context, rows []MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapf(ErrQueryFailed, "begin tx: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metrics
		(timestamp_ms, server_id, display_name, cpu_avg, memory_used, memory_total, temp_avg, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id, timestamp_ms) DO UPDATE SET
			display_name = excluded.display_name,
			cpu_avg = excluded.cpu_avg,
			memory_used = excluded.memory_used,
			memory_total = excluded.memory_total,
			temp_avg = excluded.temp_avg,
			metadata = excluded.metadata`)
	if err != nil {
		return wrapf(ErrQueryFailed, "prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		metadata, err := row.metadataJSON()
		if err != nil {
			return wrapf(ErrQueryFailed, "marshal metadata: %v", err)
		}
		if _, err := stmt.ExecContext(ctx, toMillis(row.Timestamp), row.ServerID, row.DisplayName,
			row.CPUAvg, row.MemoryUsed, row.MemoryTotal, row.TempAvg, string(metadata)); err != nil {
			return wrapf(ErrQueryFailed, "insert metric row: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapf(ErrQueryFailed, "commit: %v", err)
	}
	return nil
}

func scanMetricRow(scan func(dest ...any) error) (MetricRow, error) {
	var row MetricRow
	var tsMillis int64
	var metadata string
	if err := scan(&tsMillis, &row.ServerID, &row.DisplayName, &row.CPUAvg, &row.MemoryUsed, &row.MemoryTotal, &row.TempAvg, &metadata); err != nil {
		return MetricRow{}, err
	}
	row.Timestamp = fromMillis(tsMillis)
	if metadata != "" {
		var m types.ServerMetrics
		if err := json.Unmarshal([]byte(metadata), &m); err != nil {
			return MetricRow{}, err
		}
		row.Metadata = m
	}
	return row, nil
}

func (b *SQLiteBackend) QueryRange(ctx context.Context, q QueryRange) ([]MetricRow, error) {
	query := `SELECT timestamp_ms, server_id, display_name, cpu_avg, memory_used, memory_total, temp_avg, metadata
		FROM metrics WHERE server_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ? ORDER BY timestamp_ms ASC`
	args := []any{q.ServerID, toMillis(q.Start), toMillis(q.End)}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapf(ErrQueryFailed, "%v", err)
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		row, err := scanMetricRow(rows.Scan)
		if err != nil {
			return nil, wrapf(ErrQueryFailed, "scan: %v", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) QueryLatest(ctx context.Context, serverID string, limit int) ([]MetricRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, `SELECT timestamp_ms, server_id, display_name, cpu_avg, memory_used, memory_total, temp_avg, metadata
		FROM metrics WHERE server_id = ? ORDER BY timestamp_ms DESC LIMIT ?`, serverID, limit)
	if err != nil {
		return nil, wrapf(ErrQueryFailed, "%v", err)
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		row, err := scanMetricRow(rows.Scan)
		if err != nil {
			return nil, wrapf(ErrQueryFailed, "scan: %v", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) CleanupOldMetrics(ctx context.Context, before time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM metrics WHERE timestamp_ms < ?`, toMillis(before))
	if err != nil {
		return 0, wrapf(ErrQueryFailed, "%v", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (b *SQLiteBackend) InsertServiceChecksBatch(ctx context.Context, rows []ServiceCheckRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapf(ErrQueryFailed, "begin tx: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO service_checks
		(timestamp_ms, service_name, url, status, response_time_ms, http_status_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (service_name, timestamp_ms) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			response_time_ms = excluded.response_time_ms,
			http_status_code = excluded.http_status_code,
			error_message = excluded.error_message`)
	if err != nil {
		return wrapf(ErrQueryFailed, "prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, toMillis(row.Timestamp), row.ServiceName, row.URL, string(row.Status),
			row.ResponseTimeMs, row.HTTPStatusCode, row.ErrorMessage); err != nil {
			return wrapf(ErrQueryFailed, "insert service check row: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapf(ErrQueryFailed, "commit: %v", err)
	}
	return nil
}

func scanServiceCheckRow(scan func(dest ...any) error) (ServiceCheckRow, error) {
	var row ServiceCheckRow
	var tsMillis int64
	var status string
	if err := scan(&tsMillis, &row.ServiceName, &row.URL, &status, &row.ResponseTimeMs, &row.HTTPStatusCode, &row.ErrorMessage); err != nil {
		return ServiceCheckRow{}, err
	}
	row.Timestamp = fromMillis(tsMillis)
	row.Status = types.ServiceStatus(status)
	return row, nil
}

func (b *SQLiteBackend) QueryServiceChecksRange(ctx context.Context, serviceName string, start, end time.Time) ([]ServiceCheckRow, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT timestamp_ms, service_name, url, status, response_time_ms, http_status_code, error_message
		FROM service_checks WHERE service_name = ? AND timestamp_ms >= ? AND timestamp_ms <= ? ORDER BY timestamp_ms ASC`,
		serviceName, toMillis(start), toMillis(end))
	if err != nil {
		return nil, wrapf(ErrQueryFailed, "%v", err)
	}
	defer rows.Close()

	var out []ServiceCheckRow
	for rows.Next() {
		row, err := scanServiceCheckRow(rows.Scan)
		if err != nil {
			return nil, wrapf(ErrQueryFailed, "scan: %v", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) QueryLatestServiceChecks(ctx context.Context, serviceName string, limit int) ([]ServiceCheckRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, `SELECT timestamp_ms, service_name, url, status, response_time_ms, http_status_code, error_message
		FROM service_checks WHERE service_name = ? ORDER BY timestamp_ms DESC LIMIT ?`, serviceName, limit)
	if err != nil {
		return nil, wrapf(ErrQueryFailed, "%v", err)
	}
	defer rows.Close()

	var out []ServiceCheckRow
	for rows.Next() {
		row, err := scanServiceCheckRow(rows.Scan)
		if err != nil {
			return nil, wrapf(ErrQueryFailed, "scan: %v", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) CalculateUptime(ctx context.Context, serviceName string, since time.Time) (UptimeStats, error) {
	row := b.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END),
			AVG(response_time_ms)
		FROM service_checks WHERE service_name = ? AND timestamp_ms >= ?`, serviceName, toMillis(since))

	var total, successful sql.NullInt64
	var avgResp sql.NullFloat64
	if err := row.Scan(&total, &successful, &avgResp); err != nil {
		return UptimeStats{}, wrapf(ErrQueryFailed, "%v", err)
	}

	stats := UptimeStats{
		ServiceName:      serviceName,
		Start:            since,
		End:              time.Now(),
		TotalChecks:      int(total.Int64),
		SuccessfulChecks: int(successful.Int64),
	}
	if stats.TotalChecks > 0 {
		stats.UptimePercentage = float64(stats.SuccessfulChecks) / float64(stats.TotalChecks) * 100
	}
	if avgResp.Valid {
		v := avgResp.Float64
		stats.AvgResponseTimeMs = &v
	}
	return stats, nil
}

func (b *SQLiteBackend) CleanupOldServiceChecks(ctx context.Context, before time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM service_checks WHERE timestamp_ms < ?`, toMillis(before))
	if err != nil {
		return 0, wrapf(ErrQueryFailed, "%v", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (b *SQLiteBackend) HealthCheck(ctx context.Context) (HealthStatus, error) {
	if err := b.db.PingContext(ctx); err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}, wrapf(ErrUnhealthy, "%v", err)
	}
	return HealthStatus{
		Healthy:  true,
		Message:  "sqlite storage operational",
		Metadata: map[string]string{"backend": "sqlite"},
	}, nil
}

func (b *SQLiteBackend) Stats(ctx context.Context) (string, error) {
	var metricCount, checkCount int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics`).Scan(&metricCount); err != nil {
		return "", wrapf(ErrQueryFailed, "%v", err)
	}
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_checks`).Scan(&checkCount); err != nil {
		return "", wrapf(ErrQueryFailed, "%v", err)
	}
	return fmt.Sprintf("sqlite: %d metrics, %d service checks", metricCount, checkCount), nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
