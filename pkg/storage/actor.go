package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/metrics"
	"github.com/fleetwatch/hub/pkg/types"
)

const (
	flushInterval   = 10 * time.Second
	cleanupInterval = 1 * time.Hour
	commandBuffer   = 32

	// bufferFlushThreshold is the combined buffered-row count that forces
	// an out-of-cycle flush.
	bufferFlushThreshold = 100
)

// Stats reports the storage actor's running totals: buffered rows,
// completed flushes, and retention-cleanup bookkeeping (last run time and
// per-kind deleted counts).
type Stats struct {
	TotalMetrics              int
	BufferSize                int
	FlushCount                uint64
	LastCleanupTime           *time.Time
	TotalMetricsDeleted       int
	TotalServiceChecksDeleted int
}

type flushRequest struct{ respond chan error }
type statsRequest struct{ respond chan Stats }
type shutdownRequest struct{}

// Query passthroughs let the API layer read through the actor instead of
// holding its own Backend handle, so reads are serialized with flushes. A
// read goes to the backend only; rows still in the actor's buffer are not
// visible to it until they are flushed.
type queryRangeRequest struct {
	q       QueryRange
	respond chan queryRangeResult
}
type queryRangeResult struct {
	rows []MetricRow
	err  error
}

type queryLatestRequest struct {
	serverID string
	limit    int
	respond  chan queryLatestResult
}
type queryLatestResult struct {
	rows []MetricRow
	err  error
}

type queryChecksRangeRequest struct {
	serviceName  string
	start, end   time.Time
	respond      chan queryChecksRangeResult
}
type queryChecksRangeResult struct {
	rows []ServiceCheckRow
	err  error
}

type queryChecksLatestRequest struct {
	serviceName string
	limit       int
	respond     chan queryChecksLatestResult
}
type queryChecksLatestResult struct {
	rows []ServiceCheckRow
	err  error
}

type uptimeRequest struct {
	serviceName string
	since       time.Time
	respond     chan uptimeResult
}
type uptimeResult struct {
	stats UptimeStats
	err   error
}

// Actor owns a Backend and periodically flushes buffered metric/service
// check rows to it, plus prunes rows older than the configured retention
// window, on its own ticker+select loop with a command channel for
// external control.
type Actor struct {
	backend       Backend
	retentionDays int

	metricSub <-chan bus.Envelope[types.MetricEvent]
	checkSub  <-chan bus.Envelope[types.ServiceCheckEvent]
	commands  chan any

	metricBuf []MetricRow
	checkBuf  []ServiceCheckRow

	flushCount          uint64
	totalMetrics        int
	lastCleanup         *time.Time
	totalMetricsDeleted int
	totalChecksDeleted  int
}

// Handle is the external control surface for an Actor running in its own
// goroutine.
type Handle struct {
	commands chan any
}

// Spawn starts a storage actor subscribed to metricBus and checkBus, and
// returns a Handle for controlling it. Call Handle.Shutdown to stop it.
func Spawn(backend Backend, retentionDays int, metricBus *bus.Bus[types.MetricEvent], checkBus *bus.Bus[types.ServiceCheckEvent]) *Handle {
	_, metricSub := metricBus.Subscribe()
	_, checkSub := checkBus.Subscribe()

	a := &Actor{
		backend:       backend,
		retentionDays: retentionDays,
		metricSub:     metricSub,
		checkSub:      checkSub,
		commands:      make(chan any, commandBuffer),
	}

	go a.run()

	return &Handle{commands: a.commands}
}

func (a *Actor) run() {
	logger := log.WithComponent("storage")
	logger.Debug().Msg("starting storage actor")

	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case env, ok := <-a.metricSub:
			if !ok {
				a.metricSub = nil
				continue
			}
			if env.Lagged > 0 {
				logger.Warn().Uint64("lagged", env.Lagged).Msg("storage actor lagged behind metric bus")
			}
			a.metricBuf = append(a.metricBuf, RowFromMetricEvent(env.Event))
			if len(a.metricBuf)+len(a.checkBuf) >= bufferFlushThreshold {
				if err := a.flush(context.Background()); err != nil {
					logger.Error().Err(err).Msg("flush failed, retaining buffered rows for next attempt")
				}
			}

		case env, ok := <-a.checkSub:
			if !ok {
				a.checkSub = nil
				continue
			}
			if env.Lagged > 0 {
				logger.Warn().Uint64("lagged", env.Lagged).Msg("storage actor lagged behind service check bus")
			}
			a.checkBuf = append(a.checkBuf, RowFromServiceCheckEvent(env.Event))
			if len(a.metricBuf)+len(a.checkBuf) >= bufferFlushThreshold {
				if err := a.flush(context.Background()); err != nil {
					logger.Error().Err(err).Msg("flush failed, retaining buffered rows for next attempt")
				}
			}

		case <-flushTicker.C:
			if err := a.flush(context.Background()); err != nil {
				logger.Error().Err(err).Msg("flush failed, retaining buffered rows for next attempt")
			}

		case <-cleanupTicker.C:
			a.cleanup(context.Background(), logger)

		case cmd := <-a.commands:
			switch c := cmd.(type) {
			case flushRequest:
				c.respond <- a.flush(context.Background())
			case statsRequest:
				c.respond <- a.stats()
			case queryRangeRequest:
				rows, err := a.backend.QueryRange(context.Background(), c.q)
				c.respond <- queryRangeResult{rows: rows, err: err}
			case queryLatestRequest:
				rows, err := a.backend.QueryLatest(context.Background(), c.serverID, c.limit)
				c.respond <- queryLatestResult{rows: rows, err: err}
			case queryChecksRangeRequest:
				rows, err := a.backend.QueryServiceChecksRange(context.Background(), c.serviceName, c.start, c.end)
				c.respond <- queryChecksRangeResult{rows: rows, err: err}
			case queryChecksLatestRequest:
				rows, err := a.backend.QueryLatestServiceChecks(context.Background(), c.serviceName, c.limit)
				c.respond <- queryChecksLatestResult{rows: rows, err: err}
			case uptimeRequest:
				stats, err := a.backend.CalculateUptime(context.Background(), c.serviceName, c.since)
				c.respond <- uptimeResult{stats: stats, err: err}
			case shutdownRequest:
				if err := a.flush(context.Background()); err != nil {
					logger.Error().Err(err).Msg("final flush on shutdown failed")
				}
				if err := a.backend.Close(); err != nil {
					logger.Error().Err(err).Msg("closing backend failed")
				}
				logger.Debug().Msg("storage actor stopped")
				return
			}
		}
	}
}

func (a *Actor) flush(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StorageFlushDuration)

	if len(a.metricBuf) > 0 {
		if err := a.backend.InsertBatch(ctx, a.metricBuf); err != nil {
			// Partial-batch retention decision (see DESIGN.md): a failed
			// insert retains the entire buffered batch for the next
			// flush attempt rather than guessing which rows landed.
			return err
		}
		a.totalMetrics += len(a.metricBuf)
		a.metricBuf = a.metricBuf[:0]
	}

	if len(a.checkBuf) > 0 {
		if err := a.backend.InsertServiceChecksBatch(ctx, a.checkBuf); err != nil {
			return err
		}
		a.checkBuf = a.checkBuf[:0]
	}

	a.flushCount++
	metrics.StorageFlushesTotal.Inc()
	return nil
}

func (a *Actor) cleanup(ctx context.Context, logger zerolog.Logger) {
	before := time.Now().AddDate(0, 0, -a.retentionDays)

	deletedMetrics, err := a.backend.CleanupOldMetrics(ctx, before)
	if err != nil {
		logger.Error().Err(err).Msg("metric cleanup failed")
	} else {
		a.totalMetricsDeleted += deletedMetrics
		metrics.StorageCleanupDeletedTotal.WithLabelValues("metrics").Add(float64(deletedMetrics))
	}

	deletedChecks, err := a.backend.CleanupOldServiceChecks(ctx, before)
	if err != nil {
		logger.Error().Err(err).Msg("service check cleanup failed")
	} else {
		a.totalChecksDeleted += deletedChecks
		metrics.StorageCleanupDeletedTotal.WithLabelValues("service_checks").Add(float64(deletedChecks))
	}

	now := time.Now()
	a.lastCleanup = &now
}

func (a *Actor) stats() Stats {
	return Stats{
		TotalMetrics:              a.totalMetrics,
		BufferSize:                len(a.metricBuf),
		FlushCount:                a.flushCount,
		LastCleanupTime:           a.lastCleanup,
		TotalMetricsDeleted:       a.totalMetricsDeleted,
		TotalServiceChecksDeleted: a.totalChecksDeleted,
	}
}

// Flush forces an immediate flush of buffered rows to the backend.
func (h *Handle) Flush(ctx context.Context) error {
	respond := make(chan error, 1)
	select {
	case h.commands <- flushRequest{respond: respond}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-respond:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats returns the actor's current counters.
func (h *Handle) GetStats(ctx context.Context) (Stats, error) {
	respond := make(chan Stats, 1)
	select {
	case h.commands <- statsRequest{respond: respond}:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-respond:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// QueryRange passes a metric range query through to the backend.
func (h *Handle) QueryRange(ctx context.Context, q QueryRange) ([]MetricRow, error) {
	respond := make(chan queryRangeResult, 1)
	select {
	case h.commands <- queryRangeRequest{q: q, respond: respond}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-respond:
		return r.rows, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueryLatest passes a latest-N metric query through to the backend.
func (h *Handle) QueryLatest(ctx context.Context, serverID string, limit int) ([]MetricRow, error) {
	respond := make(chan queryLatestResult, 1)
	select {
	case h.commands <- queryLatestRequest{serverID: serverID, limit: limit, respond: respond}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-respond:
		return r.rows, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueryServiceChecksRange passes a service-check range query through to the
// backend.
func (h *Handle) QueryServiceChecksRange(ctx context.Context, serviceName string, start, end time.Time) ([]ServiceCheckRow, error) {
	respond := make(chan queryChecksRangeResult, 1)
	select {
	case h.commands <- queryChecksRangeRequest{serviceName: serviceName, start: start, end: end, respond: respond}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-respond:
		return r.rows, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueryLatestServiceChecks passes a latest-N service-check query through to
// the backend.
func (h *Handle) QueryLatestServiceChecks(ctx context.Context, serviceName string, limit int) ([]ServiceCheckRow, error) {
	respond := make(chan queryChecksLatestResult, 1)
	select {
	case h.commands <- queryChecksLatestRequest{serviceName: serviceName, limit: limit, respond: respond}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-respond:
		return r.rows, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CalculateUptime passes an uptime aggregation through to the backend.
func (h *Handle) CalculateUptime(ctx context.Context, serviceName string, since time.Time) (UptimeStats, error) {
	respond := make(chan uptimeResult, 1)
	select {
	case h.commands <- uptimeRequest{serviceName: serviceName, since: since, respond: respond}:
	case <-ctx.Done():
		return UptimeStats{}, ctx.Err()
	}
	select {
	case r := <-respond:
		return r.stats, r.err
	case <-ctx.Done():
		return UptimeStats{}, ctx.Err()
	}
}

// Shutdown stops the actor's goroutine.
func (h *Handle) Shutdown() {
	h.commands <- shutdownRequest{}
}
