// Package collector implements the per-server polling actor: it requests a
// metrics snapshot from a monitored host's agent on a fixed interval,
// decodes it, and publishes a MetricEvent onto the shared bus.
//
// One goroutine per server owns a single reused *http.Client and runs a
// ticker+select loop accepting both timer ticks and control commands. Any
// single poll failure (network, decode, non-200) logs and waits for the
// next tick rather than aborting the actor.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/metrics"
	"github.com/fleetwatch/hub/pkg/types"
)

const requestTimeout = 30 * time.Second

type updateIntervalRequest struct {
	interval time.Duration
}
type pollNowRequest struct{}
type shutdownRequest struct{}

// Collector polls one monitored server's agent on its own goroutine and
// publishes every successful snapshot to the metric bus.
type Collector struct {
	config types.ResolvedServerConfig
	bus    *bus.Bus[types.MetricEvent]
	client *http.Client
	url    string

	commands chan any
}

// Handle is the external control surface for a running Collector.
type Handle struct {
	commands chan any
	ServerID string
	Display  string
}

// Spawn starts a collector for the given server config and returns a Handle
// for controlling it. The collector publishes onto metricBus until Shutdown
// is called.
func Spawn(config types.ResolvedServerConfig, metricBus *bus.Bus[types.MetricEvent]) *Handle {
	c := &Collector{
		config:   config,
		bus:      metricBus,
		client:   &http.Client{Timeout: requestTimeout},
		url:      fmt.Sprintf("http://%s:%d/metrics", config.IP.String(), config.Port),
		commands: make(chan any, 8),
	}

	go c.run()

	return &Handle{commands: c.commands, ServerID: config.ServerID(), Display: config.Display}
}

func (c *Collector) run() {
	logger := log.WithServerID(c.config.ServerID()).With().Str("component", "collector").Logger()
	logger.Debug().Str("display", c.config.Display).Int("interval", c.config.Interval).Msg("starting server collector")

	metrics.ServersMonitored.Inc()
	defer metrics.ServersMonitored.Dec()

	interval := time.Duration(c.config.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var pendingInterval time.Duration

	for {
		select {
		case <-ticker.C:
			c.poll(logger)
			if pendingInterval > 0 {
				ticker.Reset(pendingInterval)
				pendingInterval = 0
			}

		case cmd := <-c.commands:
			switch req := cmd.(type) {
			case pollNowRequest:
				c.poll(logger)

			case updateIntervalRequest:
				// Interval update timing decision: the new interval is
				// applied when the current wait ends (at the next tick),
				// never by truncating the in-flight wait.
				pendingInterval = req.interval

			case shutdownRequest:
				logger.Debug().Msg("server collector stopped")
				return
			}
		}
	}
}

func (c *Collector) poll(logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	serverID := c.config.ServerID()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CollectorPollDuration, serverID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build metrics request")
		metrics.CollectorPollsTotal.WithLabelValues(serverID, "error").Inc()
		return
	}
	if c.config.Token != "" {
		req.Header.Set("X-MONITORING-SECRET", c.config.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("error during metrics request")
		metrics.CollectorPollsTotal.WithLabelValues(serverID, "error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Msg("agent returned non-200 for metrics")
		metrics.CollectorPollsTotal.WithLabelValues(serverID, "error").Inc()
		return
	}

	var snapshot types.ServerMetrics
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		logger.Error().Err(err).Msg("error while decoding metrics")
		metrics.CollectorPollsTotal.WithLabelValues(serverID, "error").Inc()
		return
	}
	snapshot.ComputeAverages()
	metrics.CollectorPollsTotal.WithLabelValues(serverID, "ok").Inc()

	event := types.MetricEvent{
		ServerID:    c.config.ServerID(),
		DisplayName: c.config.Display,
		Metrics:     snapshot,
		Timestamp:   time.Now().UTC(),
	}
	c.bus.Publish(event)
	logger.Trace().Msg("published metric event")
}

// PollNow requests an immediate, out-of-cycle poll.
func (h *Handle) PollNow() {
	h.commands <- pollNowRequest{}
}

// UpdateInterval changes the polling interval; it takes effect from the
// collector's next tick, not the in-flight wait.
func (h *Handle) UpdateInterval(interval time.Duration) {
	h.commands <- updateIntervalRequest{interval: interval}
}

// Shutdown stops the collector's goroutine.
func (h *Handle) Shutdown() {
	h.commands <- shutdownRequest{}
}
