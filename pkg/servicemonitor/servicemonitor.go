// Package servicemonitor implements the per-service HTTP(S) probing actor:
// one Monitor per configured service, checking on a fixed interval and
// publishing a ServiceCheckEvent to the shared bus on every attempt, on a
// ticker+command-channel run loop with an execute/evaluate split.
package servicemonitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/metrics"
	"github.com/fleetwatch/hub/pkg/types"
)

type checkNowRequest struct{ respond chan error }
type updateIntervalRequest struct{ interval time.Duration }
type shutdownRequest struct{}

// Monitor probes one service's URL on its own goroutine and publishes every
// check outcome to the check bus, regardless of success or failure.
type Monitor struct {
	config types.ResolvedServiceConfig
	bus    *bus.Bus[types.ServiceCheckEvent]
	client *http.Client

	commands chan any
}

// Handle is the external control surface for a running Monitor.
type Handle struct {
	commands    chan any
	ServiceName string
	ServiceURL  string
}

// Spawn starts a service monitor for the given resolved config and returns a
// Handle for controlling it.
func Spawn(config types.ResolvedServiceConfig, checkBus *bus.Bus[types.ServiceCheckEvent]) *Handle {
	m := &Monitor{
		config:   config,
		bus:      checkBus,
		client:   &http.Client{Timeout: time.Duration(config.Timeout) * time.Second},
		commands: make(chan any, 8),
	}

	go m.run()

	return &Handle{commands: m.commands, ServiceName: config.Name, ServiceURL: config.URL}
}

func (m *Monitor) run() {
	logger := log.WithServiceName(m.config.Name).With().Str("component", "servicemonitor").Logger()
	logger.Debug().Msg("starting service monitor")

	metrics.ServicesMonitored.Inc()
	defer metrics.ServicesMonitored.Dec()

	interval := time.Duration(m.config.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var pendingInterval time.Duration

	for {
		select {
		case <-ticker.C:
			m.performCheck(logger)
			if pendingInterval > 0 {
				ticker.Reset(pendingInterval)
				pendingInterval = 0
			}

		case cmd := <-m.commands:
			switch req := cmd.(type) {
			case checkNowRequest:
				req.respond <- m.performCheck(logger)

			case updateIntervalRequest:
				pendingInterval = req.interval

			case shutdownRequest:
				logger.Debug().Msg("service monitor stopped")
				return
			}
		}
	}
}

// performCheck executes one probe and always publishes a ServiceCheckEvent,
// even on a transport failure — a failed request is itself a Down result,
// never a dropped tick.
func (m *Monitor) performCheck(logger zerolog.Logger) error {
	timer := metrics.NewTimer()
	start := time.Now()

	statusCode, body, reqErr := m.executeRequest()
	responseTime := uint64(time.Since(start).Milliseconds())
	metrics.ServiceCheckDuration.WithLabelValues(m.config.Name).Observe(timer.Duration().Seconds())

	event := types.ServiceCheckEvent{
		ServiceName: m.config.Name,
		URL:         m.config.URL,
		Timestamp:   time.Now().UTC(),
	}

	if reqErr != nil {
		logger.Warn().Err(reqErr).Msg("service check failed")
		event.Status = types.ServiceDown
		errMsg := reqErr.Error()
		event.ErrorMessage = &errMsg
		metrics.ServiceChecksTotal.WithLabelValues(m.config.Name, string(types.ServiceDown)).Inc()
		m.bus.Publish(event)
		return nil
	}

	status := m.evaluateResponse(statusCode, body, logger)
	event.Status = status
	event.ResponseTimeMs = &responseTime
	event.HTTPStatusCode = &statusCode
	if status == types.ServiceDown {
		msg := fmt.Sprintf("unexpected status code: %d", statusCode)
		event.ErrorMessage = &msg
	}

	metrics.ServiceChecksTotal.WithLabelValues(m.config.Name, string(status)).Inc()
	m.bus.Publish(event)
	return nil
}

// executeRequest issues the configured HTTP method and returns the status
// code and body. The body is not read for HEAD requests.
func (m *Monitor) executeRequest() (int, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(m.config.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, string(m.config.Method), m.config.URL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if m.config.Method == types.MethodHead {
		return resp.StatusCode, "", nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, string(data), nil
}

// evaluateResponse checks the status code against the configured
// expectation (default: any 2xx) and, if configured, the body against a
// regular expression. An invalid pattern degrades rather than panics.
func (m *Monitor) evaluateResponse(statusCode int, body string, logger zerolog.Logger) types.ServiceStatus {
	statusOK := false
	if len(m.config.ExpectedStatus) > 0 {
		for _, expected := range m.config.ExpectedStatus {
			if expected == statusCode {
				statusOK = true
				break
			}
		}
	} else {
		statusOK = statusCode >= 200 && statusCode < 300
	}

	if !statusOK {
		return types.ServiceDown
	}

	if m.config.BodyPattern != nil {
		re, err := regexp.Compile(*m.config.BodyPattern)
		if err != nil {
			logger.Error().Err(err).Str("pattern", *m.config.BodyPattern).Msg("invalid body pattern")
			return types.ServiceDegraded
		}
		if !re.MatchString(body) {
			return types.ServiceDegraded
		}
	}

	return types.ServiceUp
}

// CheckNow triggers an immediate, out-of-cycle check and waits for it to
// complete.
func (h *Handle) CheckNow(ctx context.Context) error {
	respond := make(chan error, 1)
	select {
	case h.commands <- checkNowRequest{respond: respond}:
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

// UpdateInterval changes the check interval; it takes effect from the
// monitor's next tick, not the in-flight wait.
func (h *Handle) UpdateInterval(interval time.Duration) {
	h.commands <- updateIntervalRequest{interval: interval}
}

// Shutdown stops the monitor's goroutine.
func (h *Handle) Shutdown() {
	h.commands <- shutdownRequest{}
}
