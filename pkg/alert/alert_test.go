package alert

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/types"
)

func serverConfig(t *testing.T, webhookURL string) types.ResolvedServerConfig {
	t.Helper()
	return types.ResolvedServerConfig{
		IP:       net.ParseIP("10.0.0.5"),
		Port:     51243,
		Display:  "web-1",
		Interval: 15,
		Limits: &types.ResolvedLimits{
			Usage: &types.ResolvedLimit{
				Limit: 80,
				Grace: 1,
				Alert: &types.Alert{Webhook: &types.WebhookAlert{URL: webhookURL}},
			},
		},
	}
}

func TestAlertActorDispatchesOnGraceExhaustion(t *testing.T) {
	hits := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := serverConfig(t, srv.URL)
	metricBus := bus.New[types.MetricEvent]()
	checkBus := bus.New[types.ServiceCheckEvent]()

	handle := Spawn([]types.ResolvedServerConfig{cfg}, nil, metricBus, checkBus)
	defer handle.Shutdown()

	event := types.MetricEvent{
		ServerID: cfg.ServerID(),
		Metrics: types.ServerMetrics{
			Cpus: types.CpuOverview{AverageUsage: 95},
		},
		Timestamp: time.Now(),
	}

	// grace=1: first exceeding sample increments to 1, second equals grace
	// and dispatches (StartsToExceed).
	metricBus.Publish(event)
	metricBus.Publish(event)

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("expected webhook dispatch, got none")
	}
}

func TestAlertActorMuteSkipsEvaluation(t *testing.T) {
	hits := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := serverConfig(t, srv.URL)
	metricBus := bus.New[types.MetricEvent]()
	checkBus := bus.New[types.ServiceCheckEvent]()

	handle := Spawn([]types.ResolvedServerConfig{cfg}, nil, metricBus, checkBus)
	defer handle.Shutdown()

	handle.MuteAlerts(time.Minute)
	time.Sleep(50 * time.Millisecond)

	event := types.MetricEvent{
		ServerID:  cfg.ServerID(),
		Metrics:   types.ServerMetrics{Cpus: types.CpuOverview{AverageUsage: 95}},
		Timestamp: time.Now(),
	}
	metricBus.Publish(event)
	metricBus.Publish(event)

	select {
	case <-hits:
		t.Fatal("expected no dispatch while muted")
	case <-time.After(300 * time.Millisecond):
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := handle.GetState(ctx, cfg.ServerID())
	require.NoError(t, err)
	assert.Equal(t, 0, state.UsageConsecutive, "muted evaluation must not advance the grace counter")
}
