package collector

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/types"
)

func TestCollectorPublishesDecodedMetrics(t *testing.T) {
	const secret = "s3cr3t"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, secret, r.Header.Get("X-MONITORING-SECRET"))
		snapshot := types.ServerMetrics{
			Cpus: types.CpuOverview{
				Total: 2,
				Cpus: []types.CpuInformation{
					{Name: "cpu0", Usage: 10},
					{Name: "cpu1", Usage: 30},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(snapshot))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := types.ResolvedServerConfig{
		IP:       net.ParseIP(host),
		Port:     uint16(port),
		Display:  "test-server",
		Interval: 1,
		Token:    secret,
	}

	metricBus := bus.New[types.MetricEvent]()
	_, sub := metricBus.Subscribe()

	handle := Spawn(cfg, metricBus)
	defer handle.Shutdown()

	handle.PollNow()

	select {
	case env := <-sub:
		assert.Equal(t, cfg.ServerID(), env.Event.ServerID)
		assert.InDelta(t, 20.0, env.Event.Metrics.Cpus.AverageUsage, 0.01)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a metric event, got none")
	}
}
