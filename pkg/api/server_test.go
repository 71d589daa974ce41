package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/storage"
	"github.com/fleetwatch/hub/pkg/types"
)

func newTestServer(t *testing.T, token string) (*Server, *bus.Bus[types.MetricEvent], *bus.Bus[types.ServiceCheckEvent], *storage.Handle) {
	t.Helper()
	metricBus := bus.New[types.MetricEvent]()
	checkBus := bus.New[types.ServiceCheckEvent]()
	backend := storage.NewMemoryBackend()
	storageHandle := storage.Spawn(backend, 30, metricBus, checkBus)
	t.Cleanup(storageHandle.Shutdown)

	serverCfg := types.ResolvedServerConfig{
		IP:      net.ParseIP("10.0.0.5"),
		Port:    51243,
		Display: "web-1",
	}
	serviceCfg := types.ResolvedServiceConfig{Name: "api", URL: "https://api.example.com"}

	s := NewServer(Deps{
		Storage:     storageHandle,
		MetricBus:   metricBus,
		CheckBus:    checkBus,
		Servers:     []types.ResolvedServerConfig{serverCfg},
		Services:    []types.ResolvedServiceConfig{serviceCfg},
		BearerToken: token,
		StartTime:   time.Now(),
	})
	return s, metricBus, checkBus, storageHandle
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestAuthRejectsMissingAndWrongToken(t *testing.T) {
	s, _, _, _ := newTestServer(t, "s3cr3t")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Authorization", "Bearer s3cr3t")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListServersReportsUpForFreshMetric(t *testing.T) {
	s, metricBus, _, storageHandle := newTestServer(t, "")

	event := types.MetricEvent{
		ServerID:    "10.0.0.5:51243",
		DisplayName: "web-1",
		Metrics:     types.ServerMetrics{Cpus: types.CpuOverview{AverageUsage: 42}},
		Timestamp:   time.Now().UTC(),
	}
	metricBus.Publish(event)
	// The storage actor may take a Flush command before it takes the event
	// off the bus, so flush until the row has been written.
	require.Eventually(t, func() bool {
		if err := storageHandle.Flush(context.Background()); err != nil {
			return false
		}
		st, err := storageHandle.GetStats(context.Background())
		return err == nil && st.TotalMetrics > 0
	}, 2*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []serverSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "up", summaries[0].Health)
}

func TestServerMetricsUnknownServerIs404(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers/9.9.9.9:1/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerMetricsInvalidLimitIs400(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers/10.0.0.5:51243/metrics/latest?limit=notanumber", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceUptimeUnknownServiceIs404(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/services/does-not-exist/uptime", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamForwardsMetricEvent(t *testing.T) {
	s, metricBus, _, _ := newTestServer(t, "")
	httpSrv := httptest.NewServer(s.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + httpSrv.URL[len("http"):] + "/api/v1/stream"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register its bus subscription before
	// publishing, since Subscribe happens inside the handler goroutine.
	time.Sleep(50 * time.Millisecond)

	metricBus.Publish(types.MetricEvent{
		ServerID:  "10.0.0.5:51243",
		Timestamp: time.Now().UTC(),
		Metrics:   types.ServerMetrics{Cpus: types.CpuOverview{AverageUsage: 10}},
	})

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "metric", frame["type"])
	assert.Equal(t, "10.0.0.5:51243", frame["server_id"])
}
