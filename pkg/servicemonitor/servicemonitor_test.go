package servicemonitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/types"
)

func TestServiceMonitorPublishesUpOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := types.ResolvedServiceConfig{
		Name:     "web",
		URL:      srv.URL,
		Method:   types.MethodGet,
		Interval: 60,
		Timeout:  5,
		Grace:    1,
	}

	checkBus := bus.New[types.ServiceCheckEvent]()
	_, sub := checkBus.Subscribe()

	handle := Spawn(cfg, checkBus)
	defer handle.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, handle.CheckNow(ctx))

	select {
	case env := <-sub:
		assert.Equal(t, types.ServiceUp, env.Event.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a service check event, got none")
	}
}

func TestServiceMonitorDegradedOnBodyMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not the pattern"))
	}))
	defer srv.Close()

	pattern := "healthy"
	cfg := types.ResolvedServiceConfig{
		Name:        "web",
		URL:         srv.URL,
		Method:      types.MethodGet,
		Interval:    60,
		Timeout:     5,
		Grace:       1,
		BodyPattern: &pattern,
	}

	checkBus := bus.New[types.ServiceCheckEvent]()
	_, sub := checkBus.Subscribe()

	handle := Spawn(cfg, checkBus)
	defer handle.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, handle.CheckNow(ctx))

	select {
	case env := <-sub:
		assert.Equal(t, types.ServiceDegraded, env.Event.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a service check event, got none")
	}
}

func TestServiceMonitorDownOnTransportFailure(t *testing.T) {
	cfg := types.ResolvedServiceConfig{
		Name:     "unreachable",
		URL:      "http://127.0.0.1:1", // nothing listens here
		Method:   types.MethodGet,
		Interval: 60,
		Timeout:  1,
		Grace:    1,
	}

	checkBus := bus.New[types.ServiceCheckEvent]()
	_, sub := checkBus.Subscribe()

	handle := Spawn(cfg, checkBus)
	defer handle.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, handle.CheckNow(ctx))

	select {
	case env := <-sub:
		assert.Equal(t, types.ServiceDown, env.Event.Status)
		require.NotNil(t, env.Event.ErrorMessage)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a service check event, got none")
	}
}
