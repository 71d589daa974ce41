package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetwatch/hub/pkg/bus"
	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/metrics"
	"github.com/fleetwatch/hub/pkg/storage"
	"github.com/fleetwatch/hub/pkg/types"
)

// staleAfter is the age at which a server/service's most recent sample is
// reported "stale" rather than "up".
const staleAfter = 300 * time.Second

// Deps wires the API server to the rest of the hub: the storage actor it
// reads history and stats through, the two buses it streams from, and the
// static server/service roster the supervisor resolved at startup.
type Deps struct {
	Storage       *storage.Handle
	MetricBus     *bus.Bus[types.MetricEvent]
	CheckBus      *bus.Bus[types.ServiceCheckEvent]
	Servers       []types.ResolvedServerConfig
	Services      []types.ResolvedServiceConfig
	BearerToken   string // empty disables auth
	EnableCORS    bool
	StartTime     time.Time
}

// Server is the hub's query/stream HTTP server.
type Server struct {
	deps Deps
	mux  *http.ServeMux
	http *http.Server
}

// NewServer builds a Server with every route registered. Call Start to
// listen, Shutdown to stop listening and drain in-flight HTTP requests.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/v1/servers", s.handleListServers)
	s.mux.HandleFunc("GET /api/v1/servers/{id}/metrics", s.handleServerMetrics)
	s.mux.HandleFunc("GET /api/v1/servers/{id}/metrics/latest", s.handleServerMetricsLatest)
	s.mux.HandleFunc("GET /api/v1/services", s.handleListServices)
	s.mux.HandleFunc("GET /api/v1/services/{name}/checks", s.handleServiceChecks)
	s.mux.HandleFunc("GET /api/v1/services/{name}/uptime", s.handleServiceUptime)
	s.mux.HandleFunc("GET /api/v1/stream", s.handleStream)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Handler returns the fully wired, middleware-decorated http.Handler, for
// embedding or for tests that drive it with httptest without binding a
// socket.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = requestMetricsMiddleware(h)
	h = authMiddleware(s.deps.BearerToken, h)
	if s.deps.EnableCORS {
		h = corsMiddleware(h)
	}
	return h
}

// Start begins serving on addr. It blocks until the server stops (either
// from Shutdown or a listener error).
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // the WS stream handler manages its own lifetime
		IdleTimeout:  120 * time.Second,
	}
	log.WithComponent("api").Info().Str("addr", addr).Msg("query/stream API listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// to finish. WebSocket streams run on hijacked connections, which
// http.Server.Shutdown neither closes nor waits for.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
