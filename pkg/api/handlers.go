package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fleetwatch/hub/pkg/storage"
	"github.com/fleetwatch/hub/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// healthResponse is the /api/v1/health payload.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

// statsResponse is the /api/v1/stats payload: storage actor counters plus
// actor counts.
type statsResponse struct {
	Storage         storage.Stats `json:"storage"`
	ServersCount    int           `json:"servers_count"`
	ServicesCount   int           `json:"services_count"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Storage.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Storage:       st,
		ServersCount:  len(s.deps.Servers),
		ServicesCount: len(s.deps.Services),
		UptimeSeconds: time.Since(s.deps.StartTime).Seconds(),
	})
}

// serverSummary is one entry in the /api/v1/servers listing.
type serverSummary struct {
	ServerID       string     `json:"server_id"`
	DisplayName    string     `json:"display_name"`
	Health         string     `json:"health"` // up | stale | unknown
	LastMetricAt   *time.Time `json:"last_metric_at,omitempty"`
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	out := make([]serverSummary, 0, len(s.deps.Servers))
	for _, cfg := range s.deps.Servers {
		summary := serverSummary{ServerID: cfg.ServerID(), DisplayName: cfg.Display, Health: "unknown"}

		rows, err := s.deps.Storage.QueryLatest(r.Context(), cfg.ServerID(), 1)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(rows) > 0 {
			ts := rows[0].Timestamp
			summary.LastMetricAt = &ts
			if time.Since(ts) > staleAfter {
				summary.Health = "stale"
			} else {
				summary.Health = "up"
			}
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, out)
}

// serviceSummary is one entry in the /api/v1/services listing.
type serviceSummary struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Health      string     `json:"health"` // up | down | degraded | stale | unknown
	LastCheckAt *time.Time `json:"last_check_at,omitempty"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	out := make([]serviceSummary, 0, len(s.deps.Services))
	for _, cfg := range s.deps.Services {
		summary := serviceSummary{Name: cfg.Name, URL: cfg.URL, Health: "unknown"}

		rows, err := s.deps.Storage.QueryLatestServiceChecks(r.Context(), cfg.Name, 1)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(rows) > 0 {
			row := rows[0]
			ts := row.Timestamp
			summary.LastCheckAt = &ts
			if time.Since(ts) > staleAfter {
				summary.Health = "stale"
			} else {
				summary.Health = string(row.Status)
			}
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, out)
}

// serverByID finds a configured server by its "ip:port" id, for the
// per-server history endpoints' 404 mapping.
func (s *Server) serverByID(id string) (types.ResolvedServerConfig, bool) {
	for _, cfg := range s.deps.Servers {
		if cfg.ServerID() == id {
			return cfg, true
		}
	}
	return types.ResolvedServerConfig{}, false
}

func (s *Server) serviceByName(name string) (types.ResolvedServiceConfig, bool) {
	for _, cfg := range s.deps.Services {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return types.ResolvedServiceConfig{}, false
}

const (
	defaultRangeLimit = 0
	maxRangeLimit     = 10000
	defaultLatest     = 100
	maxLatest         = 1000
)

// parseTimeParam parses an RFC3339 query parameter, returning fallback when
// absent and a 400-worthy error when present but malformed.
func parseTimeParam(values url.Values, key string, fallback time.Time) (time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseIntParam(values url.Values, key string, fallback, max int) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

func (s *Server) handleServerMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return
	}
	if _, ok := s.serverByID(id); !ok {
		writeError(w, http.StatusNotFound, "unknown server")
		return
	}

	now := time.Now().UTC()
	q := r.URL.Query()
	start, err := parseTimeParam(q, "start", now.Add(-time.Hour))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseTimeParam(q, "end", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	limit, err := parseIntParam(q, "limit", defaultRangeLimit, maxRangeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	rows, err := s.deps.Storage.QueryRange(r.Context(), storage.QueryRange{ServerID: id, Start: start, End: end, Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleServerMetricsLatest(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return
	}
	if _, ok := s.serverByID(id); !ok {
		writeError(w, http.StatusNotFound, "unknown server")
		return
	}

	limit, err := parseIntParam(r.URL.Query(), "limit", defaultLatest, maxLatest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	rows, err := s.deps.Storage.QueryLatest(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleServiceChecks(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.serviceByName(name); !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}

	now := time.Now().UTC()
	q := r.URL.Query()
	start, err := parseTimeParam(q, "start", now.Add(-24*time.Hour))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseTimeParam(q, "end", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}

	rows, err := s.deps.Storage.QueryServiceChecksRange(r.Context(), name, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleServiceUptime(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.serviceByName(name); !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}

	since, err := parseTimeParam(r.URL.Query(), "since", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}

	stats, err := s.deps.Storage.CalculateUptime(r.Context(), name, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
