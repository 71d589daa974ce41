package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/fleetwatch/hub/pkg/log"
	"github.com/fleetwatch/hub/pkg/metrics"
	"github.com/fleetwatch/hub/pkg/types"
)

// metricFrame and checkFrame are the two tagged WebSocket frame shapes.
// Both are plain structs rather than a single tagged union type so each
// carries only its own event's fields.
type metricFrame struct {
	Type        string            `json:"type"`
	ServerID    string            `json:"server_id"`
	DisplayName string            `json:"display_name"`
	Timestamp   string            `json:"timestamp"`
	Metrics     types.ServerMetrics `json:"metrics"`
}

type checkFrame struct {
	Type           string  `json:"type"`
	ServiceName    string  `json:"service_name"`
	URL            string  `json:"url"`
	Timestamp      string  `json:"timestamp"`
	Status         string  `json:"status"`
	ResponseTimeMs *uint64 `json:"response_time_ms,omitempty"`
	HTTPStatusCode *int    `json:"http_status_code,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
}

// handleStream upgrades to a WebSocket and forwards every metric and
// service-check event to the client as one JSON object per text frame,
// until either side closes. Grounded on Obiente-Cloud's
// terminal_ws.go accept/read/write/close shape, trimmed to a pure fan-out
// (no client→server command protocol — incoming frames are ignored except
// for the underlying library's own Close/Ping handling).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		log.WithComponent("api").Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	metricID, metricSub := s.deps.MetricBus.Subscribe()
	defer s.deps.MetricBus.Unsubscribe(metricID)
	checkID, checkSub := s.deps.CheckBus.Subscribe()
	defer s.deps.CheckBus.Unsubscribe(checkID)

	metrics.StreamClientsConnected.Inc()
	defer metrics.StreamClientsConnected.Dec()

	// Drain and discard inbound frames on their own goroutine so the
	// connection's read deadline is serviced and a client-initiated close
	// is observed promptly; this task is canceled the moment the write
	// loop below exits.
	go s.drainClientFrames(ctx, conn, cancel)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case env, ok := <-metricSub:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "bus closed")
				return
			}
			if env.Lagged > 0 {
				metrics.BusLagEventsTotal.WithLabelValues("metric").Add(float64(env.Lagged))
			}
			if !s.writeFrame(ctx, conn, metricFrameFrom(env.Event)) {
				return
			}

		case env, ok := <-checkSub:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "bus closed")
				return
			}
			if env.Lagged > 0 {
				metrics.BusLagEventsTotal.WithLabelValues("service_check").Add(float64(env.Lagged))
			}
			if !s.writeFrame(ctx, conn, checkFrameFrom(env.Event)) {
				return
			}
		}
	}
}

func metricFrameFrom(event types.MetricEvent) metricFrame {
	return metricFrame{
		Type:        "metric",
		ServerID:    event.ServerID,
		DisplayName: event.DisplayName,
		Timestamp:   event.Timestamp.Format(time.RFC3339),
		Metrics:     event.Metrics,
	}
}

func checkFrameFrom(event types.ServiceCheckEvent) checkFrame {
	return checkFrame{
		Type:           "service_check",
		ServiceName:    event.ServiceName,
		URL:            event.URL,
		Timestamp:      event.Timestamp.Format(time.RFC3339),
		Status:         string(event.Status),
		ResponseTimeMs: event.ResponseTimeMs,
		HTTPStatusCode: event.HTTPStatusCode,
		ErrorMessage:   event.ErrorMessage,
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		log.WithComponent("api").Error().Err(err).Msg("failed to encode stream frame")
		return true
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return false
	}
	return true
}

// drainClientFrames reads and discards client frames until the connection
// closes, canceling cancel so the write-side select loop exits promptly —
// the stream is server→client only; nothing a client sends is acted upon
// beyond the library's own Close/Ping handling.
func (s *Server) drainClientFrames(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
