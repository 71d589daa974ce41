/*
Package api implements the hub's read-only query and live-stream surface:
a plain HTTP/JSON API plus one WebSocket endpoint, read through the
storage actor rather than holding a direct database handle.

# Routes

	GET  /api/v1/health
	GET  /api/v1/stats
	GET  /api/v1/servers
	GET  /api/v1/servers/{id}/metrics
	GET  /api/v1/servers/{id}/metrics/latest
	GET  /api/v1/services
	GET  /api/v1/services/{name}/checks
	GET  /api/v1/services/{name}/uptime
	WS   /api/v1/stream
	GET  /metrics   (Prometheus exposition)

{id} is the URL-encoded "ip:port" server_id; {name} is the service's
config-file name.

# Auth and CORS

When Deps.BearerToken is non-empty, every route (including /health) requires
"Authorization: Bearer <token>": a missing header is 401, a mismatching one
is 403. CORS is off by default; Deps.EnableCORS turns on a permissive
allow-any-origin policy for GET/OPTIONS.

# Error mapping

Malformed query parameters produce 400. An unknown server_id or service name
produces 404. A storage backend failure produces 500 with a JSON body
{"error": "<message>"}. No route ever panics on a missing resource — every lookup is a
map/slice scan against the resolved config, not a direct backend call.

# Stream

/api/v1/stream upgrades to a WebSocket and subscribes two fresh bus cursors,
one per event type. Every metric and service-check event
published anywhere in the hub is forwarded as a single JSON text frame
tagged "type":"metric" or "type":"service_check". The connection has no
client→server protocol: inbound frames are read and discarded purely to
service the library's own ping/close handling, and the stream ends the
moment either side closes.
*/
package api
