// Package api provides HTTP REST API handlers for the tracker.
//
// The api package implements:
//   - Submitting connection parameters to the supervisor
//   - Reading the connection status and slot facts
//   - Paginated access to recorded server messages
//   - Prometheus metrics, health checks and the WebSocket event stream
//
// Endpoints:
//
// Connection:
//   - GET /api/connection - Current parameters (password redacted), slot facts, counters
//   - POST /api/connection - Queue new parameters; the supervisor reconnects
//
// Messages:
//   - GET /api/messages - Message history with pagination (?page, ?limit, ?order, ?cmd)
//   - GET /api/messages/counts - Messages received per command
//
// Operations:
//   - GET /healthz - 200 once the supervisor is ready, 503 before
//   - GET /metrics - Prometheus exposition
//   - GET /ws - WebSocket event stream
//   - POST /mcp - MCP JSON-RPC, when an MCP handler is configured
//
// Request/Response Format:
//
// All endpoints accept and return JSON. Connection parameters are sent as:
//
//	{
//	  "host": "archipelago.gg",
//	  "port": "38281",
//	  "slot": "Alice",
//	  "password": ""
//	}
//
// Omitted host or port fall back to 127.0.0.1:38281. A 202 response means
// the parameters were queued; whether the server accepted the slot shows up
// later in GET /api/connection.
//
// Usage:
//
//	server := api.NewServer(trackerService, hub, api.WithLogger(logger))
//	http.ListenAndServe(":8080", server)
//
// Error Handling:
//
// Errors are returned as JSON with appropriate HTTP status codes:
//
//	{
//	  "error": "error message"
//	}
//
// 400 for invalid parameters, 503 while the supervisor is not ready and 500
// when the supervisor's inlet is full.
package api
