// Package mcp provides the Model Context Protocol interface for the tracker.
//
// The Client is a thin proxy: every tool call becomes a request against the
// tracker's REST API, so the same tools work whether the tracker runs in this
// process or somewhere else.
//
// MCP Tools:
//   - connect: Point the tracker at a server and slot
//   - connection_status: Parameters, slot facts and counters
//   - recent_messages: Recorded server messages with pagination
//   - message_counts: Messages received per command
//
// Transport Modes:
//
// The server can be served over stdio for local MCP clients, or mounted on an
// HTTP route with HTTPHandler.
//
// Usage:
//
//	// Stdio mode
//	client := mcp.NewClient("http://localhost:8080", version)
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP mode
//	api.NewServer(svc, hub, api.WithMCPHandler(client.HTTPHandler()))
package mcp
