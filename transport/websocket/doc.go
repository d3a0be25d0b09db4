// Package websocket pushes tracker events to local WebSocket clients.
//
// The websocket package implements:
//   - A hub that fans out events to every connected client
//   - Ping/pong keepalive and write deadlines per client
//   - Dropping clients that cannot keep up
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client connection is handled by a read pump
// and a write pump goroutine. The hub itself implements the tracker's
// Broadcaster interface, so every recorded server message reaches clients as
// soon as it is stored.
//
// Message Protocol:
//
// Clients only listen. Every frame is one JSON document:
//
//	{"event":"message","timestamp":"...","data":{"seq":12,"cmd":"PrintJSON",...}}
//	{"event":"parameters","timestamp":"...","data":{"host":"localhost",...}}
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//
//	router.HandleFunc("/ws", hub.ServeWS)
//
// Backpressure:
//
// Broadcast never blocks the caller. Events are dropped with a warning when
// the hub loop falls behind, and a client whose buffer is full is
// disconnected.
package websocket
