// Package tracker provides the consumer side of the connection supervisor.
//
// The tracker package implements:
//   - Handing connection parameters to the supervisor's inlet
//   - Recording every forwarded server message in a bounded history
//   - Per-command message counters
//   - Slot facts derived from Connected, RoomUpdate and ReceivedItems
//   - Fan-out of recorded messages to a Broadcaster
//
// Core Interfaces:
//
// Service is the interface used by the HTTP and MCP layers. Broadcaster is
// implemented by the WebSocket hub.
//
// Architecture:
//
// The tracker never talks to the Archipelago server itself. Consume reads the
// supervisor's event outlet; WorkerReady gives it the inlet, and every
// ApplicationMessage becomes an Entry. Connect only queues parameters, so a
// successful call means the supervisor will dial, not that it has connected.
//
// Each accepted Connect clears the slot facts. Messages still queued from the
// previous connection arrive with an older Generation; they are recorded but
// do not bring the old slot back. The tracker must be the only user of the
// inlet for the generations to line up.
//
// Usage:
//
//	sup := connection.NewSupervisor(connection.WithLogger(logger))
//	t := tracker.NewTracker(tracker.WithLogger(logger), tracker.WithBroadcaster(hub))
//
//	go sup.Run(ctx)
//	go t.Consume(ctx, sup.Events())
//
//	err := t.Connect(ctx, connection.Parameters{Host: "localhost", Port: "38281", Slot: "Alice"})
//
// History:
//
// Entries carry a sequence number that keeps increasing after old entries
// fall out of the history. Pages are served newest first unless Order is
// "asc", and may be filtered to a single command.
package tracker
