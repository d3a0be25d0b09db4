// Package connection implements the supervisor that keeps the tracker
// connected to an Archipelago server.
//
// The connection package handles:
//   - Dialing wss:// with a single ws:// fallback when TLS negotiation fails
//   - Answering RoomInfo with a Connect handshake
//   - Forwarding every other decoded server message to the consumer
//   - Redialing after read or send failures with the last known parameters
//
// States:
//
// The supervisor is either Disconnected (optionally holding parameters) or
// Connected to exactly one transport. A Connect command always drops the
// current transport and dials again with the new parameters. Frames that the
// old transport had already read are never processed after that point.
//
// While connected the loop waits on the next inbound frame and the next
// command at the same time and handles whichever is ready first. Neither
// source has priority.
//
// Inlet and Outlet:
//
// Run emits WorkerReady before anything else. It carries the Inlet the
// consumer uses to submit parameters:
//
//	sup := connection.NewSupervisor(connection.WithLogger(logger))
//	go sup.Run(ctx)
//
//	for ev := range sup.Events() {
//		switch ev := ev.(type) {
//		case connection.WorkerReady:
//			ev.Inlet.Connect(connection.DefaultParameters())
//		case connection.ApplicationMessage:
//			handle(ev.Message)
//		}
//	}
//
// Both mailboxes hold MailboxSize entries. Inlet.Connect returns ErrInletFull
// instead of blocking. A full outlet suspends the supervisor until the
// consumer catches up.
//
// Errors never reach the outlet. Dial, decode, read and send failures are
// logged and reflected only in the connection state and the Prometheus
// collectors in Metrics.
package connection
