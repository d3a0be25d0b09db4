package connection

import "github.com/wricardo/mcp-training/aptracker/game/protocol"

// Event is emitted by the supervisor on its outlet. It is either a
// WorkerReady or an ApplicationMessage.
type Event interface {
	isEvent()
}

// WorkerReady is always the first event and is emitted exactly once. It hands
// the consumer the Inlet used to submit connection parameters.
type WorkerReady struct {
	Inlet *Inlet
}

// ApplicationMessage carries a decoded server message. RoomInfo is consumed by
// the handshake and never appears here.
//
// Generation counts the Connect commands the supervisor had adopted when the
// message arrived. Messages read before a later command was adopted carry a
// smaller value, which lets a consumer spot messages from a superseded
// connection that were still queued in the outlet.
type ApplicationMessage struct {
	Message    protocol.ServerMessage
	Generation uint64
}

func (WorkerReady) isEvent()        {}
func (ApplicationMessage) isEvent() {}
