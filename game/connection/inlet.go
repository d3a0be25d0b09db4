package connection

import "errors"

// MailboxSize is the capacity of both the control inlet and the event outlet.
const MailboxSize = 100

// ErrInletFull is returned by Inlet.Connect when the mailbox has no room.
var ErrInletFull = errors.New("control inlet is full")

// command asks the supervisor to adopt new parameters and reconnect.
type command struct {
	params Parameters
}

// Inlet is the consumer's handle on a running Supervisor. It is safe to use
// from any goroutine.
type Inlet struct {
	commands chan<- command
}

// Connect submits new connection parameters. It never blocks: if the
// supervisor's mailbox is full the command is not queued and ErrInletFull is
// returned. A full mailbox means the consumer is outrunning the supervisor.
func (in *Inlet) Connect(params Parameters) error {
	select {
	case in.commands <- command{params: params}:
		return nil
	default:
		return ErrInletFull
	}
}
