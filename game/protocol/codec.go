package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotArray              = errors.New("batch is not a JSON array")
	ErrMissingTag            = errors.New("missing tag")
	ErrUnknownCommand        = errors.New("unknown command")
	ErrMissingField          = errors.New("missing required field")
	ErrInvalidClassification = errors.New("invalid item classification")
	ErrEmptyClientBatch      = errors.New("client batch is empty")
)

// DecodeError reports which element of a batch could not be decoded.
type DecodeError struct {
	Index int    // position in the batch, -1 when the batch itself is malformed
	Cmd   string // "cmd" tag of the element, if it could be read
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("malformed batch: %v", e.Err)
	case e.Cmd == "":
		return fmt.Sprintf("message %d: %v", e.Index, e.Err)
	default:
		return fmt.Sprintf("message %d (%s): %v", e.Index, e.Cmd, e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// serverCommand describes how to decode one "cmd" variant.
type serverCommand struct {
	required []string
	decode   func(cmd string, raw json.RawMessage) (ServerMessage, error)
}

var serverCommands = map[string]serverCommand{
	CmdRoomInfo: {
		required: []string{"password", "hint_cost", "location_check_points"},
		decode:   decodeAs[RoomInfo],
	},
	CmdConnectionRefused: {
		required: []string{"errors"},
		decode:   decodeAs[ConnectionRefused],
	},
	CmdConnected: {
		required: []string{"team", "slot", "players", "missing_locations", "checked_locations", "hint_points"},
		decode:   decodeAs[Connected],
	},
	CmdReceivedItems: {
		required: []string{"index", "items"},
		decode:   decodeAs[ReceivedItems],
	},
	CmdLocationInfo: {
		required: []string{"locations"},
		decode:   decodeAs[LocationInfo],
	},
	CmdRoomUpdate: {decode: decodeAs[RoomUpdate]},
	CmdPrintJSON:  {decode: decodeAs[PrintJSON]},

	CmdDataPackage:   {decode: decodeOpaque},
	CmdBounced:       {decode: decodeOpaque},
	CmdInvalidPacket: {decode: decodeOpaque},
	CmdRetrieved:     {decode: decodeOpaque},
	CmdSetReply:      {decode: decodeOpaque},
}

func decodeAs[T ServerMessage](_ string, raw json.RawMessage) (ServerMessage, error) {
	var msg T
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeOpaque(cmd string, raw json.RawMessage) (ServerMessage, error) {
	return Opaque{Cmd: cmd, Raw: append(json.RawMessage(nil), raw...)}, nil
}

// Decoder decodes server batches.
type Decoder struct {
	lenient bool
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithUnknownCommands makes the decoder accept commands outside the known set
// and return them as Opaque values instead of failing the batch.
func WithUnknownCommands() DecoderOption {
	return func(d *Decoder) {
		d.lenient = true
	}
}

// NewDecoder creates a Decoder. Without options it is strict.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var defaultDecoder = NewDecoder()

// DecodeServerBatch decodes a batch with the strict decoder.
func DecodeServerBatch(data []byte) ([]ServerMessage, error) {
	return defaultDecoder.DecodeServerBatch(data)
}

// DecodeServerBatch decodes one frame. The batch is accepted or rejected as a
// whole; on error no messages are returned.
func (d *Decoder) DecodeServerBatch(data []byte) ([]ServerMessage, error) {
	// json.Unmarshal turns a top-level null into an empty slice
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &DecodeError{Index: -1, Err: ErrNotArray}
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}

	messages := make([]ServerMessage, 0, len(raws))
	for i, raw := range raws {
		msg, cmd, err := d.decodeMessage(raw)
		if err != nil {
			return nil, &DecodeError{Index: i, Cmd: cmd, Err: err}
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func (d *Decoder) decodeMessage(raw json.RawMessage) (ServerMessage, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, "", err
	}

	rawCmd, ok := fields["cmd"]
	if !ok || isNull(rawCmd) {
		return nil, "", fmt.Errorf("%w: \"cmd\"", ErrMissingTag)
	}
	var cmd string
	if err := json.Unmarshal(rawCmd, &cmd); err != nil {
		return nil, "", fmt.Errorf("cmd: %w", err)
	}

	def, known := serverCommands[cmd]
	if !known {
		if d.lenient {
			msg, err := decodeOpaque(cmd, raw)
			return msg, cmd, err
		}
		return nil, cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	if err := requireFields(fields, def.required); err != nil {
		return nil, cmd, err
	}

	msg, err := def.decode(cmd, raw)
	return msg, cmd, err
}

func requireFields(fields map[string]json.RawMessage, names []string) error {
	var missing []string
	for _, name := range names {
		if v, ok := fields[name]; !ok || isNull(v) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// isNull reports whether raw is the JSON literal null. A null required field
// counts as missing.
func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// EncodeClientBatch encodes client messages as one JSON array.
func EncodeClientBatch(messages ...ClientMessage) ([]byte, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyClientBatch
	}

	data, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode client batch: %w", err)
	}
	return data, nil
}
