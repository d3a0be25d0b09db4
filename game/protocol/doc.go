// Package protocol implements the Archipelago wire codec used by the tracker.
//
// The protocol package handles:
//   - Decoding server batches (a JSON array of "cmd"-tagged objects)
//   - Encoding client batches (always a JSON array, normally one Connect)
//   - Validation of item classification flags
//   - Protocol version values for the handshake
//
// Message Format:
//
// Every WebSocket text frame carries one batch. Each element of the batch is a
// JSON object whose "cmd" field names the variant:
//
//	[{"cmd":"RoomInfo","password":false,"hint_cost":10,"location_check_points":1}]
//
// Nested structures use their own discriminants. Version carries "class"
// and PrintJSON carries "type"; neither is related to "cmd".
//
// Decoding:
//
// A batch decodes atomically. If any element is malformed, names an unknown
// command, misses a required field or carries an illegal item classification,
// the whole batch is rejected with a *DecodeError pointing at the offending
// element. Messages the tracker does not interpret (DataPackage, Bounced,
// InvalidPacket, Retrieved, SetReply) decode as Opaque values that keep their
// raw JSON so they can be passed through untouched.
//
// Usage:
//
//	msgs, err := protocol.DecodeServerBatch(frame)
//	if err != nil {
//		return err
//	}
//
//	payload, err := protocol.EncodeClientBatch(protocol.NewConnect("Alice", ""))
package protocol
