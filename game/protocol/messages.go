package protocol

import (
	"encoding/json"
	"fmt"
)

// Server command tags
const (
	CmdRoomInfo          = "RoomInfo"
	CmdConnectionRefused = "ConnectionRefused"
	CmdConnected         = "Connected"
	CmdReceivedItems     = "ReceivedItems"
	CmdLocationInfo      = "LocationInfo"
	CmdRoomUpdate        = "RoomUpdate"
	CmdPrintJSON         = "PrintJSON"
	CmdDataPackage       = "DataPackage"
	CmdBounced           = "Bounced"
	CmdInvalidPacket     = "InvalidPacket"
	CmdRetrieved         = "Retrieved"
	CmdSetReply          = "SetReply"
)

// Client command tags
const (
	CmdConnect = "Connect"
)

// ServerMessage is a single decoded element of a server batch.
type ServerMessage interface {
	// Command returns the "cmd" tag of the message.
	Command() string
}

// RoomInfo is sent by the server right after the socket opens. Receiving it
// triggers the client handshake.
type RoomInfo struct {
	Password            bool `json:"password"`
	HintCost            uint `json:"hint_cost"`
	LocationCheckPoints uint `json:"location_check_points"`
}

func (RoomInfo) Command() string { return CmdRoomInfo }

// ConnectionRefused is the server's rejection of a Connect.
type ConnectionRefused struct {
	Errors []string `json:"errors"`
}

func (ConnectionRefused) Command() string { return CmdConnectionRefused }

// NetworkPlayer identifies one slot in the multiworld.
type NetworkPlayer struct {
	Team  uint   `json:"team"`
	Slot  uint   `json:"slot"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

// Connected acknowledges a successful handshake.
type Connected struct {
	Team             uint            `json:"team"`
	Slot             uint            `json:"slot"`
	Players          []NetworkPlayer `json:"players"`
	MissingLocations []int64         `json:"missing_locations"`
	CheckedLocations []int64         `json:"checked_locations"`
	HintPoints       uint            `json:"hint_points"`
}

func (Connected) Command() string { return CmdConnected }

// ReceivedItems lists items sent to the connected slot starting at Index.
type ReceivedItems struct {
	Index int           `json:"index"`
	Items []NetworkItem `json:"items"`
}

func (ReceivedItems) Command() string { return CmdReceivedItems }

// LocationInfo answers a location scout.
type LocationInfo struct {
	Locations []NetworkItem `json:"locations"`
}

func (LocationInfo) Command() string { return CmdLocationInfo }

// RoomUpdate carries the subset of room fields that changed. Fields that were
// not sent stay nil.
type RoomUpdate struct {
	HintPoints       *uint   `json:"hint_points,omitempty"`
	CheckedLocations []int64 `json:"checked_locations,omitempty"`
}

func (RoomUpdate) Command() string { return CmdRoomUpdate }

// JSONMessagePart is one fragment of a PrintJSON text.
type JSONMessagePart struct {
	Type   *string `json:"type,omitempty"`
	Text   *string `json:"text,omitempty"`
	Color  *string `json:"color,omitempty"`  // only with type "color"
	Flags  *uint   `json:"flags,omitempty"`  // only with item types
	Player *uint   `json:"player,omitempty"` // only with item or location types
}

// PrintJSON types
const (
	PrintText               = "Text"
	PrintItemSend           = "ItemSend"
	PrintItemCheat          = "ItemCheat"
	PrintHint               = "Hint"
	PrintJoin               = "Join"
	PrintPart               = "Part"
	PrintChat               = "Chat"
	PrintServerChat         = "ServerChat"
	PrintTutorial           = "Tutorial"
	PrintTagsChanged        = "TagsChanged"
	PrintCommandResult      = "CommandResult"
	PrintAdminCommandResult = "AdminCommandResult"
	PrintGoal               = "Goal"
	PrintRelease            = "Release"
	PrintCollect            = "Collect"
	PrintCountdown          = "Countdown"
)

// printJSONFields lists the fields each PrintJSON type must carry besides
// "type" and "data".
var printJSONFields = map[string][]string{
	PrintText:               nil,
	PrintItemSend:           {"receiving", "item"},
	PrintItemCheat:          {"receiving", "item", "team"},
	PrintHint:               {"receiving", "item", "found"},
	PrintJoin:               {"team", "slot", "tags"},
	PrintPart:               {"team", "slot"},
	PrintChat:               {"team", "slot", "message"},
	PrintServerChat:         {"message"},
	PrintTutorial:           nil,
	PrintTagsChanged:        {"team", "slot", "tags"},
	PrintCommandResult:      nil,
	PrintAdminCommandResult: nil,
	PrintGoal:               {"team", "slot"},
	PrintRelease:            {"team", "slot"},
	PrintCollect:            {"team", "slot"},
	PrintCountdown:          {"countdown"},
}

// PrintJSON is a rich text message. Which optional fields are set depends on
// Type.
type PrintJSON struct {
	Type      string            `json:"type"`
	Data      []JSONMessagePart `json:"data"`
	Receiving *uint             `json:"receiving,omitempty"`
	Item      *NetworkItem      `json:"item,omitempty"`
	Found     *bool             `json:"found,omitempty"`
	Team      *uint             `json:"team,omitempty"`
	Slot      *uint             `json:"slot,omitempty"`
	Message   string            `json:"message,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Countdown *uint             `json:"countdown,omitempty"`
}

func (PrintJSON) Command() string { return CmdPrintJSON }

// UnmarshalJSON validates the "type" tag and the fields it requires.
func (p *PrintJSON) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	rawType, ok := fields["type"]
	if !ok {
		return fmt.Errorf("%w: PrintJSON without \"type\"", ErrMissingTag)
	}
	var printType string
	if err := json.Unmarshal(rawType, &printType); err != nil {
		return fmt.Errorf("PrintJSON type: %w", err)
	}

	required, known := printJSONFields[printType]
	if !known {
		return fmt.Errorf("%w: PrintJSON type %q", ErrUnknownCommand, printType)
	}
	if err := requireFields(fields, append([]string{"data"}, required...)); err != nil {
		return fmt.Errorf("PrintJSON %s: %w", printType, err)
	}

	type plain PrintJSON
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*p = PrintJSON(decoded)
	return nil
}

// Text concatenates the text of all parts.
func (p PrintJSON) Text() string {
	var text string
	for _, part := range p.Data {
		if part.Text != nil {
			text += *part.Text
		}
	}
	return text
}

// Opaque is a server message the tracker does not interpret. Raw holds the
// complete JSON object, including "cmd".
type Opaque struct {
	Cmd string
	Raw json.RawMessage
}

func (o Opaque) Command() string { return o.Cmd }

// MarshalJSON re-emits the object as received.
func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o.Raw) == 0 {
		return []byte("null"), nil
	}
	return o.Raw, nil
}

// ClientMessage is a message the client sends to the server.
type ClientMessage interface {
	Command() string
}

// Connect is the client handshake, sent in reply to RoomInfo.
type Connect struct {
	Name          string   `json:"name"`
	Password      string   `json:"password"`
	Game          string   `json:"game"`
	UUID          string   `json:"uuid"`
	Version       Version  `json:"version"`
	ItemsHandling uint     `json:"items_handling"`
	Tags          []string `json:"tags"`
	SlotData      bool     `json:"slot_data"`
}

// DefaultTags are the tags a tracker announces.
var DefaultTags = []string{"Tracker"}

// NewConnect returns a Connect for the given slot with tracker defaults.
func NewConnect(name, password string) Connect {
	return Connect{
		Name:     name,
		Password: password,
		Version:  DefaultVersion,
		Tags:     append([]string(nil), DefaultTags...),
	}
}

func (Connect) Command() string { return CmdConnect }

// MarshalJSON adds the "cmd" tag.
func (c Connect) MarshalJSON() ([]byte, error) {
	type plain Connect
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return json.Marshal(struct {
		Cmd string `json:"cmd"`
		plain
	}{
		Cmd:   CmdConnect,
		plain: plain(c),
	})
}
