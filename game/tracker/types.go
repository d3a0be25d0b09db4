package tracker

import (
	"time"

	"github.com/wricardo/mcp-training/aptracker/game/connection"
	"github.com/wricardo/mcp-training/aptracker/game/protocol"
)

// Entry is one recorded server message.
type Entry struct {
	Seq        uint64                 `json:"seq"`
	Cmd        string                 `json:"cmd"`
	ReceivedAt time.Time              `json:"received_at"`
	Text       string                 `json:"text,omitempty"` // rendered PrintJSON
	Message    protocol.ServerMessage `json:"message"`
}

// SlotInfo describes the slot the server accepted.
type SlotInfo struct {
	Team             uint      `json:"team"`
	Slot             uint      `json:"slot"`
	Name             string    `json:"name,omitempty"`
	Players          int       `json:"players"`
	HintPoints       uint      `json:"hint_points"`
	CheckedLocations int       `json:"checked_locations"`
	MissingLocations int       `json:"missing_locations"`
	ItemsReceived    int       `json:"items_received"`
	ConnectedAt      time.Time `json:"connected_at"`
}

// Status is a snapshot of the tracker.
type Status struct {
	Ready            bool                   `json:"ready"`
	Parameters       *connection.Parameters `json:"parameters,omitempty"` // password redacted
	Slot             *SlotInfo              `json:"slot,omitempty"`
	RefusedErrors    []string               `json:"refused_errors,omitempty"`
	MessagesReceived uint64                 `json:"messages_received"`
	LastMessageAt    *time.Time             `json:"last_message_at,omitempty"`
	Counts           map[string]int         `json:"counts"`
}

// HistoryOptions configures message history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
	Cmd   string `json:"cmd"`   // only entries with this command, empty for all
}

// HistoryResponse contains paginated message history
type HistoryResponse struct {
	Messages      []Entry `json:"messages"`
	TotalMessages int     `json:"total_messages"`
	Page          int     `json:"page"`
	PageSize      int     `json:"page_size"`
	TotalPages    int     `json:"total_pages"`
	HasNext       bool    `json:"has_next"`
	HasPrevious   bool    `json:"has_previous"`
}
