package protocol

import (
	"encoding/json"
	"fmt"
)

// ItemClassification describes how important an item is for progression.
//
// The wire value looks like a bitmask but only the four single values below
// are accepted; combinations such as 3 are rejected.
type ItemClassification uint8

const (
	ItemNormal    ItemClassification = 0
	ItemLogical   ItemClassification = 1
	ItemImportant ItemClassification = 2
	ItemTrap      ItemClassification = 4
)

// ParseItemClassification converts a wire integer into an ItemClassification.
func ParseItemClassification(v uint64) (ItemClassification, error) {
	switch v {
	case 0, 1, 2, 4:
		return ItemClassification(v), nil
	}
	return 0, fmt.Errorf("%w: %d (expected one of 0, 1, 2, 4)", ErrInvalidClassification, v)
}

// String returns the lower-case name of the classification
func (c ItemClassification) String() string {
	switch c {
	case ItemNormal:
		return "normal"
	case ItemLogical:
		return "logical"
	case ItemImportant:
		return "important"
	case ItemTrap:
		return "trap"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// UnmarshalJSON accepts only the integers 0, 1, 2 and 4.
func (c *ItemClassification) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return fmt.Errorf("%w: null", ErrInvalidClassification)
	}

	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidClassification, string(data))
	}

	parsed, err := ParseItemClassification(v)
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}

// NetworkItem is an item record as it appears in ReceivedItems, LocationInfo
// and PrintJSON messages.
type NetworkItem struct {
	Item     int64              `json:"item"`
	Location int64              `json:"location"`
	Player   uint               `json:"player"`
	Flags    ItemClassification `json:"flags"`
}
