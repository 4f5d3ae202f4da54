package engine

import (
	"encoding/json"
	"fmt"
)

// Cell represents the contents of a single grid cell
type Cell uint8

const (
	Open Cell = iota
	Blocked
)

// Layout characters
const (
	OpenChar    = '.'
	BlockedChar = '#'
	VisitedChar = 'X'
	PlacedChar  = 'O'

	// Validation constants
	MaxGridDimension = 1024
)

// Heading is one of the four cardinal directions the guard can face.
// The declaration order is the clockwise turning order.
type Heading uint8

const (
	North Heading = iota
	East
	South
	West
)

// TurnRight returns the heading after a 90 degree clockwise turn
func (h Heading) TurnRight() Heading {
	return (h + 1) % 4
}

// Delta returns the row and column offsets of one step in this heading
func (h Heading) Delta() (int, int) {
	switch h {
	case North:
		return -1, 0
	case East:
		return 0, 1
	case South:
		return 1, 0
	default:
		return 0, -1
	}
}

// Marker returns the layout character for a guard facing this heading
func (h Heading) Marker() byte {
	switch h {
	case North:
		return '^'
	case East:
		return '>'
	case South:
		return 'v'
	default:
		return '<'
	}
}

func (h Heading) String() string {
	switch h {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return fmt.Sprintf("heading(%d)", uint8(h))
	}
}

// MarshalJSON encodes the heading by name
func (h Heading) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a heading name
func (h *Heading) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseHeading(name)
	if !ok {
		return fmt.Errorf("unknown heading %q", name)
	}
	*h = parsed
	return nil
}

// ParseHeading parses a heading name or marker character
func ParseHeading(s string) (Heading, bool) {
	switch s {
	case "north", "N", "^", "up":
		return North, true
	case "east", "E", ">", "right":
		return East, true
	case "south", "S", "v", "down":
		return South, true
	case "west", "W", "<", "left":
		return West, true
	}
	return 0, false
}

// HeadingFromMarker maps a layout character to the heading it encodes
func HeadingFromMarker(c byte) (Heading, bool) {
	switch c {
	case '^':
		return North, true
	case '>':
		return East, true
	case 'v':
		return South, true
	case '<':
		return West, true
	}
	return 0, false
}

// Position represents row, column coordinates
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Ahead returns the position one step away in the given heading
func (p Position) Ahead(h Heading) Position {
	dr, dc := h.Delta()
	return Position{Row: p.Row + dr, Col: p.Col + dc}
}

// Less orders positions row-major
func (p Position) Less(o Position) bool {
	if p.Row != o.Row {
		return p.Row < o.Row
	}
	return p.Col < o.Col
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// AgentState is the guard's position and heading. Two states are the same
// only when both match.
type AgentState struct {
	Pos     Position `json:"pos"`
	Heading Heading  `json:"heading"`
}

func (s AgentState) String() string {
	return fmt.Sprintf("%s facing %s", s.Pos, s.Heading)
}
