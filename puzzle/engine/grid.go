package engine

import (
	"fmt"
	"strings"
)

// Terrain is a read-only view of a grid. Blocked must only be called with
// positions for which InBounds reports true.
type Terrain interface {
	Rows() int
	Cols() int
	InBounds(p Position) bool
	Blocked(p Position) bool
}

// Grid is an immutable rectangular table of cells
type Grid struct {
	rows  int
	cols  int
	cells []Cell
}

// ParseGrid parses puzzle text, one line per row, into a grid and the
// guard's starting state
func ParseGrid(raw string) (*Grid, AgentState, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return nil, AgentState{}, fmt.Errorf("%w: input is empty", ErrMalformedGrid)
	}
	return NewGrid(strings.Split(raw, "\n"))
}

// NewGrid builds a grid from layout rows
func NewGrid(layout []string) (*Grid, AgentState, error) {
	var start AgentState

	if len(layout) == 0 {
		return nil, start, fmt.Errorf("%w: layout has no rows", ErrMalformedGrid)
	}
	cols := len(layout[0])
	if cols == 0 {
		return nil, start, fmt.Errorf("%w: row 1 is empty", ErrMalformedGrid)
	}
	if len(layout) > MaxGridDimension || cols > MaxGridDimension {
		return nil, start, fmt.Errorf("%w: grid %dx%d exceeds %d cells per side",
			ErrMalformedGrid, len(layout), cols, MaxGridDimension)
	}

	g := &Grid{
		rows:  len(layout),
		cols:  cols,
		cells: make([]Cell, len(layout)*cols),
	}

	guards := 0
	for r, row := range layout {
		if len(row) != cols {
			return nil, start, fmt.Errorf("%w: row %d has %d columns, expected %d",
				ErrMalformedGrid, r+1, len(row), cols)
		}
		for c := 0; c < len(row); c++ {
			switch ch := row[c]; ch {
			case OpenChar:
			case BlockedChar:
				g.cells[r*cols+c] = Blocked
			default:
				heading, ok := HeadingFromMarker(ch)
				if !ok {
					return nil, start, fmt.Errorf("%w: invalid character %q at row %d, col %d",
						ErrMalformedGrid, ch, r+1, c+1)
				}
				guards++
				start = AgentState{Pos: Position{Row: r, Col: c}, Heading: heading}
			}
		}
	}

	switch {
	case guards == 0:
		return nil, AgentState{}, ErrMissingAgent
	case guards > 1:
		return nil, AgentState{}, fmt.Errorf("%w: found %d", ErrDuplicateAgent, guards)
	}

	return g, start, nil
}

// Rows returns the number of rows
func (g *Grid) Rows() int {
	return g.rows
}

// Cols returns the number of columns
func (g *Grid) Cols() int {
	return g.cols
}

// InBounds reports whether p lies inside the grid
func (g *Grid) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < g.rows && p.Col >= 0 && p.Col < g.cols
}

// Blocked reports whether the cell at p is blocked. It panics when p is out
// of bounds: callers check InBounds first.
func (g *Grid) Blocked(p Position) bool {
	return g.Cell(p) == Blocked
}

// Cell returns the cell at p. It panics when p is out of bounds.
func (g *Grid) Cell(p Position) Cell {
	if !g.InBounds(p) {
		panic(fmt.Sprintf("engine: cell %s outside %dx%d grid", p, g.rows, g.cols))
	}
	return g.cells[p.Row*g.cols+p.Col]
}

// OpenCells returns every open position in row-major order
func (g *Grid) OpenCells() []Position {
	open := make([]Position, 0, len(g.cells))
	for i, cell := range g.cells {
		if cell == Open {
			open = append(open, Position{Row: i / g.cols, Col: i % g.cols})
		}
	}
	return open
}

// WithObstacle returns a view of the grid with one additional blocked cell.
// The grid itself is left untouched.
func (g *Grid) WithObstacle(p Position) Terrain {
	return obstructed{Grid: g, at: p}
}

// WithObstacles returns a view of the grid with all of ps blocked
func (g *Grid) WithObstacles(ps ...Position) Terrain {
	if len(ps) == 0 {
		return g
	}
	if len(ps) == 1 {
		return g.WithObstacle(ps[0])
	}
	extra := make(map[Position]struct{}, len(ps))
	for _, p := range ps {
		extra[p] = struct{}{}
	}
	return overlay{Grid: g, extra: extra}
}

// Layout renders the grid back to its text rows with the guard marker at start
func (g *Grid) Layout(start AgentState) []string {
	return Render(g, &start, nil)
}

type obstructed struct {
	*Grid
	at Position
}

func (o obstructed) Blocked(p Position) bool {
	return p == o.at || o.Grid.Blocked(p)
}

type overlay struct {
	*Grid
	extra map[Position]struct{}
}

func (o overlay) Blocked(p Position) bool {
	if _, ok := o.extra[p]; ok {
		return true
	}
	return o.Grid.Blocked(p)
}

// Render draws a terrain as text rows. Visited positions are marked with X,
// and the guard, if given, is drawn last with its heading marker. Cells
// blocked by an overlay but open in the base grid are drawn as O.
func Render(t Terrain, guard *AgentState, visited map[Position]struct{}) []string {
	base := baseGrid(t)
	lines := make([]string, 0, t.Rows())
	for r := 0; r < t.Rows(); r++ {
		var row strings.Builder
		row.Grow(t.Cols())
		for c := 0; c < t.Cols(); c++ {
			p := Position{Row: r, Col: c}
			_, seen := visited[p]
			switch {
			case guard != nil && guard.Pos == p:
				row.WriteByte(guard.Heading.Marker())
			case t.Blocked(p) && base != nil && !base.Blocked(p):
				row.WriteByte(PlacedChar)
			case t.Blocked(p):
				row.WriteByte(BlockedChar)
			case seen:
				row.WriteByte(VisitedChar)
			default:
				row.WriteByte(OpenChar)
			}
		}
		lines = append(lines, row.String())
	}
	return lines
}

func baseGrid(t Terrain) *Grid {
	switch v := t.(type) {
	case *Grid:
		return v
	case obstructed:
		return v.Grid
	case overlay:
		return v.Grid
	}
	return nil
}
