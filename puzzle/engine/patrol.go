package engine

import (
	"fmt"
	"slices"
)

// PatrolStatus describes where an interactive patrol stands
type PatrolStatus string

const (
	StatusPatrolling PatrolStatus = "patrolling"
	StatusExited     PatrolStatus = "exited"
	StatusLooping    PatrolStatus = "looping"

	// MaxAdvance caps the steps a single Advance call may take
	MaxAdvance = 10000
	// HistoryCap is how many recent steps a patrol keeps
	HistoryCap = 100
)

// StepRecord is a single applied step of an interactive patrol
type StepRecord struct {
	Number int        `json:"number"`
	Kind   string     `json:"kind"`
	From   AgentState `json:"from"`
	To     AgentState `json:"to"`
}

// PatrolState is the complete, serialisable state of an interactive patrol
type PatrolState struct {
	PuzzleName   string       `json:"puzzle_name"`
	Guard        AgentState   `json:"guard"`
	Obstacles    []Position   `json:"obstacles"`
	Trail        []AgentState `json:"trail"`
	VisitedCount int          `json:"visited_count"`
	Steps        int          `json:"steps"`
	Moves        int          `json:"moves"`
	Turns        int          `json:"turns"`
	Status       PatrolStatus `json:"status"`
	Message      string       `json:"message"`
	History      []StepRecord `json:"history"`

	// Computed view, not needed to restore a patrol
	View []string `json:"view,omitempty"`
}

// Patrol steps a guard through a puzzle one rule application at a time. It
// applies the same movement rule and loop test as Traverse in LoopDetection
// mode, and lets callers place extra obstacles between runs.
type Patrol struct {
	name    string
	grid    *Grid
	start   AgentState
	terrain Terrain
	state   *PatrolState
	seen    map[AgentState]struct{}
	visited map[Position]struct{}
}

// NewPatrol creates a patrol for the given puzzle
func NewPatrol(config *PuzzleConfig) (*Patrol, error) {
	if err := ValidatePuzzleConfig(config); err != nil {
		return nil, err
	}
	grid, start, err := NewGrid(config.Layout)
	if err != nil {
		return nil, err
	}

	p := &Patrol{
		name:    config.Name,
		grid:    grid,
		start:   start,
		terrain: grid,
	}
	p.restart(nil)
	return p, nil
}

// Grid returns the puzzle grid without placed obstacles
func (p *Patrol) Grid() *Grid {
	return p.grid
}

// Start returns the guard's starting state
func (p *Patrol) Start() AgentState {
	return p.start
}

// State returns the current patrol state with its view refreshed
func (p *Patrol) State() *PatrolState {
	guard := p.state.Guard
	var drawn *AgentState
	if p.state.Status != StatusExited {
		drawn = &guard
	}
	p.state.View = Render(p.terrain, drawn, p.visited)
	return p.state
}

// SetState restores a previously saved state (used for persistence loading)
func (p *Patrol) SetState(state *PatrolState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	for _, o := range state.Obstacles {
		if err := p.checkObstacle(o, nil); err != nil {
			return err
		}
	}
	if len(state.Trail) == 0 || state.Trail[0] != p.start {
		return fmt.Errorf("%w: trail does not begin at the guard's start", ErrInvalidStart)
	}

	terrain := p.grid.WithObstacles(state.Obstacles...)
	seen := make(map[AgentState]struct{}, len(state.Trail))
	visited := make(map[Position]struct{}, len(state.Trail))
	for _, s := range state.Trail {
		if !terrain.InBounds(s.Pos) || terrain.Blocked(s.Pos) {
			return fmt.Errorf("%w: trail passes through %s", ErrInvalidStart, s.Pos)
		}
		seen[s] = struct{}{}
		visited[s.Pos] = struct{}{}
	}
	if !terrain.InBounds(state.Guard.Pos) {
		return fmt.Errorf("%w: guard at %s", ErrInvalidStart, state.Guard.Pos)
	}

	p.terrain = terrain
	p.seen = seen
	p.visited = visited
	p.state = state
	p.state.VisitedCount = len(visited)
	return nil
}

// Step applies the movement rule once. It does nothing once the guard has
// left the grid or a loop has been found.
func (p *Patrol) Step() (StepRecord, bool) {
	s := p.state
	if s.Status != StatusPatrolling {
		return StepRecord{}, false
	}

	from := s.Guard
	next, kind := Step(p.terrain, from)
	s.Steps++
	rec := StepRecord{Number: s.Steps, Kind: kind.String(), From: from, To: next}

	switch kind {
	case Left:
		s.Status = StatusExited
		s.Message = fmt.Sprintf("Guard left the grid from %s after visiting %d cells", from.Pos, len(p.visited))
	case Turned:
		s.Turns++
		s.Message = fmt.Sprintf("Blocked at %s, turned %s", from.Pos.Ahead(from.Heading), next.Heading)
	case Moved:
		s.Moves++
		s.Message = fmt.Sprintf("Moved %s to %s", next.Heading, next.Pos)
		if _, repeat := p.seen[next]; repeat {
			s.Status = StatusLooping
			s.Message = fmt.Sprintf("Guard is looping: %s was already visited", next)
		} else {
			p.seen[next] = struct{}{}
			p.visited[next.Pos] = struct{}{}
			s.Trail = append(s.Trail, next)
		}
	}
	s.Guard = next
	s.VisitedCount = len(p.visited)

	if s.Status == StatusPatrolling && s.Steps >= StepLimit(p.terrain) {
		s.Status = StatusLooping
		s.Message = fmt.Sprintf("Guard is looping: no exit after %d steps", s.Steps)
	}

	s.History = append(s.History, rec)
	if len(s.History) > HistoryCap {
		s.History = slices.Clone(s.History[len(s.History)-HistoryCap:])
	}
	return rec, true
}

// Advance takes up to n steps, stopping early when the patrol ends
func (p *Patrol) Advance(n int) []StepRecord {
	if n > MaxAdvance {
		n = MaxAdvance
	}
	records := make([]StepRecord, 0, max(n, 0))
	for i := 0; i < n; i++ {
		rec, ok := p.Step()
		if !ok {
			break
		}
		records = append(records, rec)
	}
	return records
}

// Run steps until the guard leaves or loops
func (p *Patrol) Run() PatrolStatus {
	for p.state.Status == StatusPatrolling {
		p.Step()
	}
	return p.state.Status
}

// Reset puts the guard back at its start, keeping placed obstacles
func (p *Patrol) Reset() *PatrolState {
	p.restart(p.state.Obstacles)
	return p.State()
}

// PlaceObstacle blocks an open cell and restarts the patrol from the start
func (p *Patrol) PlaceObstacle(pos Position) error {
	if err := p.checkObstacle(pos, p.state.Obstacles); err != nil {
		return err
	}
	obstacles := append(slices.Clone(p.state.Obstacles), pos)
	SortPositions(obstacles)
	p.restart(obstacles)
	p.state.Message = fmt.Sprintf("Obstacle placed at %s, guard restarted", pos)
	return nil
}

// ClearObstacles removes all placed obstacles and restarts the patrol
func (p *Patrol) ClearObstacles() {
	p.restart(nil)
}

func (p *Patrol) checkObstacle(pos Position, placed []Position) error {
	switch {
	case !p.grid.InBounds(pos):
		return fmt.Errorf("%w: %s is outside the %dx%d grid", ErrInvalidObstacle, pos, p.grid.Rows(), p.grid.Cols())
	case pos == p.start.Pos:
		return fmt.Errorf("%w: %s is the guard's start", ErrInvalidObstacle, pos)
	case p.grid.Blocked(pos):
		return fmt.Errorf("%w: %s is already blocked", ErrInvalidObstacle, pos)
	case slices.Contains(placed, pos):
		return fmt.Errorf("%w: %s already has an obstacle", ErrInvalidObstacle, pos)
	}
	return nil
}

func (p *Patrol) restart(obstacles []Position) {
	if obstacles == nil {
		obstacles = []Position{}
	}
	p.terrain = p.grid.WithObstacles(obstacles...)
	p.seen = map[AgentState]struct{}{p.start: {}}
	p.visited = map[Position]struct{}{p.start.Pos: {}}
	p.state = &PatrolState{
		PuzzleName:   p.name,
		Guard:        p.start,
		Obstacles:    obstacles,
		Trail:        []AgentState{p.start},
		VisitedCount: 1,
		Status:       StatusPatrolling,
		Message:      fmt.Sprintf("Guard starts at %s facing %s", p.start.Pos, p.start.Heading),
		History:      []StepRecord{},
	}
}

// Clone returns a deep copy of the state
func (s *PatrolState) Clone() *PatrolState {
	c := *s
	c.Obstacles = slices.Clone(s.Obstacles)
	c.Trail = slices.Clone(s.Trail)
	c.History = slices.Clone(s.History)
	c.View = slices.Clone(s.View)
	return &c
}
