package engine

import "fmt"

// Mode selects what a traversal records
type Mode uint8

const (
	// DistinctCells records positions and runs until the guard leaves
	DistinctCells Mode = iota
	// LoopDetection records full agent states and stops on the first repeat
	LoopDetection
)

func (m Mode) String() string {
	if m == LoopDetection {
		return "loop_detection"
	}
	return "distinct_cells"
}

// Outcome is how a traversal ended
type Outcome uint8

const (
	Exited Outcome = iota
	Looping
)

func (o Outcome) String() string {
	if o == Looping {
		return "looping"
	}
	return "exited"
}

// Trace is the result of a single traversal. Only the set matching the
// traversal mode is populated.
type Trace struct {
	Mode    Mode
	Outcome Outcome
	Moves   int
	Turns   int
	Final   AgentState
	Visited map[Position]struct{}
	States  map[AgentState]struct{}
}

// Count returns the number of distinct entries recorded
func (tr *Trace) Count() int {
	if tr.Mode == LoopDetection {
		return len(tr.States)
	}
	return len(tr.Visited)
}

// Positions returns the distinct positions of the trace, whatever the mode
func (tr *Trace) Positions() map[Position]struct{} {
	if tr.Mode == DistinctCells {
		return tr.Visited
	}
	positions := make(map[Position]struct{}, len(tr.States))
	for s := range tr.States {
		positions[s.Pos] = struct{}{}
	}
	return positions
}

// StepLimit is the most rule applications a walk on t can make without
// repeating an agent state
func StepLimit(t Terrain) int {
	return 4*t.Rows()*t.Cols() + 1
}

// Traverse walks the guard from start until it leaves the terrain or, in
// LoopDetection mode, until an agent state repeats.
//
// Walks are capped at StepLimit rule applications. Going past the cap means
// some state repeated, so in LoopDetection mode the walk reports Looping and
// in DistinctCells mode it fails with ErrNonTerminating.
func Traverse(t Terrain, start AgentState, mode Mode) (*Trace, error) {
	if !t.InBounds(start.Pos) {
		return nil, fmt.Errorf("%w: start %s outside grid", ErrInvalidStart, start.Pos)
	}

	tr := &Trace{Mode: mode}
	if mode == LoopDetection {
		tr.States = map[AgentState]struct{}{start: {}}
	} else {
		tr.Visited = map[Position]struct{}{start.Pos: {}}
	}

	limit := StepLimit(t)
	state := start
	for steps := 0; ; steps++ {
		if steps >= limit {
			tr.Final = state
			if mode == LoopDetection {
				tr.Outcome = Looping
				return tr, nil
			}
			return nil, fmt.Errorf("%w: no exit after %d steps from %s", ErrNonTerminating, steps, start)
		}

		next, kind := Step(t, state)
		switch kind {
		case Left:
			tr.Final = state
			tr.Outcome = Exited
			return tr, nil
		case Turned:
			tr.Turns++
		case Moved:
			tr.Moves++
			if mode == DistinctCells {
				tr.Visited[next.Pos] = struct{}{}
				break
			}
			if _, seen := tr.States[next]; seen {
				tr.Final = next
				tr.Outcome = Looping
				return tr, nil
			}
			tr.States[next] = struct{}{}
		}
		state = next
	}
}

// CountVisited returns the number of distinct cells the guard visits before
// leaving the grid, the start cell included
func CountVisited(t Terrain, start AgentState) (int, error) {
	tr, err := Traverse(t, start, DistinctCells)
	if err != nil {
		return 0, err
	}
	return len(tr.Visited), nil
}

// DetectLoop reports whether the guard walking t from start never leaves
func DetectLoop(t Terrain, start AgentState) (bool, error) {
	tr, err := Traverse(t, start, LoopDetection)
	if err != nil {
		return false, err
	}
	return tr.Outcome == Looping, nil
}
