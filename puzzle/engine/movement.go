package engine

// StepKind describes what a single application of the movement rule did
type StepKind uint8

const (
	Moved StepKind = iota
	Turned
	Left
)

func (k StepKind) String() string {
	switch k {
	case Moved:
		return "moved"
	case Turned:
		return "turned"
	default:
		return "left"
	}
}

// Step applies the movement rule once. The bounds check on the cell ahead
// happens before the cell is read, so a guard on the edge facing outward
// leaves the grid instead of faulting. When the guard leaves, the returned
// state is unchanged.
func Step(t Terrain, s AgentState) (AgentState, StepKind) {
	ahead := s.Pos.Ahead(s.Heading)
	if !t.InBounds(ahead) {
		return s, Left
	}
	if t.Blocked(ahead) {
		s.Heading = s.Heading.TurnRight()
		return s, Turned
	}
	s.Pos = ahead
	return s, Moved
}
