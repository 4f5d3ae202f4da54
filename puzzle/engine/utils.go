package engine

// GridStats summarises a puzzle grid
type GridStats struct {
	Rows    int        `json:"rows"`
	Cols    int        `json:"cols"`
	Open    int        `json:"open"`
	Blocked int        `json:"blocked"`
	Start   AgentState `json:"start"`
}

// Stats counts the open and blocked cells of a grid
func Stats(g *Grid, start AgentState) GridStats {
	stats := GridStats{Rows: g.Rows(), Cols: g.Cols(), Start: start}
	for _, cell := range g.cells {
		if cell == Blocked {
			stats.Blocked++
		} else {
			stats.Open++
		}
	}
	return stats
}

// DistanceToEdge returns how many steps, the final exit step included, the
// guard needs to walk straight off the grid from s if nothing is in the way
func DistanceToEdge(t Terrain, s AgentState) int {
	switch s.Heading {
	case North:
		return s.Pos.Row + 1
	case South:
		return t.Rows() - s.Pos.Row
	case East:
		return t.Cols() - s.Pos.Col
	default:
		return s.Pos.Col + 1
	}
}
