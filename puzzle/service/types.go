package service

import (
	"time"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

// SessionInfo provides information about a patrol session
type SessionInfo struct {
	ID             string               `json:"id"`
	PuzzleName     string               `json:"puzzle_name"`
	CreatedAt      time.Time            `json:"created_at"`
	LastAccessedAt time.Time            `json:"last_accessed_at"`
	PatrolState    *engine.PatrolState  `json:"patrol_state"`
	Puzzle         *engine.PuzzleConfig `json:"puzzle"`
}

// StepResult contains the result of stepping a patrol
type StepResult struct {
	StepsTaken  int                 `json:"steps_taken"`
	Requested   int                 `json:"requested"`
	Truncated   bool                `json:"truncated,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
	Steps       []engine.StepRecord `json:"steps"`
	PatrolState *engine.PatrolState `json:"patrol_state"`
	Events      []PatrolEvent       `json:"events"`
	Message     string              `json:"message"`
	Finished    bool                `json:"finished"`
}

// PatrolEvent represents something notable that happened during a patrol
type PatrolEvent struct {
	Type      string          `json:"type"` // "reset", "exited", "looping", "obstacle_placed", "obstacles_cleared"
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Position  engine.Position `json:"position"`
}

// SolveOptions configures a solver run
type SolveOptions struct {
	Strategy string `json:"strategy,omitempty"`
	Workers  int    `json:"workers,omitempty"`

	// Progress receives obstruction search progress. It is called from
	// worker goroutines.
	Progress func(done, total int) `json:"-"`
}

// SolveResult contains both puzzle answers and how they compare to the
// puzzle's recorded answers
type SolveResult struct {
	PuzzleName    string           `json:"puzzle_name"`
	Solution      *engine.Solution `json:"solution"`
	ExpectedMatch *bool            `json:"expected_match,omitempty"`
	Mismatch      string           `json:"mismatch,omitempty"`
	RecordID      string           `json:"record_id,omitempty"`
}

// SolutionRecord is a stored solver run
type SolutionRecord struct {
	ID         string    `json:"id"`
	PuzzleName string    `json:"puzzle_name"`
	PartOne    int       `json:"part_one"`
	PartTwo    int       `json:"part_two"`
	Strategy   string    `json:"strategy"`
	Workers    int       `json:"workers"`
	Candidates int       `json:"candidates"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// PuzzleInfo provides information about a puzzle file
type PuzzleInfo struct {
	Filename    string `json:"filename"`
	PuzzleID    string `json:"puzzle_id"` // The identifier to use for session creation and solving
	Name        string `json:"name"`      // Display name
	Description string `json:"description"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	HasExpected bool   `json:"has_expected"`
}
