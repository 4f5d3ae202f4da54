package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPuzzleNotFound  = errors.New("puzzle not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

// PuzzleService defines all puzzle-related operations
type PuzzleService interface {
	// Session Management
	CreateSession(ctx context.Context, puzzleName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Patrol Operations
	Step(ctx context.Context, sessionID string, steps int, reset bool) (*StepResult, error)
	Reset(ctx context.Context, sessionID string) (*engine.PatrolState, error)
	PlaceObstacle(ctx context.Context, sessionID string, pos engine.Position) (*engine.PatrolState, error)
	ClearObstacles(ctx context.Context, sessionID string) (*engine.PatrolState, error)
	GetPatrolState(ctx context.Context, sessionID string) (*engine.PatrolState, error)

	// Solving
	Solve(ctx context.Context, puzzleName string, opts SolveOptions) (*SolveResult, error)
	SolveLayout(ctx context.Context, layout []string, opts SolveOptions) (*SolveResult, error)
	ListSolutions(ctx context.Context, puzzleName string, limit int) ([]*SolutionRecord, error)

	// Puzzles
	ListPuzzles(ctx context.Context) ([]*PuzzleInfo, error)
	LoadPuzzle(ctx context.Context, puzzleName string) (*engine.PuzzleConfig, error)
	SavePuzzle(ctx context.Context, puzzleName string, config *engine.PuzzleConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, config *engine.PuzzleConfig) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// PuzzleManager handles puzzle loading
type PuzzleManager interface {
	LoadConfig(name string) (*engine.PuzzleConfig, error)
	ListConfigs() ([]*PuzzleInfo, error)
	GetDefault() *engine.PuzzleConfig
	SaveConfig(name string, config *engine.PuzzleConfig) error
}

// SolutionStore records solver runs
type SolutionStore interface {
	Record(ctx context.Context, rec *SolutionRecord) error
	List(ctx context.Context, puzzleName string, limit int) ([]*SolutionRecord, error)
}

// Session represents an active patrol session
type Session struct {
	ID             string
	Patrol         *engine.Patrol
	Config         *engine.PuzzleConfig
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
