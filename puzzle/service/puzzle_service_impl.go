package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

// inlinePuzzleName is recorded for layouts solved without a puzzle file
const inlinePuzzleName = "inline"

// puzzleServiceImpl implements the PuzzleService interface
type puzzleServiceImpl struct {
	sessions  SessionManager
	puzzles   PuzzleManager
	solutions SolutionStore
	defaults  SolveOptions
	mu        sync.RWMutex
}

// Option configures a puzzle service
type Option func(*puzzleServiceImpl)

// WithSearchDefaults sets the strategy and worker count used by solve
// requests that leave them unset
func WithSearchDefaults(strategy engine.Strategy, workers int) Option {
	return func(s *puzzleServiceImpl) {
		s.defaults.Strategy = string(strategy)
		s.defaults.Workers = workers
	}
}

// NewPuzzleService creates a new puzzle service instance. solutions may be
// nil, in which case solver runs are not recorded.
func NewPuzzleService(sessions SessionManager, puzzles PuzzleManager, solutions SolutionStore, opts ...Option) PuzzleService {
	s := &puzzleServiceImpl{
		sessions:  sessions,
		puzzles:   puzzles,
		solutions: solutions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// puzzleID returns the puzzle_id for a given display name, used for consistent API responses
func (s *puzzleServiceImpl) puzzleID(name string) string {
	available, err := s.puzzles.ListConfigs()
	if err == nil {
		for _, p := range available {
			if p.Name == name {
				return p.PuzzleID
			}
		}
	}
	if name == "" {
		return "default"
	}
	return name
}

// loadPuzzle loads a puzzle by id, listing the available ids when it is missing
func (s *puzzleServiceImpl) loadPuzzle(puzzleName string) (*engine.PuzzleConfig, error) {
	config, err := s.puzzles.LoadConfig(puzzleName)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, ErrPuzzleNotFound) {
		return nil, fmt.Errorf("failed to load puzzle %s: %w", puzzleName, err)
	}

	available, listErr := s.puzzles.ListConfigs()
	if listErr == nil && len(available) > 0 {
		ids := make([]string, 0, len(available))
		for _, p := range available {
			ids = append(ids, p.PuzzleID)
		}
		return nil, fmt.Errorf("%w: '%s'. Available puzzles: %v", ErrPuzzleNotFound, puzzleName, ids)
	}
	return nil, fmt.Errorf("%w: '%s'. Use /api/puzzles to list available puzzles", ErrPuzzleNotFound, puzzleName)
}

func (s *puzzleServiceImpl) sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		PuzzleName:     s.puzzleID(sess.Config.Name),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		PatrolState:    sess.Patrol.State().Clone(),
		Puzzle:         sess.Config,
	}
}

func (s *puzzleServiceImpl) getSession(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

func (s *puzzleServiceImpl) persist(sessionID, after string) {
	if err := s.sessions.Save(sessionID); err != nil {
		fmt.Printf("Warning: Failed to persist session %s after %s: %v\n", sessionID, after, err)
	}
}

// CreateSession creates a new patrol session
func (s *puzzleServiceImpl) CreateSession(ctx context.Context, puzzleName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config *engine.PuzzleConfig
	if puzzleName != "" {
		var err error
		config, err = s.loadPuzzle(puzzleName)
		if err != nil {
			return nil, err
		}
	} else {
		config = s.puzzles.GetDefault()
	}

	// Let the session manager generate the ID
	sess, err := s.sessions.Create("", config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	info := s.sessionInfo(sess)
	if puzzleName != "" {
		info.PuzzleName = puzzleName
	}
	return info, nil
}

// GetSession retrieves session information
func (s *puzzleServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *puzzleServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *puzzleServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// Step advances the guard of a session by up to steps rule applications
func (s *puzzleServiceImpl) Step(ctx context.Context, sessionID string, steps int, reset bool) (*StepResult, error) {
	if steps < 1 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", ErrInvalidRequest, steps)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	result := &StepResult{
		Requested: steps,
		Events:    []PatrolEvent{},
	}

	if reset {
		sess.Patrol.Reset()
		result.Events = append(result.Events, PatrolEvent{
			Type:      "reset",
			Message:   "Guard returned to its starting position",
			Timestamp: time.Now(),
			Position:  sess.Patrol.Start().Pos,
		})
	}

	if steps > engine.MaxAdvance {
		result.Truncated = true
		result.Limit = engine.MaxAdvance
	}

	result.Steps = sess.Patrol.Advance(steps)
	result.StepsTaken = len(result.Steps)

	state := sess.Patrol.State()
	switch state.Status {
	case engine.StatusExited, engine.StatusLooping:
		result.Finished = true
		if len(result.Steps) > 0 {
			result.Events = append(result.Events, PatrolEvent{
				Type:      string(state.Status),
				Message:   state.Message,
				Timestamp: time.Now(),
				Position:  state.Guard.Pos,
			})
		}
	}
	result.Message = state.Message
	result.PatrolState = state.Clone()

	s.persist(sessionID, "step")
	return result, nil
}

// Reset returns the guard of a session to its start, keeping placed obstacles
func (s *puzzleServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.PatrolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	state := sess.Patrol.Reset().Clone()
	s.persist(sessionID, "reset")
	return state, nil
}

// PlaceObstacle places an extra obstacle in a session and restarts its guard
func (s *puzzleServiceImpl) PlaceObstacle(ctx context.Context, sessionID string, pos engine.Position) (*engine.PatrolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	if err := sess.Patrol.PlaceObstacle(pos); err != nil {
		return nil, err
	}

	state := sess.Patrol.State().Clone()
	s.persist(sessionID, "obstacle placement")
	return state, nil
}

// ClearObstacles removes every placed obstacle from a session
func (s *puzzleServiceImpl) ClearObstacles(ctx context.Context, sessionID string) (*engine.PatrolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	sess.Patrol.ClearObstacles()
	state := sess.Patrol.State().Clone()
	s.persist(sessionID, "clearing obstacles")
	return state, nil
}

// GetPatrolState retrieves the current patrol state
func (s *puzzleServiceImpl) GetPatrolState(ctx context.Context, sessionID string) (*engine.PatrolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Patrol.State().Clone(), nil
}

// Solve answers both parts of a stored puzzle
func (s *puzzleServiceImpl) Solve(ctx context.Context, puzzleName string, opts SolveOptions) (*SolveResult, error) {
	var config *engine.PuzzleConfig
	if puzzleName == "" {
		config = s.puzzles.GetDefault()
		puzzleName = s.puzzleID(config.Name)
	} else {
		var err error
		config, err = s.loadPuzzle(puzzleName)
		if err != nil {
			return nil, err
		}
	}
	return s.solve(ctx, puzzleName, config, opts)
}

// SolveLayout answers both parts of a puzzle given as raw layout rows
func (s *puzzleServiceImpl) SolveLayout(ctx context.Context, layout []string, opts SolveOptions) (*SolveResult, error) {
	config := &engine.PuzzleConfig{Name: inlinePuzzleName, Layout: layout}
	if err := engine.ValidatePuzzleConfig(config); err != nil {
		return nil, err
	}
	return s.solve(ctx, inlinePuzzleName, config, opts)
}

func (s *puzzleServiceImpl) solve(ctx context.Context, puzzleName string, config *engine.PuzzleConfig, opts SolveOptions) (*SolveResult, error) {
	if strings.TrimSpace(opts.Strategy) == "" {
		opts.Strategy = s.defaults.Strategy
	}
	if opts.Workers == 0 {
		opts.Workers = s.defaults.Workers
	}

	strategy, err := engine.ParseStrategy(strings.ToLower(strings.TrimSpace(opts.Strategy)))
	if err != nil {
		return nil, err
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidRequest, opts.Workers)
	}

	grid, start, err := engine.NewGrid(config.Layout)
	if err != nil {
		return nil, err
	}

	sol, err := engine.Solve(ctx, grid, start, engine.SearchOptions{
		Strategy: strategy,
		Workers:  opts.Workers,
		Progress: opts.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to solve %s: %w", puzzleName, err)
	}

	result := &SolveResult{PuzzleName: puzzleName, Solution: sol}
	if config.Expected != nil {
		matches := true
		if err := config.Check(sol); err != nil {
			matches = false
			result.Mismatch = err.Error()
		}
		result.ExpectedMatch = &matches
	}

	log.Printf("Solved %s: part one %d, part two %d (%s, %d candidates, %d workers, %s)",
		puzzleName, sol.PartOne, sol.PartTwo, sol.Search.Strategy, sol.Search.Candidates, sol.Search.Workers, sol.ElapsedHuman)

	if s.solutions != nil {
		rec := &SolutionRecord{
			PuzzleName: puzzleName,
			PartOne:    sol.PartOne,
			PartTwo:    sol.PartTwo,
			Strategy:   string(sol.Search.Strategy),
			Workers:    sol.Search.Workers,
			Candidates: sol.Search.Candidates,
			ElapsedMS:  sol.Elapsed.Milliseconds(),
		}
		if err := s.solutions.Record(ctx, rec); err != nil {
			fmt.Printf("Warning: Failed to record solution for %s: %v\n", puzzleName, err)
		} else {
			result.RecordID = rec.ID
		}
	}

	return result, nil
}

// ListSolutions returns recorded solver runs, newest first. An empty
// puzzleName lists runs for every puzzle.
func (s *puzzleServiceImpl) ListSolutions(ctx context.Context, puzzleName string, limit int) ([]*SolutionRecord, error) {
	if s.solutions == nil {
		return []*SolutionRecord{}, nil
	}
	return s.solutions.List(ctx, puzzleName, limit)
}

// ListPuzzles returns all available puzzles
func (s *puzzleServiceImpl) ListPuzzles(ctx context.Context) ([]*PuzzleInfo, error) {
	return s.puzzles.ListConfigs()
}

// LoadPuzzle loads a specific puzzle
func (s *puzzleServiceImpl) LoadPuzzle(ctx context.Context, puzzleName string) (*engine.PuzzleConfig, error) {
	return s.loadPuzzle(puzzleName)
}

// SavePuzzle saves a puzzle to disk
func (s *puzzleServiceImpl) SavePuzzle(ctx context.Context, puzzleName string, config *engine.PuzzleConfig) error {
	if strings.TrimSpace(puzzleName) == "" {
		return fmt.Errorf("%w: puzzle name is required", ErrInvalidRequest)
	}
	return s.puzzles.SaveConfig(puzzleName, config)
}
