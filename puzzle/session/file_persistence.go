package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
)

// FilePersistence implements SessionPersistence using file system storage
type FilePersistence struct {
	sessionsDir   string
	puzzleManager service.PuzzleManager
}

// NewFilePersistence creates a new file-based session persistence layer
func NewFilePersistence(sessionsDir string, puzzleManager service.PuzzleManager) (*FilePersistence, error) {
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FilePersistence{
		sessionsDir:   sessionsDir,
		puzzleManager: puzzleManager,
	}, nil
}

// Save persists a session to a JSON file
func (fp *FilePersistence) Save(session *service.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	puzzleID, err := fp.getPuzzleIDFromName(session.Config.Name)
	if err != nil {
		return fmt.Errorf("failed to get puzzle ID: %w", err)
	}

	state := session.Patrol.State().Clone()
	// The view is recomputed on load
	state.View = nil

	data := PersistedSessionData{
		ID:             session.ID,
		PuzzleName:     puzzleID,
		Puzzle:         session.Config,
		CreatedAt:      session.CreatedAt,
		LastAccessedAt: session.LastAccessedAt,
		PatrolState:    state,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	// Write through a temp file and rename into place
	filePath := fp.getFilePath(session.ID)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

// Load retrieves a session from a JSON file
func (fp *FilePersistence) Load(id string) (*service.Session, error) {
	if !validSessionID(id) {
		return nil, ErrSessionNotFound
	}
	filePath := fp.getFilePath(id)

	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var data PersistedSessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	// Prefer the embedded puzzle: the saved trail was walked on it
	puzzle := data.Puzzle
	if puzzle == nil {
		puzzle, err = fp.puzzleManager.LoadConfig(data.PuzzleName)
		if err != nil {
			return nil, fmt.Errorf("failed to load puzzle '%s': %w", data.PuzzleName, err)
		}
	}

	patrol, err := engine.NewPatrol(puzzle)
	if err != nil {
		return nil, fmt.Errorf("failed to create patrol: %w", err)
	}

	if data.PatrolState != nil {
		if err := patrol.SetState(data.PatrolState); err != nil {
			return nil, fmt.Errorf("failed to set patrol state: %w", err)
		}
	}

	return &service.Session{
		ID:             data.ID,
		Patrol:         patrol,
		Config:         puzzle,
		CreatedAt:      data.CreatedAt,
		LastAccessedAt: data.LastAccessedAt,
	}, nil
}

// Delete removes a session file
func (fp *FilePersistence) Delete(id string) error {
	if !fp.Exists(id) {
		return ErrSessionNotFound
	}

	if err := os.Remove(fp.getFilePath(id)); err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	return nil
}

// ListAll returns all persisted session IDs
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessionIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			sessionIDs = append(sessionIDs, strings.TrimSuffix(name, ".json"))
		}
	}

	return sessionIDs, nil
}

// Exists checks if a session file exists
func (fp *FilePersistence) Exists(id string) bool {
	if !validSessionID(id) {
		return false
	}
	_, err := os.Stat(fp.getFilePath(id))
	return err == nil
}

// getFilePath returns the full file path for a session ID
func (fp *FilePersistence) getFilePath(id string) string {
	return filepath.Join(fp.sessionsDir, fmt.Sprintf("%s.json", id))
}

// getPuzzleIDFromName returns the puzzle ID (file name without extension) for a display name
func (fp *FilePersistence) getPuzzleIDFromName(displayName string) (string, error) {
	puzzles, err := fp.puzzleManager.ListConfigs()
	if err != nil {
		return "", fmt.Errorf("failed to list puzzles: %w", err)
	}

	for _, p := range puzzles {
		if p.Name == displayName {
			return p.PuzzleID, nil
		}
	}

	// If not found, assume the display name is already the puzzle ID
	return displayName, nil
}
