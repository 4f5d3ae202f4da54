package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
)

var (
	ErrPuzzleNotFound = service.ErrPuzzleNotFound
	ErrInvalidPuzzle  = engine.ErrInvalidPuzzle
)

// DefaultPuzzle is the puzzle used when none is named
const DefaultPuzzle = "example"

// puzzleExtensions lists the file types a puzzle can be stored in, in lookup order
var puzzleExtensions = []string{".json", ".txt"}

// Manager handles puzzle loading and caching
type Manager struct {
	puzzleDir     string
	defaultPuzzle *engine.PuzzleConfig
	puzzles       map[string]*engine.PuzzleConfig
	mu            sync.RWMutex
}

// NewManager creates a new puzzle manager
func NewManager(puzzleDir string) (*Manager, error) {
	if _, err := os.Stat(puzzleDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("puzzle directory does not exist: %s", puzzleDir)
	}

	m := &Manager{
		puzzleDir: puzzleDir,
		puzzles:   make(map[string]*engine.PuzzleConfig),
	}

	if err := m.loadDefaultPuzzle(); err != nil {
		return nil, fmt.Errorf("failed to load default puzzle: %w", err)
	}

	return m, nil
}

// Dir returns the directory puzzles are loaded from
func (m *Manager) Dir() string {
	return m.puzzleDir
}

// LoadConfig loads a puzzle by name. The name may carry a .json or .txt
// extension; without one, JSON is tried before text.
func (m *Manager) LoadConfig(name string) (*engine.PuzzleConfig, error) {
	id := puzzleID(name)

	m.mu.RLock()
	if config, exists := m.puzzles[id]; exists {
		m.mu.RUnlock()
		return config, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.puzzles[id]; exists {
		return config, nil
	}

	config, err := m.readPuzzle(name)
	if err != nil {
		return nil, err
	}

	m.puzzles[id] = config
	return config, nil
}

func (m *Manager) readPuzzle(name string) (*engine.PuzzleConfig, error) {
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrPuzzleNotFound, name)
	}

	candidates := []string{name}
	if !hasPuzzleExtension(name) {
		candidates = candidates[:0]
		for _, ext := range puzzleExtensions {
			candidates = append(candidates, name+ext)
		}
	}

	for _, filename := range candidates {
		path := filepath.Join(m.puzzleDir, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read puzzle file: %w", err)
		}

		config, err := engine.ParsePuzzle(filename, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPuzzle, err)
		}
		return config, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrPuzzleNotFound, name)
}

// ListConfigs returns information about all available puzzles
func (m *Manager) ListConfigs() ([]*service.PuzzleInfo, error) {
	entries, err := os.ReadDir(m.puzzleDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read puzzle directory: %w", err)
	}

	var puzzles []*service.PuzzleInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !hasPuzzleExtension(entry.Name()) {
			continue
		}

		id := puzzleID(entry.Name())
		if seen[id] {
			continue
		}

		config, err := m.LoadConfig(id)
		if err != nil {
			// Skip invalid puzzles
			continue
		}
		seen[id] = true

		info := &service.PuzzleInfo{
			Filename:    entry.Name(),
			PuzzleID:    id,
			Name:        config.Name,
			Description: config.Description,
			Rows:        len(config.Layout),
			HasExpected: config.Expected != nil,
		}
		if len(config.Layout) > 0 {
			info.Cols = len(config.Layout[0])
		}
		puzzles = append(puzzles, info)
	}

	sort.Slice(puzzles, func(i, j int) bool { return puzzles[i].PuzzleID < puzzles[j].PuzzleID })
	return puzzles, nil
}

// GetDefault returns the default puzzle
func (m *Manager) GetDefault() *engine.PuzzleConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPuzzle
}

// SetDefault sets the default puzzle by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPuzzle = config
	return nil
}

// RefreshCache drops all cached puzzles so they are reread from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.puzzles = make(map[string]*engine.PuzzleConfig)
	m.mu.Unlock()

	return m.loadDefaultPuzzle()
}

// loadDefaultPuzzle loads the default puzzle, falling back to the first
// listed one and then to the built-in example
func (m *Manager) loadDefaultPuzzle() error {
	config, err := m.LoadConfig(DefaultPuzzle)
	if err != nil {
		puzzles, listErr := m.ListConfigs()
		if listErr != nil || len(puzzles) == 0 {
			m.setDefault(BuiltinExample())
			return nil
		}

		config, err = m.LoadConfig(puzzles[0].PuzzleID)
		if err != nil {
			m.setDefault(BuiltinExample())
			return nil
		}
	}

	m.setDefault(config)
	return nil
}

func (m *Manager) setDefault(config *engine.PuzzleConfig) {
	m.mu.Lock()
	m.defaultPuzzle = config
	m.mu.Unlock()
}

// SaveConfig saves a puzzle to disk as JSON
func (m *Manager) SaveConfig(name string, config *engine.PuzzleConfig) error {
	if err := engine.ValidatePuzzleConfig(config); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPuzzle, err)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: name %q must not contain a path separator", ErrInvalidPuzzle, name)
	}

	id := puzzleID(name)
	path := filepath.Join(m.puzzleDir, id+".json")

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal puzzle: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write puzzle file: %w", err)
	}

	m.mu.Lock()
	m.puzzles[id] = config
	m.mu.Unlock()

	return nil
}

// BuiltinExample returns the small example puzzle with its known answers
func BuiltinExample() *engine.PuzzleConfig {
	return &engine.PuzzleConfig{
		Name:        "example",
		Description: "Ten by ten example patrol",
		Layout: []string{
			"....#.....",
			".........#",
			"..........",
			"..#.......",
			".......#..",
			"..........",
			".#..^.....",
			"........#.",
			"#.........",
			"......#...",
		},
		Expected: &engine.ExpectedAnswers{PartOne: 41, PartTwo: 6},
	}
}

func hasPuzzleExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range puzzleExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// puzzleID strips a known puzzle extension from a file name
func puzzleID(name string) string {
	if hasPuzzleExtension(name) {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
