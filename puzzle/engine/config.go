package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpectedAnswers are known answers used to check a solver run
type ExpectedAnswers struct {
	PartOne int `json:"part_one"`
	PartTwo int `json:"part_two"`
}

// PuzzleConfig represents a puzzle file
type PuzzleConfig struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Layout      []string         `json:"layout"`
	Expected    *ExpectedAnswers `json:"expected,omitempty"`
}

// Check compares a solution against the expected answers. It returns nil
// when no answers are recorded.
func (c *PuzzleConfig) Check(sol *Solution) error {
	if c.Expected == nil || sol == nil {
		return nil
	}
	if sol.PartOne != c.Expected.PartOne {
		return fmt.Errorf("part one: got %d, expected %d", sol.PartOne, c.Expected.PartOne)
	}
	if sol.PartTwo != c.Expected.PartTwo {
		return fmt.Errorf("part two: got %d, expected %d", sol.PartTwo, c.Expected.PartTwo)
	}
	return nil
}

// ValidatePuzzleConfig validates a puzzle for structure and playability
func ValidatePuzzleConfig(config *PuzzleConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidPuzzle)
	}
	if strings.TrimSpace(config.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPuzzle)
	}
	if _, _, err := NewGrid(config.Layout); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPuzzle, err)
	}
	if e := config.Expected; e != nil {
		if e.PartOne < 1 {
			return fmt.Errorf("%w: expected.part_one must be at least 1, got %d", ErrInvalidPuzzle, e.PartOne)
		}
		if e.PartTwo < 0 {
			return fmt.Errorf("%w: expected.part_two must not be negative, got %d", ErrInvalidPuzzle, e.PartTwo)
		}
	}
	return nil
}

// ParsePuzzle decodes puzzle file contents. JSON files carry the full puzzle
// description; any other extension is treated as raw puzzle text named after
// the file.
func ParsePuzzle(filename string, data []byte) (*PuzzleConfig, error) {
	var config PuzzleConfig

	if strings.EqualFold(filepath.Ext(filename), ".json") {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse puzzle file '%s': %w", filename, err)
		}
	} else {
		text := strings.ReplaceAll(string(data), "\r\n", "\n")
		text = strings.TrimRight(text, "\n")
		base := filepath.Base(filename)
		config.Name = strings.TrimSuffix(base, filepath.Ext(base))
		if text != "" {
			config.Layout = strings.Split(text, "\n")
		}
	}

	if err := ValidatePuzzleConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid puzzle '%s': %w", filename, err)
	}
	return &config, nil
}

// LoadPuzzleFile loads and validates a puzzle from a JSON or text file
func LoadPuzzleFile(filename string) (*PuzzleConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read puzzle file '%s': %w", filename, err)
	}
	return ParsePuzzle(filename, data)
}
