// Command validate checks the puzzle files in a puzzles directory
// (../puzzles unless another directory is given). It checks:
//   - JSON structure and required fields for .json puzzles
//   - Grid consistency and allowed characters (. # ^ > v <)
//   - Exactly one guard marker
//   - That the guard leaves the grid when answers are recorded
//   - Recorded answers, by solving the puzzle and comparing both parts
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) info(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validatePuzzle loads and validates a single puzzle file. Structural
// problems are all reported together; answers are only checked on a grid
// that parses.
func validatePuzzle(ctx context.Context, filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var config engine.PuzzleConfig
	if strings.EqualFold(filepath.Ext(filePath), ".json") {
		if err := json.Unmarshal(data, &config); err != nil {
			result.fail("Invalid JSON: %v", err)
			return result
		}
		if strings.TrimSpace(config.Name) == "" {
			result.fail("Missing required field: name")
		}
		if e := config.Expected; e != nil {
			if e.PartOne < 1 {
				result.fail("expected.part_one must be at least 1, got %d", e.PartOne)
			}
			if e.PartTwo < 0 {
				result.fail("expected.part_two must not be negative, got %d", e.PartTwo)
			}
		}
	} else {
		text := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		config.Name = strings.TrimSuffix(result.File, filepath.Ext(result.File))
		if text != "" {
			config.Layout = strings.Split(text, "\n")
		}
	}

	checkLayout(&result, config.Layout)
	if !result.Valid {
		return result
	}

	grid, start, err := engine.NewGrid(config.Layout)
	if err != nil {
		result.fail("Invalid grid: %v", err)
		return result
	}

	stats := engine.Stats(grid, start)
	visited, err := engine.CountVisited(grid, start)
	if err != nil && config.Expected != nil {
		result.fail("Guard starting at %s never leaves the grid, recorded answers cannot hold", start)
		return result
	}

	if config.Expected != nil {
		sol, err := engine.Solve(ctx, grid, start, engine.SearchOptions{})
		if err != nil {
			result.fail("Failed to solve: %v", err)
			return result
		}
		if err := config.Check(sol); err != nil {
			result.fail("Recorded answers are wrong: %v", err)
			return result
		}
		result.info("Answers: %d / %d (checked)", sol.PartOne, sol.PartTwo)
	}

	result.info("Name: %s", config.Name)
	result.info("Grid: %dx%d (%d open, %d blocked)", stats.Rows, stats.Cols, stats.Open, stats.Blocked)
	result.info("Guard: %s", start)
	if err != nil {
		result.info("Guard loops without leaving the grid")
	} else {
		result.info("Guard visits %d cells before leaving", visited)
	}

	return result
}

// checkLayout reports every row width mismatch, unknown character and
// surplus guard marker
func checkLayout(result *ValidationResult, layout []string) {
	if len(layout) == 0 {
		result.fail("Layout is empty")
		return
	}

	width := len(layout[0])
	if width == 0 {
		result.fail("Row 1 is empty")
	}

	guards := 0
	for i, row := range layout {
		if len(row) != width {
			result.fail("Inconsistent grid width at row %d: expected %d, got %d", i+1, width, len(row))
		}
		for j := 0; j < len(row); j++ {
			c := row[j]
			if _, ok := engine.HeadingFromMarker(c); ok {
				guards++
				continue
			}
			if c != engine.OpenChar && c != engine.BlockedChar {
				result.fail("Invalid character '%c' at position [%d,%d]", c, i+1, j+1)
			}
		}
	}

	switch {
	case guards == 0:
		result.fail("No guard marker (^ > v <) found")
	case guards > 1:
		result.fail("Found %d guard markers, expected exactly 1", guards)
	}
}

// puzzleFiles lists the .json and .txt files of a directory in name order
func puzzleFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.txt"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Slice(files, func(i, j int) bool { return filepath.Base(files[i]) < filepath.Base(files[j]) })
	return files, nil
}

// main validates every puzzle file, printing a concise report and exiting
// with non-zero status if any are invalid.
func main() {
	puzzleDir := "../puzzles"
	if len(os.Args) > 1 {
		puzzleDir = os.Args[1]
	}

	files, err := puzzleFiles(puzzleDir)
	if err != nil {
		fmt.Printf("Error finding puzzle files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No puzzle files found in %s\n", puzzleDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validatePuzzle(context.Background(), file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All puzzles are valid!")
	} else {
		fmt.Println("❌ Some puzzles have errors")
		os.Exit(1)
	}
}
