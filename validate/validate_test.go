package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const examplePuzzle = `{
	"name": "Example",
	"description": "Ten by ten example patrol",
	"layout": [
		"....#.....",
		".........#",
		"..........",
		"..#.......",
		".......#..",
		"..........",
		".#..^.....",
		"........#.",
		"#.........",
		"......#..."
	],
	"expected": {"part_one": 41, "part_two": 6}
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write puzzle: %v", err)
	}
	return path
}

func hasMessage(messages []string, substr string) bool {
	for _, m := range messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestValidatePuzzle_ValidJSON(t *testing.T) {
	result := validatePuzzle(context.Background(), writeTemp(t, "example.json", examplePuzzle))
	if !result.Valid {
		t.Fatalf("Expected valid puzzle, but got errors: %v", result.Errors)
	}
	if result.File != "example.json" {
		t.Errorf("Expected file example.json, got %s", result.File)
	}
	for _, want := range []string{"Answers: 41 / 6", "Grid: 10x10", "Guard visits 41 cells"} {
		if !hasMessage(result.Errors, want) {
			t.Errorf("Expected info line containing %q, got %v", want, result.Errors)
		}
	}
}

func TestValidatePuzzle_ValidText(t *testing.T) {
	result := validatePuzzle(context.Background(), writeTemp(t, "plain.txt", "....\n.#..\n..<.\n"))
	if !result.Valid {
		t.Fatalf("Expected valid puzzle, but got errors: %v", result.Errors)
	}
	if !hasMessage(result.Errors, "Name: plain") {
		t.Errorf("Expected the file name as puzzle name, got %v", result.Errors)
	}
	if !hasMessage(result.Errors, "Guard visits 3 cells") {
		t.Errorf("Expected 3 visited cells, got %v", result.Errors)
	}
}

func TestValidatePuzzle_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		expected string
	}{
		{
			name:     "invalid JSON",
			file:     "broken.json",
			content:  `{"name": `,
			expected: "Invalid JSON",
		},
		{
			name:     "missing name",
			file:     "noname.json",
			content:  `{"layout": ["^"]}`,
			expected: "Missing required field: name",
		},
		{
			name:     "empty layout",
			file:     "empty.json",
			content:  `{"name": "Empty", "layout": []}`,
			expected: "Layout is empty",
		},
		{
			name:     "inconsistent width",
			file:     "ragged.txt",
			content:  "...\n.^\n...\n",
			expected: "Inconsistent grid width at row 2",
		},
		{
			name:     "invalid character",
			file:     "letters.txt",
			content:  "..R\n.^.\n",
			expected: "Invalid character 'R' at position [1,3]",
		},
		{
			name:     "no guard",
			file:     "noguard.txt",
			content:  "...\n...\n",
			expected: "No guard marker",
		},
		{
			name:     "two guards",
			file:     "twoguards.txt",
			content:  "^..\n..v\n",
			expected: "Found 2 guard markers",
		},
		{
			name:     "answers on a looping grid",
			file:     "spin.json",
			content:  `{"name": "Spin", "layout": [".#.", "#^#", ".#."], "expected": {"part_one": 1, "part_two": 0}}`,
			expected: "never leaves the grid",
		},
		{
			name:     "negative expected answer",
			file:     "negative.json",
			content:  `{"name": "Neg", "layout": ["^"], "expected": {"part_one": 1, "part_two": -1}}`,
			expected: "expected.part_two must not be negative",
		},
		{
			name:     "wrong recorded answers",
			file:     "wrong.json",
			content:  strings.Replace(examplePuzzle, `"part_two": 6`, `"part_two": 7`, 1),
			expected: "Recorded answers are wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validatePuzzle(context.Background(), writeTemp(t, tt.file, tt.content))
			if result.Valid {
				t.Fatalf("Expected invalid puzzle, got %v", result.Errors)
			}
			if !hasMessage(result.Errors, tt.expected) {
				t.Errorf("Expected error containing %q, got %v", tt.expected, result.Errors)
			}
		})
	}
}

func TestValidatePuzzle_LoopWithoutAnswers(t *testing.T) {
	result := validatePuzzle(context.Background(), writeTemp(t, "spin.txt", ".#.\n#^#\n.#.\n"))
	if !result.Valid {
		t.Fatalf("Expected a looping puzzle without answers to be valid, got %v", result.Errors)
	}
	if !hasMessage(result.Errors, "Guard loops") {
		t.Errorf("Expected loop info line, got %v", result.Errors)
	}
}

func TestValidatePuzzle_CollectsAllLayoutErrors(t *testing.T) {
	result := validatePuzzle(context.Background(), writeTemp(t, "bad.txt", "..x\n..\n...\n"))
	if result.Valid {
		t.Fatal("Expected invalid puzzle")
	}
	if len(result.Errors) != 3 {
		t.Errorf("Expected 3 errors (character, width, guard), got %d: %v", len(result.Errors), result.Errors)
	}
}

func TestValidatePuzzle_MissingFile(t *testing.T) {
	result := validatePuzzle(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	if result.Valid || !hasMessage(result.Errors, "Failed to read file") {
		t.Errorf("Expected read failure, got %+v", result)
	}
}

func TestPuzzleFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.json", "c.json", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("^"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}

	files, err := puzzleFiles(dir)
	if err != nil {
		t.Fatalf("puzzleFiles failed: %v", err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if strings.Join(names, ",") != "a.json,b.txt,c.json" {
		t.Errorf("Expected a.json,b.txt,c.json, got %v", names)
	}
}

func TestBundledPuzzles(t *testing.T) {
	files, err := puzzleFiles("../puzzles")
	if err != nil {
		t.Fatalf("puzzleFiles failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("Expected bundled puzzles")
	}
	for _, file := range files {
		result := validatePuzzle(context.Background(), file)
		if !result.Valid {
			t.Errorf("%s: %v", result.File, result.Errors)
		}
	}
}
