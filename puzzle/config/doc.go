// Package config provides the puzzle catalogue for the guard patrol server.
//
// The config package handles:
//   - Loading puzzles from JSON and plain text files
//   - Puzzle validation
//   - Default puzzle management
//   - Puzzle discovery and listing
//
// Puzzle Format:
//
// A JSON puzzle names the puzzle, carries its layout rows and optionally the
// known answers used to check the solver:
//
//	{
//	  "name": "example",
//	  "layout": ["....#.....", "....^....."],
//	  "expected": {"part_one": 41, "part_two": 6}
//	}
//
// A .txt puzzle is the raw grid, one row per line, named after its file.
// Layouts use '.' for open cells, '#' for obstacles and one of ^ > v < for
// the guard.
//
// Usage:
//
//	manager, err := config.NewManager("puzzles")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	puzzle, err := manager.LoadConfig("example")
//	puzzles, err := manager.ListConfigs()
package config
