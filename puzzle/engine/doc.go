// Package engine provides the core simulation logic for the Guard Patrol puzzle.
//
// The engine package implements:
//   - Grid parsing and bounds-checked cell access
//   - The guard movement rule (turn right on blocked, otherwise advance)
//   - Traversal in distinct-cell and loop-detection modes
//   - The obstruction search that counts loop-inducing obstacle placements
//   - Interactive patrols used by sessions
//   - Puzzle file loading and validation
//
// Core Types:
//
// Grid is an immutable table of Open and Blocked cells. Terrain is the
// read-only view the traversal consumes; Grid.WithObstacle returns an O(1)
// overlay so the obstruction search never copies or mutates the base grid.
// AgentState (position plus heading) is the unit of cycle detection.
//
// Usage:
//
//	grid, start, err := engine.ParseGrid(input)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	solution, err := engine.Solve(ctx, grid, start, engine.SearchOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(solution.PartOne, solution.PartTwo)
//
// Puzzle Rules:
//
// The guard walks the grid one step at a time. If the cell ahead is outside
// the grid the guard leaves and the walk ends. If the cell ahead is blocked
// the guard turns right in place. Otherwise the guard steps forward. Part one
// counts the distinct cells visited before leaving; part two counts the open
// cells where one extra obstacle traps the guard in a loop.
package engine
