// Package service provides the business logic layer for the guard patrol
// puzzle server.
//
// The service package implements:
//   - Multi-session patrol management
//   - Puzzle loading and saving
//   - Solver runs with optional history recording
//
// Core Interfaces:
//
// PuzzleService is the main service interface used by the transports.
// SessionManager handles session creation, retrieval, and lifecycle.
// PuzzleManager loads and lists puzzle files.
// SolutionStore records solver runs.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the puzzle engine. Each session owns an engine.Patrol that can be stepped,
// reset and given extra obstacles independently of every other session.
// Solving is stateless and runs outside the session lock.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	puzzleMgr, _ := config.NewManager("puzzles")
//	svc := service.NewPuzzleService(sessionMgr, puzzleMgr, nil)
//
//	result, err := svc.Solve(ctx, "example", service.SolveOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.Solution.PartOne, result.Solution.PartTwo)
package service
