// Package mcp exposes guard patrol puzzles to AI agents over the Model
// Context Protocol.
//
// The Client is a thin proxy: every tool call is translated into a REST
// request against the api package and the JSON response is formatted as
// text for the agent.
//
// MCP Tools:
//   - list_puzzles: List stored puzzles
//   - solve_puzzle: Answer both parts for a stored puzzle
//   - solve_grid: Answer both parts for pasted grid text
//   - list_solutions: Recorded solver runs
//   - create_session: Start an interactive patrol
//   - step_guard: Advance a session's guard
//   - session_state: Render a session's grid and counters
//   - place_obstacle: Block a cell and restart the guard
//   - reset_session: Return the guard to its start, optionally clearing obstacles
//   - puzzle_instructions: Rules and tips
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: POST /mcp, handled by GetMCPServer().HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
