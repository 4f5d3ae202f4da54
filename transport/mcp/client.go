package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
)

// requestTimeout bounds a single API call; exhaustive searches on large
// grids are the slowest requests
const requestTimeout = 2 * time.Minute

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Guard Patrol",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Guard Patrol - MCP Interface

This is a thin client that proxies all requests to the REST API server.

PUZZLE:
A guard (^ > v <) walks a grid of open (.) and blocked (#) cells. Each step
it moves forward, or turns right in place when the cell ahead is blocked. It
stops when it walks off the grid.

AVAILABLE TOOLS:
- list_puzzles: List stored puzzles
- solve_puzzle: Count visited cells and loop-inducing obstacle spots for a stored puzzle
- solve_grid: Same, for a grid you paste in
- list_solutions: Recorded solver runs
- create_session: Start an interactive patrol
- step_guard: Advance the guard of a session
- session_state: Show a session's grid, guard and counters
- place_obstacle: Add an obstacle to a session and restart its guard
- reset_session: Put the guard back at its start
- puzzle_instructions: Rules and tips`),
	)

	c.registerTools()
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func searchProperties(props map[string]interface{}) map[string]interface{} {
	props["strategy"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"path", "exhaustive"},
		"description": "Candidate cells to try: the guard's route (path, default) or every open cell (exhaustive)",
	}
	props["workers"] = map[string]interface{}{
		"type":        "integer",
		"description": "Concurrent candidate evaluations (default: number of CPUs)",
	}
	return props
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_puzzles",
		Description: "List the stored puzzles with their sizes",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPuzzles)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "solve_puzzle",
		Description: "Solve a stored puzzle: distinct cells the guard visits, and how many single obstacle placements trap it in a loop",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: searchProperties(map[string]interface{}{
				"puzzle_id": map[string]interface{}{
					"type":        "string",
					"description": "Puzzle to solve (default puzzle when omitted)",
				},
			}),
		},
	}, c.handleSolvePuzzle)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "solve_grid",
		Description: "Solve a grid given as text, one row per line",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: searchProperties(map[string]interface{}{
				"grid": map[string]interface{}{
					"type":        "string",
					"description": "Rows of . # and exactly one of ^ > v <, separated by newlines",
				},
			}),
			Required: []string{"grid"},
		},
	}, c.handleSolveGrid)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_solutions",
		Description: "List recorded solver runs, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"puzzle_id": map[string]interface{}{
					"type":        "string",
					"description": "Only runs for this puzzle (optional)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of runs",
				},
			},
		},
	}, c.handleListSolutions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create an interactive patrol session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"puzzle_id": map[string]interface{}{
					"type":        "string",
					"description": "Puzzle to patrol (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step_guard",
		Description: "Advance the guard by a number of steps. A turn counts as a step.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"steps": map[string]interface{}{
					"type":        "integer",
					"description": "Steps to take (default 1)",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset before stepping",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStepGuard)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "session_state",
		Description: "Show the grid, guard position and counters of a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleSessionState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "place_obstacle",
		Description: "Block an open cell of a session and restart its guard",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"row": map[string]interface{}{
					"type":        "integer",
					"description": "Row of the cell (0-based, top row is 0)",
				},
				"col": map[string]interface{}{
					"type":        "integer",
					"description": "Column of the cell (0-based)",
				},
			},
			Required: []string{"session_id", "row", "col"},
		},
	}, c.handlePlaceObstacle)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_session",
		Description: "Return the guard to its start. Placed obstacles stay unless clear_obstacles is set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"clear_obstacles": map[string]interface{}{
					"type":        "boolean",
					"description": "Also remove placed obstacles",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleResetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "puzzle_instructions",
		Description: "Get the patrol rules and tips for the tools",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handlePuzzleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Argument helpers. JSON numbers arrive as float64.

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func intArg(args map[string]interface{}, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, true, fmt.Errorf("%s must be a whole number, got %v", key, v)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, true, fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		return n, true, nil
	}
	return 0, true, fmt.Errorf("%s must be an integer", key)
}

func searchBody(args map[string]interface{}) (map[string]interface{}, error) {
	body := map[string]interface{}{}
	if strategy := stringArg(args, "strategy"); strategy != "" {
		body["strategy"] = strategy
	}
	workers, ok, err := intArg(args, "workers")
	if err != nil {
		return nil, err
	}
	if ok {
		body["workers"] = workers
	}
	return body, nil
}

// Tool handlers

func (c *Client) handleListPuzzles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var puzzles []service.PuzzleInfo
	if err := c.apiCall(ctx, "GET", "/api/puzzles", nil, &puzzles); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Puzzles (%d):\n\n", len(puzzles))
	for _, p := range puzzles {
		answers := ""
		if p.HasExpected {
			answers = ", known answers"
		}
		fmt.Fprintf(&result, "- %s: %s (%dx%d%s)\n", p.PuzzleID, p.Name, p.Rows, p.Cols, answers)
		if p.Description != "" {
			fmt.Fprintf(&result, "  %s\n", p.Description)
		}
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleSolvePuzzle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	body, err := searchBody(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path := "/api/solve"
	if puzzleID := stringArg(args, "puzzle_id"); puzzleID != "" {
		path = "/api/puzzles/" + url.PathEscape(puzzleID) + "/solve"
	}

	var result service.SolveResult
	if err := c.apiCall(ctx, "POST", path, body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSolveResult(&result)), nil
}

func (c *Client) handleSolveGrid(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	grid, _ := args["grid"].(string)
	if strings.TrimSpace(grid) == "" {
		return mcp.NewToolResultError("grid is required"), nil
	}

	body, err := searchBody(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body["grid"] = grid

	var result service.SolveResult
	if err := c.apiCall(ctx, "POST", "/api/solve", body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSolveResult(&result)), nil
}

func (c *Client) handleListSolutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := url.Values{}
	if puzzleID := stringArg(args, "puzzle_id"); puzzleID != "" {
		query.Set("puzzle", puzzleID)
	}
	limit, ok, err := intArg(args, "limit")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if ok {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/solutions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response struct {
		Count     int                      `json:"count"`
		Solutions []service.SolutionRecord `json:"solutions"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Solver runs (%d):\n\n", response.Count)
	for _, r := range response.Solutions {
		fmt.Fprintf(&result, "- %s %s: part one %d, part two %d (%s, %d candidates, %dms)\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.PuzzleName, r.PartOne, r.PartTwo, r.Strategy, r.Candidates, r.ElapsedMS)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	body := map[string]string{}
	if puzzleID := stringArg(args, "puzzle_id"); puzzleID != "" {
		body["puzzle_id"] = puzzleID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nPuzzle: %s\n\n%s", session.ID, session.PuzzleName, formatPatrolState(session.PatrolState))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleStepGuard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	steps, ok, err := intArg(args, "steps")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		steps = 1
	}

	body := map[string]interface{}{
		"steps": steps,
		"reset": boolArg(args, "reset"),
	}

	var result service.StepResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/step"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStepResult(&result)), nil
}

func (c *Client) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "session_id")

	var state engine.PatrolState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatPatrolState(&state)), nil
}

func (c *Client) handlePlaceObstacle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	row, rowOK, err := intArg(args, "row")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	col, colOK, err := intArg(args, "col")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !rowOK || !colOK {
		return mcp.NewToolResultError("row and col are required"), nil
	}

	var state engine.PatrolState
	body := map[string]int{"row": row, "col": col}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/obstacles"), body, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatPatrolState(&state)), nil
}

func (c *Client) handleResetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	var state engine.PatrolState
	if boolArg(args, "clear_obstacles") {
		if err := c.apiCall(ctx, "DELETE", sessionPath(sessionID, "/obstacles"), nil, &state); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Obstacles cleared, guard reset\n\n" + formatPatrolState(&state)), nil
	}

	var response struct {
		Message string              `json:"message"`
		State   *engine.PatrolState `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(response.Message + "\n\n" + formatPatrolState(response.State)), nil
}

func (c *Client) handlePuzzleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Guard Patrol - Instructions

GRID LEGEND:
• . - open cell
• # - blocked cell
• ^ > v < - the guard, facing north, east, south or west
• X - a cell the guard has visited
• O - an obstacle placed in this session

MOVEMENT RULE (one step):
1. Look at the cell directly ahead.
2. If it is outside the grid, the guard leaves and the patrol ends.
3. If it is blocked, the guard turns 90 degrees right and stays put.
4. Otherwise the guard moves into it.

THE TWO QUESTIONS:
• Part one: how many distinct cells does the guard visit before leaving,
  its start included?
• Part two: on how many open cells (never the guard's start) could one new
  obstacle be placed so that the guard walks in a loop forever? A loop is the
  guard standing on the same cell facing the same way twice.

TOOLS:
• solve_puzzle / solve_grid answer both parts directly.
• create_session, step_guard and session_state let you watch a patrol.
• place_obstacle restarts the guard with an extra obstacle, then step_guard
  with a large step count tells you whether it loops ("looping") or leaves
  ("exited").

TIPS:
• Rows and columns are 0-based; row 0 is the top row.
• Only cells on the guard's original route can change its path, so they are
  the only useful places for an obstacle.`

	return mcp.NewToolResultText(instructions), nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Formatting

func formatSolveResult(result *service.SolveResult) string {
	sol := result.Solution
	if sol == nil {
		return "No solution available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Puzzle: %s (%dx%d, guard at %s)\n", result.PuzzleName, sol.Rows, sol.Cols, sol.Start)
	fmt.Fprintf(&b, "Part one - distinct cells visited: %d\n", sol.PartOne)
	fmt.Fprintf(&b, "Part two - loop-inducing obstacle positions: %d\n", sol.PartTwo)

	if s := sol.Search; s != nil {
		fmt.Fprintf(&b, "Search: %s strategy, %d candidates, %d workers, %s\n", s.Strategy, s.Candidates, s.Workers, sol.ElapsedHuman)
		if n := len(s.Obstructions); n > 0 && n <= 20 {
			positions := make([]string, n)
			for i, p := range s.Obstructions {
				positions[i] = p.String()
			}
			fmt.Fprintf(&b, "Positions: %s\n", strings.Join(positions, " "))
		}
	}

	if result.ExpectedMatch != nil {
		if *result.ExpectedMatch {
			b.WriteString("Matches the recorded answers\n")
		} else {
			fmt.Fprintf(&b, "MISMATCH with recorded answers: %s\n", result.Mismatch)
		}
	}
	return b.String()
}

func formatStepResult(result *service.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Steps taken: %d/%d", result.StepsTaken, result.Requested)
	if result.Truncated {
		fmt.Fprintf(&b, " (capped at %d)", result.Limit)
	}
	b.WriteString("\n")

	for _, e := range result.Events {
		fmt.Fprintf(&b, "Event: %s - %s\n", e.Type, e.Message)
	}
	b.WriteString("\n")
	b.WriteString(formatPatrolState(result.PatrolState))
	return b.String()
}

func formatPatrolState(state *engine.PatrolState) string {
	if state == nil {
		return "No patrol state available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Guard: %s | Status: %s | Visited: %d | Steps: %d (%d moves, %d turns)\n",
		state.Guard, state.Status, state.VisitedCount, state.Steps, state.Moves, state.Turns)

	if len(state.Obstacles) > 0 {
		positions := make([]string, len(state.Obstacles))
		for i, p := range state.Obstacles {
			positions[i] = p.String()
		}
		fmt.Fprintf(&b, "Placed obstacles: %s\n", strings.Join(positions, " "))
	}

	if len(state.View) > 0 {
		b.WriteString("\n")
		for _, row := range state.View {
			b.WriteString(row)
			b.WriteString("\n")
		}
	}

	if state.Message != "" {
		fmt.Fprintf(&b, "\nMessage: %s", state.Message)
	}
	return b.String()
}
