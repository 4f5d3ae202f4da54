// Command guardctl solves guard patrol puzzles from the command line.
//
//	guardctl solve puzzles/example.json
//	guardctl solve --strategy exhaustive --workers 4 - < grid.txt
//	guardctl trace --obstacle 6,3 puzzles/example.json
//	guardctl analyze puzzles
//	guardctl patrol --url http://localhost:8080 --puzzle example --obstacle 6,3
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

// maxListedPositions caps how many obstruction positions solve prints
const maxListedPositions = 20

func main() {
	app := newApp(os.Stdin, os.Stdout)
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "guardctl",
		Usage:  "solve and inspect guard patrol puzzles",
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:      "solve",
				Usage:     "count visited cells and loop-inducing obstacle positions",
				ArgsUsage: "<puzzle file | ->...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Value: string(engine.StrategyPath), Usage: "search strategy: path or exhaustive"},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "concurrent candidate evaluations (0 = GOMAXPROCS)"},
					&cli.BoolFlag{Name: "json", Usage: "print solutions as JSON"},
					&cli.BoolFlag{Name: "positions", Aliases: []string{"p"}, Usage: "list every obstruction position"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return solveAction(ctx, cmd, in, out)
				},
			},
			{
				Name:      "trace",
				Usage:     "draw the guard's route",
				ArgsUsage: "<puzzle file | ->",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "obstacle", Aliases: []string{"o"}, Usage: "extra obstacle as row,col (repeatable)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return traceAction(cmd, in, out)
				},
			},
			{
				Name:  "patrol",
				Usage: "walk the guard through a session on a running server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "server URL"},
					&cli.StringFlag{Name: "puzzle", Usage: "puzzle to start a session for (server default when empty)"},
					&cli.StringFlag{Name: "continue", Usage: "resume an existing session by ID"},
					&cli.StringSliceFlag{Name: "obstacle", Aliases: []string{"o"}, Usage: "obstacle to place as row,col (repeatable)"},
					&cli.IntFlag{Name: "batch", Value: 50, Usage: "steps per request"},
					&cli.IntFlag{Name: "max-steps", Value: 100000, Usage: "give up after this many steps"},
					&cli.IntFlag{Name: "delay", Usage: "delay between requests in milliseconds"},
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "print progress after every request"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return patrolAction(ctx, cmd, out)
				},
			},
			{
				Name:      "analyze",
				Usage:     "summarise every puzzle in a directory",
				ArgsUsage: "[puzzles dir]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "solve", Usage: "also run the obstruction search"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					dir := "puzzles"
					if cmd.Args().Len() > 0 {
						dir = cmd.Args().First()
					}
					return analyzeDir(ctx, dir, cmd.Bool("solve"), out)
				},
			},
		},
		// Obstacles are written row,col
		DisableSliceFlagSeparator: true,
	}
}

// loadPuzzle reads a puzzle file, or standard input when the name is "-"
func loadPuzzle(name string, in io.Reader) (*engine.PuzzleConfig, error) {
	if name != "-" {
		return engine.LoadPuzzleFile(name)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return engine.ParsePuzzle("stdin", data)
}

type solveOutput struct {
	Puzzle   string           `json:"puzzle"`
	Solution *engine.Solution `json:"solution"`
	Matches  *bool            `json:"matches_expected,omitempty"`
}

func solveAction(ctx context.Context, cmd *cli.Command, in io.Reader, out io.Writer) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return errors.New("solve needs at least one puzzle file, or - for stdin")
	}

	strategy, err := engine.ParseStrategy(cmd.String("strategy"))
	if err != nil {
		return err
	}
	opts := engine.SearchOptions{Strategy: strategy, Workers: int(cmd.Int("workers"))}

	var results []solveOutput
	failed := 0
	for _, file := range files {
		config, err := loadPuzzle(file, in)
		if err != nil {
			return err
		}
		grid, start, err := engine.NewGrid(config.Layout)
		if err != nil {
			return err
		}

		sol, err := engine.Solve(ctx, grid, start, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", config.Name, err)
		}

		result := solveOutput{Puzzle: config.Name, Solution: sol}
		if config.Expected != nil {
			ok := config.Check(sol) == nil
			result.Matches = &ok
			if !ok {
				failed++
			}
		}
		results = append(results, result)

		if !cmd.Bool("json") {
			printSolution(out, config, sol, cmd.Bool("positions"))
		}
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d puzzle(s) did not match their recorded answers", failed)
	}
	return nil
}

func printSolution(out io.Writer, config *engine.PuzzleConfig, sol *engine.Solution, allPositions bool) {
	fmt.Fprintf(out, "=== %s (%dx%d) ===\n", config.Name, sol.Rows, sol.Cols)
	fmt.Fprintf(out, "Guard: %s\n", sol.Start)
	fmt.Fprintf(out, "Part one: %d\n", sol.PartOne)
	fmt.Fprintf(out, "Part two: %d\n", sol.PartTwo)
	fmt.Fprintf(out, "Search: %s, %d candidates, %d workers, %s\n",
		sol.Search.Strategy, sol.Search.Candidates, sol.Search.Workers, sol.ElapsedHuman)

	positions := sol.Search.Obstructions
	if len(positions) > 0 && (allPositions || len(positions) <= maxListedPositions) {
		parts := make([]string, len(positions))
		for i, p := range positions {
			parts[i] = p.String()
		}
		fmt.Fprintf(out, "Positions: %s\n", strings.Join(parts, " "))
	}

	if config.Expected != nil {
		if err := config.Check(sol); err != nil {
			fmt.Fprintf(out, "❌ Mismatch: %v\n", err)
		} else {
			fmt.Fprintln(out, "✅ Matches recorded answers")
		}
	}
}

func traceAction(cmd *cli.Command, in io.Reader, out io.Writer) error {
	if cmd.Args().Len() != 1 {
		return errors.New("trace needs exactly one puzzle file, or - for stdin")
	}
	config, err := loadPuzzle(cmd.Args().First(), in)
	if err != nil {
		return err
	}
	grid, start, err := engine.NewGrid(config.Layout)
	if err != nil {
		return err
	}

	obstacles, err := parseObstacles(cmd.StringSlice("obstacle"), grid, start)
	if err != nil {
		return err
	}

	terrain := grid.WithObstacles(obstacles...)
	trace, err := engine.Traverse(terrain, start, engine.LoopDetection)
	if err != nil {
		return err
	}

	for _, line := range engine.Render(terrain, &start, trace.Positions()) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Outcome: %s after %d moves and %d turns\n", trace.Outcome, trace.Moves, trace.Turns)
	fmt.Fprintf(out, "Distinct cells: %d\n", len(trace.Positions()))
	return nil
}

// parseObstacles reads row,col pairs and rejects cells outside the grid
// and the guard's start
func parseObstacles(values []string, g *engine.Grid, start engine.AgentState) ([]engine.Position, error) {
	var positions []engine.Position
	for _, v := range values {
		p, err := parsePosition(v)
		if err != nil {
			return nil, err
		}
		if !g.InBounds(p) {
			return nil, fmt.Errorf("%w: %s outside grid", engine.ErrInvalidObstacle, p)
		}
		if p == start.Pos {
			return nil, fmt.Errorf("%w: %s is the guard's start", engine.ErrInvalidObstacle, p)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// parsePosition reads a row,col pair
func parsePosition(v string) (engine.Position, error) {
	row, col, ok := strings.Cut(v, ",")
	if !ok {
		return engine.Position{}, fmt.Errorf("%w: %q is not row,col", engine.ErrInvalidObstacle, v)
	}
	r, err := strconv.Atoi(strings.TrimSpace(row))
	if err != nil {
		return engine.Position{}, fmt.Errorf("%w: bad row in %q", engine.ErrInvalidObstacle, v)
	}
	c, err := strconv.Atoi(strings.TrimSpace(col))
	if err != nil {
		return engine.Position{}, fmt.Errorf("%w: bad column in %q", engine.ErrInvalidObstacle, v)
	}
	return engine.Position{Row: r, Col: c}, nil
}

// analyzeDir prints heuristics for every puzzle file in dir
func analyzeDir(ctx context.Context, dir string, solve bool, out io.Writer) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read puzzle directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".json" || ext == ".txt") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("no puzzle files in %s", dir)
	}

	for _, file := range files {
		fmt.Fprintf(out, "\n=== Analyzing %s ===\n", filepath.Base(file))
		analyzePuzzle(ctx, file, solve, out)
	}
	return nil
}

func analyzePuzzle(ctx context.Context, path string, solve bool, out io.Writer) {
	config, err := engine.LoadPuzzleFile(path)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	grid, start, err := engine.NewGrid(config.Layout)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	stats := engine.Stats(grid, start)
	fmt.Fprintf(out, "Name: %s\n", config.Name)
	fmt.Fprintf(out, "Grid Size: %d x %d\n", stats.Rows, stats.Cols)
	fmt.Fprintf(out, "Open: %d, Blocked: %d\n", stats.Open, stats.Blocked)
	fmt.Fprintf(out, "Guard: %s\n", start)
	fmt.Fprintf(out, "Straight-line distance to edge: %d\n", engine.DistanceToEdge(grid, start))

	trace, err := engine.Traverse(grid, start, engine.LoopDetection)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if trace.Outcome == engine.Looping {
		fmt.Fprintf(out, "Route: loops after %d moves\n", trace.Moves)
		return
	}
	cells := len(trace.Positions())
	fmt.Fprintf(out, "Route: exits after %d moves, %d turns, %d distinct cells (%.0f%% of open)\n",
		trace.Moves, trace.Turns, cells, 100*float64(cells)/float64(stats.Open))

	if !solve {
		return
	}
	sol, err := engine.Solve(ctx, grid, start, engine.SearchOptions{})
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Loop-inducing obstacles: %d of %d candidates\n", sol.PartTwo, sol.Search.Candidates)
	if err := config.Check(sol); err != nil {
		fmt.Fprintf(out, "⚠️  Recorded answers disagree: %v\n", err)
	}
}

// patrolAction runs a remote session from a clean start until the guard
// exits or loops
func patrolAction(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	client := NewClient(cmd.String("url"))

	var state *engine.PatrolState
	var err error
	if id := cmd.String("continue"); id != "" {
		state, err = client.Resume(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to resume session %s: %w", id, err)
		}
		fmt.Fprintf(out, "Resumed session %s\n", client.SessionID())
	} else {
		state, err = client.CreateSession(ctx, cmd.String("puzzle"))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created session %s\n", client.SessionID())
	}

	obstacles := cmd.StringSlice("obstacle")
	if len(obstacles) > 0 || len(state.Obstacles) > 0 {
		if state, err = client.ClearObstacles(ctx); err != nil {
			return err
		}
	}
	for _, v := range obstacles {
		p, err := parsePosition(v)
		if err != nil {
			return err
		}
		if state, err = client.PlaceObstacle(ctx, p); err != nil {
			return err
		}
	}
	if state, err = client.Reset(ctx); err != nil {
		return err
	}

	batch := int(cmd.Int("batch"))
	if batch <= 0 {
		batch = 1
	}
	maxSteps := int(cmd.Int("max-steps"))
	delay := time.Duration(cmd.Int("delay")) * time.Millisecond

	for state.Status == engine.StatusPatrolling && state.Steps < maxSteps {
		result, err := client.Step(ctx, min(batch, maxSteps-state.Steps))
		if err != nil {
			return err
		}
		state = result.PatrolState
		if cmd.Bool("verbose") {
			fmt.Fprintf(out, "Steps: %d, Guard: %s, Visited: %d\n", state.Steps, state.Guard, state.VisitedCount)
		}
		if result.StepsTaken == 0 {
			break
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	for _, line := range state.View {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Status: %s after %d steps (%d moves, %d turns)\n", state.Status, state.Steps, state.Moves, state.Turns)
	fmt.Fprintf(out, "Visited: %d\n", state.VisitedCount)
	fmt.Fprintf(out, "Session: %s\n", client.SessionID())

	if state.Status == engine.StatusPatrolling {
		return fmt.Errorf("guard still patrolling after %d steps", state.Steps)
	}
	return nil
}
