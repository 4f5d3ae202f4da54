package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Strategy selects which cells the obstruction search tries
type Strategy string

const (
	// StrategyPath only tries cells on the guard's unmodified route. An
	// obstacle anywhere else is never reached, so the result is the same as
	// StrategyExhaustive.
	StrategyPath Strategy = "path"
	// StrategyExhaustive tries every open cell except the start
	StrategyExhaustive Strategy = "exhaustive"
)

// ParseStrategy validates a strategy name. The empty string selects StrategyPath.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case "", StrategyPath:
		return StrategyPath, nil
	case StrategyExhaustive:
		return StrategyExhaustive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// progressEvery controls how often Progress is reported during a search
const progressEvery = 64

// SearchOptions configures an obstruction search
type SearchOptions struct {
	Strategy Strategy
	// Workers is the number of concurrent candidate evaluations. Zero means
	// runtime.GOMAXPROCS(0).
	Workers int
	// Progress, if set, is called from worker goroutines as candidates
	// complete and once more when the search finishes. It must be safe for
	// concurrent use.
	Progress func(done, total int)
}

// SearchResult lists the loop-inducing obstacle positions in row-major order
type SearchResult struct {
	Obstructions []Position `json:"obstructions"`
	Candidates   int        `json:"candidates"`
	Strategy     Strategy   `json:"strategy"`
	Workers      int        `json:"workers"`
}

// FindLoopObstructions tries one extra obstacle on each candidate cell and
// returns the placements that trap the guard in a loop when it restarts from
// start. The start cell is never a candidate. The base grid is shared
// read-only by all workers.
func FindLoopObstructions(ctx context.Context, g *Grid, start AgentState, opts SearchOptions) (*SearchResult, error) {
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}

	candidates, err := searchCandidates(g, start, strategy)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(candidates) {
		workers = max(len(candidates), 1)
	}

	loops := make([]bool, len(candidates))
	var done atomic.Int64
	total := len(candidates)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, c := range candidates {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			looping, err := DetectLoop(g.WithObstacle(c), start)
			if err != nil {
				return fmt.Errorf("obstacle at %s: %w", c, err)
			}
			loops[i] = looping
			if n := done.Add(1); opts.Progress != nil && n%progressEvery == 0 {
				opts.Progress(int(n), total)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if opts.Progress != nil {
		opts.Progress(total, total)
	}

	result := &SearchResult{
		Obstructions: []Position{},
		Candidates:   total,
		Strategy:     strategy,
		Workers:      workers,
	}
	for i, looping := range loops {
		if looping {
			result.Obstructions = append(result.Obstructions, candidates[i])
		}
	}
	return result, nil
}

// searchCandidates returns candidate cells in row-major order
func searchCandidates(g *Grid, start AgentState, strategy Strategy) ([]Position, error) {
	var candidates []Position

	if strategy == StrategyPath {
		tr, err := Traverse(g, start, DistinctCells)
		switch {
		case err == nil:
			candidates = make([]Position, 0, len(tr.Visited))
			for p := range tr.Visited {
				if p != start.Pos {
					candidates = append(candidates, p)
				}
			}
			SortPositions(candidates)
			return candidates, nil
		case errors.Is(err, ErrNonTerminating):
			// The unmodified route never ends, so it does not bound which
			// obstacles matter. Fall through to every open cell.
		default:
			return nil, err
		}
	}

	for _, p := range g.OpenCells() {
		if p != start.Pos {
			candidates = append(candidates, p)
		}
	}
	return candidates, nil
}

// SortPositions sorts positions row-major in place
func SortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}

// Solution holds both puzzle answers
type Solution struct {
	PartOne      int           `json:"part_one"`
	PartTwo      int           `json:"part_two"`
	Start        AgentState    `json:"start"`
	Rows         int           `json:"rows"`
	Cols         int           `json:"cols"`
	Search       *SearchResult `json:"search"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	ElapsedHuman string        `json:"elapsed"`
}

// Solve computes the distinct-cell count and the number of loop-inducing
// obstacle placements for a grid
func Solve(ctx context.Context, g *Grid, start AgentState, opts SearchOptions) (*Solution, error) {
	began := time.Now()

	visited, err := CountVisited(g, start)
	if err != nil {
		return nil, fmt.Errorf("part one: %w", err)
	}

	search, err := FindLoopObstructions(ctx, g, start, opts)
	if err != nil {
		return nil, fmt.Errorf("part two: %w", err)
	}

	elapsed := time.Since(began)
	return &Solution{
		PartOne:      visited,
		PartTwo:      len(search.Obstructions),
		Start:        start,
		Rows:         g.Rows(),
		Cols:         g.Cols(),
		Search:       search,
		Elapsed:      elapsed,
		ElapsedHuman: elapsed.String(),
	}, nil
}
