package engine

import (
	"errors"
	"reflect"
	"testing"
)

func TestStep(t *testing.T) {
	g, _ := mustGrid(t, []string{
		".#.",
		"...",
		".^.",
	})

	tests := []struct {
		name         string
		from         AgentState
		expected     AgentState
		expectedKind StepKind
	}{
		{
			name:         "moves into open cell",
			from:         AgentState{Pos: Position{2, 1}, Heading: North},
			expected:     AgentState{Pos: Position{1, 1}, Heading: North},
			expectedKind: Moved,
		},
		{
			name:         "turns right at obstacle",
			from:         AgentState{Pos: Position{1, 1}, Heading: North},
			expected:     AgentState{Pos: Position{1, 1}, Heading: East},
			expectedKind: Turned,
		},
		{
			name:         "leaves from the edge",
			from:         AgentState{Pos: Position{2, 1}, Heading: South},
			expected:     AgentState{Pos: Position{2, 1}, Heading: South},
			expectedKind: Left,
		},
		{
			name:         "leaves from a corner facing west",
			from:         AgentState{Pos: Position{0, 0}, Heading: West},
			expected:     AgentState{Pos: Position{0, 0}, Heading: West},
			expectedKind: Left,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			next, kind := Step(g, test.from)
			if kind != test.expectedKind {
				t.Errorf("Expected %s, got %s", test.expectedKind, kind)
			}
			if next != test.expected {
				t.Errorf("Expected %v, got %v", test.expected, next)
			}
		})
	}
}

func TestCountVisited_Example(t *testing.T) {
	g, start := mustGrid(t, exampleLayout)

	count, err := CountVisited(g, start)
	if err != nil {
		t.Fatalf("CountVisited failed: %v", err)
	}
	if count != 41 {
		t.Errorf("Expected 41 distinct cells, got %d", count)
	}
}

func TestCountVisited_ImmediateExit(t *testing.T) {
	tests := []struct {
		name   string
		layout []string
	}{
		{"single cell", []string{"^"}},
		{"single row facing north", []string{".^."}},
		{"single row facing east at edge", []string{"..>"}},
		{"single column facing west", []string{".", "<", "."}},
		{"bottom edge facing south", []string{"...", "#..", ".v."}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g, start := mustGrid(t, test.layout)
			count, err := CountVisited(g, start)
			if err != nil {
				t.Fatalf("CountVisited failed: %v", err)
			}
			if count != 1 {
				t.Errorf("Expected 1, got %d", count)
			}
		})
	}
}

func TestCountVisited_CrossingPathIsNotALoop(t *testing.T) {
	// The guard passes its start cell again heading west, then leaves
	g, start := mustGrid(t, []string{
		".#...",
		"....#",
		".....",
		".^...",
		"...#.",
	})

	count, err := CountVisited(g, start)
	if err != nil {
		t.Fatalf("CountVisited failed: %v", err)
	}
	if count != 9 {
		t.Errorf("Expected 9 distinct cells, got %d", count)
	}

	looping, err := DetectLoop(g, start)
	if err != nil {
		t.Fatalf("DetectLoop failed: %v", err)
	}
	if looping {
		t.Error("Revisiting a cell with a new heading must not count as a loop")
	}
}

func TestDetectLoop(t *testing.T) {
	tests := []struct {
		name     string
		layout   []string
		expected bool
	}{
		{"example exits", exampleLayout, false},
		{"rectangle loop", loopLayout, true},
		{"boxed in guard", spinLayout, true},
		{"single cell", []string{"^"}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g, start := mustGrid(t, test.layout)
			looping, err := DetectLoop(g, start)
			if err != nil {
				t.Fatalf("DetectLoop failed: %v", err)
			}
			if looping != test.expected {
				t.Errorf("Expected looping=%v, got %v", test.expected, looping)
			}
		})
	}
}

func TestDetectLoop_ExampleWithObstacle(t *testing.T) {
	g, start := mustGrid(t, exampleLayout)

	looping, err := DetectLoop(g.WithObstacle(Position{Row: 6, Col: 3}), start)
	if err != nil {
		t.Fatalf("DetectLoop failed: %v", err)
	}
	if !looping {
		t.Error("Expected an obstacle next to the start to cause a loop")
	}
	if g.Blocked(Position{Row: 6, Col: 3}) {
		t.Error("Base grid must stay unmodified")
	}
}

func TestTraverse_BoxedInGuard(t *testing.T) {
	g, start := mustGrid(t, spinLayout)

	tr, err := Traverse(g, start, LoopDetection)
	if err != nil {
		t.Fatalf("Traverse failed: %v", err)
	}
	if tr.Outcome != Looping {
		t.Errorf("Expected looping, got %s", tr.Outcome)
	}
	if tr.Moves != 0 {
		t.Errorf("Expected no moves, got %d", tr.Moves)
	}
	if tr.Turns != StepLimit(g) {
		t.Errorf("Expected %d turns, got %d", StepLimit(g), tr.Turns)
	}

	_, err = Traverse(g, start, DistinctCells)
	if !errors.Is(err, ErrNonTerminating) {
		t.Errorf("Expected ErrNonTerminating in distinct mode, got %v", err)
	}
	if _, err := CountVisited(g, start); !errors.Is(err, ErrNonTerminating) {
		t.Errorf("Expected CountVisited to fail, got %v", err)
	}
}

func TestTraverse_LoopEndsOnRepeatedMove(t *testing.T) {
	tests := []struct {
		name   string
		layout []string
		moves  int
		turns  int
	}{
		{"4x4 rectangle", loopLayout, 4, 4},
		{"5x5 rectangle", []string{
			".#...",
			"....#",
			".....",
			"#^...",
			"...#.",
		}, 9, 4},
		{"4x5 rectangle", []string{
			"..#..",
			"....#",
			".#^..",
			"...#.",
		}, 5, 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g, start := mustGrid(t, test.layout)
			tr, err := Traverse(g, start, LoopDetection)
			if err != nil {
				t.Fatalf("Traverse failed: %v", err)
			}
			if tr.Outcome != Looping {
				t.Fatalf("Expected looping, got %s", tr.Outcome)
			}
			if tr.Moves != test.moves || tr.Turns != test.turns {
				t.Errorf("Expected %d moves and %d turns, got %d and %d", test.moves, test.turns, tr.Moves, tr.Turns)
			}
			if tr.Moves+tr.Turns >= StepLimit(g) {
				t.Errorf("Expected the loop to be caught before the step cap %d", StepLimit(g))
			}
			if _, ok := tr.States[tr.Final]; !ok {
				t.Errorf("Expected final state %v to be a repeat", tr.Final)
			}
		})
	}
}

func TestTraverse_ThreeByThreeLoopsOnlyAtCap(t *testing.T) {
	// Every 3x3 obstacle pattern, start cell and heading
	markers := []byte{'^', '>', 'v', '<'}
	loops := 0
	for mask := 0; mask < 1<<9; mask++ {
		for startCell := 0; startCell < 9; startCell++ {
			if mask&(1<<startCell) != 0 {
				continue
			}
			for _, marker := range markers {
				cells := []byte(".........")
				for i := range cells {
					if mask&(1<<i) != 0 {
						cells[i] = '#'
					}
				}
				cells[startCell] = marker
				layout := []string{string(cells[0:3]), string(cells[3:6]), string(cells[6:9])}

				g, start := mustGrid(t, layout)
				tr, err := Traverse(g, start, LoopDetection)
				if err != nil {
					t.Fatalf("Traverse(%v) failed: %v", layout, err)
				}
				if tr.Outcome != Looping {
					continue
				}
				loops++
				if tr.Moves+tr.Turns != StepLimit(g) {
					t.Errorf("%v: expected a loop only at the step cap, got %d moves and %d turns", layout, tr.Moves, tr.Turns)
				}
			}
		}
	}
	if loops == 0 {
		t.Error("Expected at least the boxed-in layouts to loop")
	}
}

func TestTraverse_LoopRecordsStates(t *testing.T) {
	g, start := mustGrid(t, loopLayout)

	tr, err := Traverse(g, start, LoopDetection)
	if err != nil {
		t.Fatalf("Traverse failed: %v", err)
	}
	if tr.Outcome != Looping {
		t.Fatalf("Expected looping, got %s", tr.Outcome)
	}
	if _, ok := tr.States[start]; !ok {
		t.Error("Expected the start state to be recorded")
	}
	if tr.Visited != nil {
		t.Error("Loop detection should not fill the visited set")
	}

	positions := tr.Positions()
	expected := []Position{{1, 1}, {1, 2}, {2, 2}, {2, 1}}
	if len(positions) != len(expected) {
		t.Fatalf("Expected %d positions, got %d", len(expected), len(positions))
	}
	for _, p := range expected {
		if _, ok := positions[p]; !ok {
			t.Errorf("Expected %s on the loop", p)
		}
	}
}

func TestTraverse_InvalidStart(t *testing.T) {
	g, _ := mustGrid(t, exampleLayout)

	_, err := Traverse(g, AgentState{Pos: Position{Row: -1, Col: 0}}, DistinctCells)
	if !errors.Is(err, ErrInvalidStart) {
		t.Errorf("Expected ErrInvalidStart, got %v", err)
	}
}

func TestTraverse_Deterministic(t *testing.T) {
	g, start := mustGrid(t, exampleLayout)

	for _, mode := range []Mode{DistinctCells, LoopDetection} {
		first, err := Traverse(g, start, mode)
		if err != nil {
			t.Fatalf("Traverse(%s) failed: %v", mode, err)
		}
		second, err := Traverse(g, start, mode)
		if err != nil {
			t.Fatalf("Traverse(%s) failed: %v", mode, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Expected identical traces for %s", mode)
		}
	}
}

func TestTraverse_ModesAgreeOnExit(t *testing.T) {
	g, start := mustGrid(t, exampleLayout)

	distinct, err := Traverse(g, start, DistinctCells)
	if err != nil {
		t.Fatalf("Traverse failed: %v", err)
	}
	loop, err := Traverse(g, start, LoopDetection)
	if err != nil {
		t.Fatalf("Traverse failed: %v", err)
	}

	if loop.Outcome != Exited {
		t.Fatalf("Expected exit, got %s", loop.Outcome)
	}
	if !reflect.DeepEqual(distinct.Visited, loop.Positions()) {
		t.Error("Expected both modes to cover the same cells")
	}
	if distinct.Final != loop.Final {
		t.Errorf("Expected same final state, got %v and %v", distinct.Final, loop.Final)
	}
}
