package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/config"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
)

func newTestPersistence(t *testing.T) (*FilePersistence, *config.Manager) {
	t.Helper()

	puzzleManager, err := config.NewManager("../../puzzles")
	if err != nil {
		t.Fatalf("Failed to create puzzle manager: %v", err)
	}

	persistence, err := NewFilePersistence(t.TempDir(), puzzleManager)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	return persistence, puzzleManager
}

func newTestSession(t *testing.T, id string, puzzle *engine.PuzzleConfig) *service.Session {
	t.Helper()

	patrol, err := engine.NewPatrol(puzzle)
	if err != nil {
		t.Fatalf("Failed to create patrol: %v", err)
	}
	return &service.Session{
		ID:             id,
		Patrol:         patrol,
		Config:         puzzle,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
}

func TestFilePersistence(t *testing.T) {
	persistence, puzzleManager := newTestPersistence(t)
	session := newTestSession(t, "test1", puzzleManager.GetDefault())

	t.Run("Save and Load Session", func(t *testing.T) {
		if err := persistence.Save(session); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		if !persistence.Exists("test1") {
			t.Error("Session file should exist after save")
		}

		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		if loaded.ID != session.ID {
			t.Errorf("Expected ID %s, got %s", session.ID, loaded.ID)
		}
		if loaded.Config.Name != session.Config.Name {
			t.Errorf("Expected puzzle %s, got %s", session.Config.Name, loaded.Config.Name)
		}
		if loaded.Patrol.State().Guard != session.Patrol.Start() {
			t.Error("Expected the guard at its start")
		}
	})

	t.Run("Save State Changes", func(t *testing.T) {
		session.Patrol.Advance(12)
		if err := session.Patrol.PlaceObstacle(engine.Position{Row: 6, Col: 3}); err != nil {
			t.Fatalf("PlaceObstacle failed: %v", err)
		}
		session.Patrol.Advance(20)
		want := session.Patrol.State().Clone()

		if err := persistence.Save(session); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}

		got := loaded.Patrol.State()
		if got.Guard != want.Guard || got.Steps != want.Steps || got.VisitedCount != want.VisitedCount {
			t.Errorf("Patrol state not persisted: want %+v, got %+v", want.Guard, got.Guard)
		}
		if len(got.Obstacles) != 1 || got.Obstacles[0] != (engine.Position{Row: 6, Col: 3}) {
			t.Errorf("Obstacles not persisted: %v", got.Obstacles)
		}

		// Both copies must finish the same way
		if loaded.Patrol.Run() != engine.StatusLooping || session.Patrol.Run() != engine.StatusLooping {
			t.Error("Expected both patrols to loop")
		}
	})

	t.Run("List All Sessions", func(t *testing.T) {
		session2 := newTestSession(t, "test2", puzzleManager.GetDefault())
		if err := persistence.Save(session2); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}

		ids, err := persistence.ListAll()
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		found := map[string]bool{}
		for _, id := range ids {
			found[id] = true
		}
		if !found["test1"] || !found["test2"] {
			t.Errorf("Expected test1 and test2 in %v", ids)
		}
	})

	t.Run("Delete Session", func(t *testing.T) {
		if err := persistence.Delete("test2"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if persistence.Exists("test2") {
			t.Error("Session should not exist after delete")
		}
		if _, err := persistence.Load("test2"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Error Cases", func(t *testing.T) {
		if _, err := persistence.Load("non-existent"); err == nil {
			t.Error("Should get error when loading non-existent session")
		}
		if err := persistence.Delete("non-existent"); err == nil {
			t.Error("Should get error when deleting non-existent session")
		}
		if err := persistence.Save(nil); err == nil {
			t.Error("Should get error when saving nil session")
		}
		if _, err := persistence.Load("../escape"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound for a path, got %v", err)
		}
	})
}

func TestFilePersistenceFileStructure(t *testing.T) {
	persistence, puzzleManager := newTestPersistence(t)
	session := newTestSession(t, "structure", puzzleManager.GetDefault())

	if err := persistence.Save(session); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(persistence.sessionsDir, "structure.json"))
	if err != nil {
		t.Fatalf("Expected session file: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Session file is not valid JSON: %v", err)
	}
	for _, field := range []string{"id", "puzzle_name", "puzzle", "created_at", "last_accessed_at", "patrol_state"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("Session file should contain field %s", field)
		}
	}

	var persisted PersistedSessionData
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("Failed to decode session file: %v", err)
	}
	if persisted.PuzzleName != "example" {
		t.Errorf("Expected puzzle id example, got %s", persisted.PuzzleName)
	}
	if persisted.PatrolState.View != nil {
		t.Error("The rendered view should not be persisted")
	}
}

func TestFilePersistence_LoadsByPuzzleName(t *testing.T) {
	persistence, _ := newTestPersistence(t)

	state := &PersistedSessionData{
		ID:         "legacy",
		PuzzleName: "example",
		CreatedAt:  time.Now(),
	}
	data, _ := json.Marshal(state)
	if err := os.WriteFile(filepath.Join(persistence.sessionsDir, "legacy.json"), data, 0644); err != nil {
		t.Fatalf("Failed to write session file: %v", err)
	}

	loaded, err := persistence.Load("legacy")
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if loaded.Patrol.State().Status != engine.StatusPatrolling {
		t.Error("Expected a fresh patrol when no state was saved")
	}
}
