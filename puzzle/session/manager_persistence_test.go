package session

import (
	"errors"
	"testing"
	"time"
)

func TestManagerWithPersistence(t *testing.T) {
	persistence, puzzleManager := newTestPersistence(t)
	manager := NewManagerWithPersistence(persistence)
	puzzle := puzzleManager.GetDefault()

	t.Run("Create Session Auto-Saves", func(t *testing.T) {
		if _, err := manager.Create("persist1", puzzle); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if !persistence.Exists("persist1") {
			t.Error("Session should be saved on create")
		}
	})

	t.Run("Get Session Loads from Persistence", func(t *testing.T) {
		manager2 := NewManagerWithPersistence(persistence)
		session, err := manager2.Get("persist1")
		if err != nil {
			t.Fatalf("Failed to get persisted session: %v", err)
		}
		if session.ID != "persist1" {
			t.Errorf("Expected ID persist1, got %s", session.ID)
		}
		if manager2.Count() != 1 {
			t.Error("Loaded session should be cached in memory")
		}
	})

	t.Run("Save Method Persists Changes", func(t *testing.T) {
		session, _ := manager.Get("persist1")
		session.Patrol.Advance(7)
		if err := manager.Save("persist1"); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}

		manager3 := NewManagerWithPersistence(persistence)
		loaded, err := manager3.Get("persist1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if loaded.Patrol.State().Steps != 7 {
			t.Errorf("Expected 7 steps after reload, got %d", loaded.Patrol.State().Steps)
		}
	})

	t.Run("Delete Removes from Persistence", func(t *testing.T) {
		manager.Create("persist-delete", puzzle)
		if err := manager.Delete("persist-delete"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if persistence.Exists("persist-delete") {
			t.Error("Session file should be removed")
		}
		if _, err := manager.Get("persist-delete"); !errors.Is(err, ErrSessionNotFound) {
			t.Error("Should not be able to get deleted session")
		}
	})

	t.Run("Load Persisted Sessions on Startup", func(t *testing.T) {
		sessions := []string{"startup1", "startup2", "startup3"}
		for _, id := range sessions {
			if _, err := manager.Create(id, puzzle); err != nil {
				t.Fatalf("Failed to create session %s: %v", id, err)
			}
		}

		manager4 := NewManagerWithPersistence(persistence)
		loaded, err := manager4.LoadPersistedSessions()
		if err != nil {
			t.Fatalf("Failed to load persisted sessions: %v", err)
		}
		if loaded < len(sessions) {
			t.Errorf("Expected at least %d loaded sessions, got %d", len(sessions), loaded)
		}
		again, err := manager4.LoadPersistedSessions()
		if err != nil {
			t.Fatalf("Second load failed: %v", err)
		}
		if again != 0 {
			t.Errorf("Expected sessions already in memory to be skipped, got %d loaded", again)
		}

		for _, id := range sessions {
			session, err := manager4.Get(id)
			if err != nil {
				t.Errorf("Failed to get session %s after loading: %v", id, err)
				continue
			}
			if session.ID != id {
				t.Errorf("Expected ID %s, got %s", id, session.ID)
			}
		}
		if len(manager4.List()) < len(sessions) {
			t.Errorf("Expected at least %d sessions, got %d", len(sessions), len(manager4.List()))
		}
	})

	t.Run("Update Last Accessed Persists", func(t *testing.T) {
		session, err := manager.Get("startup1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		originalTime := session.LastAccessedAt
		time.Sleep(10 * time.Millisecond)

		if err := manager.UpdateLastAccessed("startup1"); err != nil {
			t.Fatalf("Failed to update last accessed: %v", err)
		}

		manager5 := NewManagerWithPersistence(persistence)
		loaded, err := manager5.Get("startup1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		if !loaded.LastAccessedAt.After(originalTime) {
			t.Error("Last accessed time should be updated and persisted")
		}
	})

	t.Run("Save All Sessions Flushes Unsaved Moves", func(t *testing.T) {
		ids := []string{"startup2", "startup3"}
		for i, id := range ids {
			session, err := manager.Get(id)
			if err != nil {
				t.Fatalf("Failed to get session %s: %v", id, err)
			}
			// Advance in memory only; nothing calls Save here
			session.Patrol.Advance(i + 2)
		}

		if err := manager.SaveAllSessions(); err != nil {
			t.Fatalf("SaveAllSessions failed: %v", err)
		}

		reloaded := NewManagerWithPersistence(persistence)
		for i, id := range ids {
			session, err := reloaded.Get(id)
			if err != nil {
				t.Fatalf("Failed to reload session %s: %v", id, err)
			}
			if got := session.Patrol.State().Steps; got != i+2 {
				t.Errorf("Expected %d steps for %s after flush, got %d", i+2, id, got)
			}
		}
	})

	t.Run("Save All Sessions Without Persistence", func(t *testing.T) {
		if err := NewManager().SaveAllSessions(); err != nil {
			t.Errorf("Expected no error without persistence, got %v", err)
		}
	})
}
