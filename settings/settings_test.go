package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

func TestDefault(t *testing.T) {
	s := Default()
	if s.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", s.Port)
	}
	if s.PuzzlesDir != "puzzles" || s.SessionsDir != "sessions" {
		t.Errorf("Unexpected directories %q %q", s.PuzzlesDir, s.SessionsDir)
	}
	if s.Strategy != engine.StrategyPath {
		t.Errorf("Expected path strategy, got %s", s.Strategy)
	}
	if s.SessionTTL != 24*time.Hour {
		t.Errorf("Expected 24h TTL, got %v", s.SessionTTL)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestParse(t *testing.T) {
	src := `
puzzles_dir  = "data/puzzles"
solutions_db = ":memory:"
session_ttl  = "90m"

server {
  host = "0.0.0.0"
  port = 9090
}

search {
  strategy = "exhaustive"
  workers  = 3
}

ngrok {
  enabled = true
  domain  = "patrol.example.com"
}
`
	s, err := Parse([]byte(src), "test.hcl")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if s.PuzzlesDir != "data/puzzles" {
		t.Errorf("Expected data/puzzles, got %s", s.PuzzlesDir)
	}
	if s.SessionsDir != "sessions" {
		t.Errorf("Expected default sessions dir, got %s", s.SessionsDir)
	}
	if s.SolutionsDB != ":memory:" {
		t.Errorf("Expected :memory:, got %s", s.SolutionsDB)
	}
	if s.SessionTTL != 90*time.Minute {
		t.Errorf("Expected 90m, got %v", s.SessionTTL)
	}
	if s.Addr() != "0.0.0.0:9090" {
		t.Errorf("Expected 0.0.0.0:9090, got %s", s.Addr())
	}
	if s.Strategy != engine.StrategyExhaustive || s.Workers != 3 {
		t.Errorf("Expected exhaustive/3, got %s/%d", s.Strategy, s.Workers)
	}
	if !s.Ngrok || s.NgrokDomain != "patrol.example.com" {
		t.Errorf("Expected ngrok enabled with domain, got %v %q", s.Ngrok, s.NgrokDomain)
	}
}

func TestParse_PartialBlocks(t *testing.T) {
	s, err := Parse([]byte("server {\n  port = 7000\n}\n"), "partial.hcl")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if s.Port != 7000 || s.Host != "localhost" {
		t.Errorf("Expected localhost:7000, got %s", s.Addr())
	}
	if s.Strategy != engine.StrategyPath {
		t.Errorf("Expected default strategy, got %s", s.Strategy)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		invalid bool
	}{
		{"syntax error", `server {`, false},
		{"unknown attribute", `colour = "blue"`, false},
		{"wrong type", `server { port = "high" }`, false},
		{"bad duration", `session_ttl = "soon"`, true},
		{"negative ttl", `session_ttl = "-1h"`, true},
		{"unknown strategy", "search {\n  strategy = \"random\"\n}", true},
		{"negative workers", "search {\n  workers = -2\n}", true},
		{"port out of range", "server {\n  port = 70000\n}", true},
		{"empty puzzles dir", `puzzles_dir = ""`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl")
			if err == nil {
				t.Fatal("Expected error")
			}
			if tt.invalid && !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		s, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if s.Port != Default().Port {
			t.Errorf("Expected default port, got %d", s.Port)
		}
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultFile)
		if err := os.WriteFile(path, []byte(`sessions_dir = "/tmp/patrols"`), 0644); err != nil {
			t.Fatalf("Failed to write settings: %v", err)
		}
		s, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if s.SessionsDir != "/tmp/patrols" {
			t.Errorf("Expected /tmp/patrols, got %s", s.SessionsDir)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CONFIG_DIR":    "legacy",
		"SESSIONS_DIR":  "state",
		"PORT":          "9000",
		"NGROK_ENABLED": "1",
	}
	s := Default()
	s.ApplyEnv(func(key string) string { return env[key] })

	if s.PuzzlesDir != "legacy" {
		t.Errorf("Expected CONFIG_DIR fallback, got %s", s.PuzzlesDir)
	}
	if s.SessionsDir != "state" || s.Port != 9000 || !s.Ngrok {
		t.Errorf("Unexpected settings %+v", s)
	}

	env["PUZZLES_DIR"] = "preferred"
	env["PORT"] = "not-a-port"
	s = Default()
	s.ApplyEnv(func(key string) string { return env[key] })
	if s.PuzzlesDir != "preferred" {
		t.Errorf("Expected PUZZLES_DIR to win, got %s", s.PuzzlesDir)
	}
	if s.Port != 8080 {
		t.Errorf("Expected invalid PORT to be ignored, got %d", s.Port)
	}
}
