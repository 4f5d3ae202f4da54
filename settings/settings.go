// Package settings loads the server settings file.
//
// Settings are written in HCL. Every attribute and block is optional and
// falls back to the value returned by Default:
//
//	puzzles_dir  = "puzzles"
//	sessions_dir = "sessions"
//	solutions_db = "solutions.db"
//	session_ttl  = "24h"
//
//	server {
//	  host = "localhost"
//	  port = 8080
//	}
//
//	search {
//	  strategy = "path"
//	  workers  = 4
//	}
//
//	ngrok {
//	  enabled = true
//	  domain  = "patrol.ngrok.app"
//	}
package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

// DefaultFile is the settings file read when none is named
const DefaultFile = "guardpatrol.hcl"

var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds the resolved server settings
type Settings struct {
	Host        string
	Port        int
	PuzzlesDir  string
	SessionsDir string
	SolutionsDB string
	SessionTTL  time.Duration
	Strategy    engine.Strategy
	Workers     int
	Ngrok       bool
	NgrokDomain string
}

// hclFile mirrors the on-disk layout
type hclFile struct {
	PuzzlesDir  *string      `hcl:"puzzles_dir,optional"`
	SessionsDir *string      `hcl:"sessions_dir,optional"`
	SolutionsDB *string      `hcl:"solutions_db,optional"`
	SessionTTL  *string      `hcl:"session_ttl,optional"`
	Server      *serverBlock `hcl:"server,block"`
	Search      *searchBlock `hcl:"search,block"`
	Ngrok       *ngrokBlock  `hcl:"ngrok,block"`
}

type serverBlock struct {
	Host *string `hcl:"host,optional"`
	Port *int    `hcl:"port,optional"`
}

type searchBlock struct {
	Strategy *string `hcl:"strategy,optional"`
	Workers  *int    `hcl:"workers,optional"`
}

type ngrokBlock struct {
	Enabled *bool   `hcl:"enabled,optional"`
	Domain  *string `hcl:"domain,optional"`
}

// Default returns the settings used when no file is present
func Default() *Settings {
	return &Settings{
		Host:        "localhost",
		Port:        8080,
		PuzzlesDir:  "puzzles",
		SessionsDir: "sessions",
		SolutionsDB: "solutions.db",
		SessionTTL:  24 * time.Hour,
		Strategy:    engine.StrategyPath,
	}
}

// Load reads the settings file at path. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source on top of the defaults
func Parse(src []byte, filename string) (*Settings, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", filename, diags)
	}

	var raw hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode settings file %s: %w", filename, diags)
	}

	s := Default()
	if err := s.apply(&raw); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) apply(raw *hclFile) error {
	setString(&s.PuzzlesDir, raw.PuzzlesDir)
	setString(&s.SessionsDir, raw.SessionsDir)
	setString(&s.SolutionsDB, raw.SolutionsDB)

	if raw.SessionTTL != nil {
		ttl, err := time.ParseDuration(*raw.SessionTTL)
		if err != nil {
			return fmt.Errorf("%w: session_ttl: %v", ErrInvalidSettings, err)
		}
		s.SessionTTL = ttl
	}

	if raw.Server != nil {
		setString(&s.Host, raw.Server.Host)
		if raw.Server.Port != nil {
			s.Port = *raw.Server.Port
		}
	}

	if raw.Search != nil {
		if raw.Search.Strategy != nil {
			strategy, err := engine.ParseStrategy(*raw.Search.Strategy)
			if err != nil {
				return fmt.Errorf("%w: search.strategy: %w", ErrInvalidSettings, err)
			}
			s.Strategy = strategy
		}
		if raw.Search.Workers != nil {
			s.Workers = *raw.Search.Workers
		}
	}

	if raw.Ngrok != nil {
		if raw.Ngrok.Enabled != nil {
			s.Ngrok = *raw.Ngrok.Enabled
		}
		setString(&s.NgrokDomain, raw.Ngrok.Domain)
	}

	return nil
}

// ApplyEnv overrides settings from environment variables. getenv is usually
// os.Getenv.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if dir := getenv("PUZZLES_DIR"); dir != "" {
		s.PuzzlesDir = dir
	} else if dir := getenv("CONFIG_DIR"); dir != "" {
		s.PuzzlesDir = dir
	}
	if dir := getenv("SESSIONS_DIR"); dir != "" {
		s.SessionsDir = dir
	}
	if db := getenv("SOLUTIONS_DB"); db != "" {
		s.SolutionsDB = db
	}
	if port, err := strconv.Atoi(getenv("PORT")); err == nil && port > 0 {
		s.Port = port
	}
	if enabled := getenv("NGROK_ENABLED"); enabled == "true" || enabled == "1" {
		s.Ngrok = true
	}
	if domain := getenv("NGROK_DOMAIN"); domain != "" {
		s.NgrokDomain = domain
	}
}

// Validate checks the resolved settings
func (s *Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidSettings, s.Port)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidSettings)
	}
	if s.SessionTTL <= 0 {
		return fmt.Errorf("%w: session_ttl must be positive", ErrInvalidSettings)
	}
	if s.PuzzlesDir == "" {
		return fmt.Errorf("%w: puzzles_dir is required", ErrInvalidSettings)
	}
	if s.SessionsDir == "" {
		return fmt.Errorf("%w: sessions_dir is required", ErrInvalidSettings)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
