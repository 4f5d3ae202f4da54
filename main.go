// Command guardpatrol starts the Guard Patrol puzzle server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Settings come from an HCL file (guardpatrol.hcl by default), then the
// environment, then any flags given on the command line. Flags also control
// debug logging, version output, and optional ngrok tunneling.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/guardpatrol/api"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/config"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/session"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/store"
	"github.com/wricardo/mcp-training/guardpatrol/settings"
	"github.com/wricardo/mcp-training/guardpatrol/transport/mcp"
	"github.com/wricardo/mcp-training/guardpatrol/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Guard Patrol Server"
)

const (
	cleanupInterval = 1 * time.Hour
	syncInterval    = 5 * time.Second
)

// options holds the command line flags. Flags that are not given leave the
// settings file and environment values in place.
type options struct {
	settingsFile *string
	port         *int
	host         *string
	puzzlesDir   *string
	sessionsDir  *string
	solutionsDB  *string
	strategy     *string
	workers      *int
	debug        *bool
	version      *bool
	ngrokEnabled *bool
	ngrokAuth    *string
	ngrokDomain  *string
}

func registerFlags(fs *flag.FlagSet) *options {
	return &options{
		settingsFile: fs.String("settings", settings.DefaultFile, "HCL settings file"),
		port:         fs.Int("port", 8080, "HTTP server port"),
		host:         fs.String("host", "localhost", "HTTP server host"),
		puzzlesDir:   fs.String("puzzles-dir", "puzzles", "Directory containing puzzle files"),
		sessionsDir:  fs.String("sessions-dir", "sessions", "Directory for persisted sessions"),
		solutionsDB:  fs.String("solutions-db", "solutions.db", "SQLite database recording solver runs"),
		strategy:     fs.String("strategy", string(engine.StrategyPath), "Default obstruction search strategy (path or exhaustive)"),
		workers:      fs.Int("workers", 0, "Default search workers (0 = GOMAXPROCS)"),
		debug:        fs.Bool("debug", false, "Enable debug logging"),
		version:      fs.Bool("version", false, "Show version information"),
		ngrokEnabled: fs.Bool("ngrok", false, "Enable ngrok tunnel"),
		ngrokAuth:    fs.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)"),
		ngrokDomain:  fs.String("ngrok-domain", "", "Custom ngrok domain (optional)"),
	}
}

// resolveSettings loads the settings file, applies the environment and then
// every flag that was set explicitly on fs
func (o *options) resolveSettings(fs *flag.FlagSet, getenv func(string) string) (*settings.Settings, error) {
	s, err := settings.Load(*o.settingsFile)
	if err != nil {
		return nil, err
	}
	s.ApplyEnv(getenv)

	var strategyErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			s.Port = *o.port
		case "host":
			s.Host = *o.host
		case "puzzles-dir":
			s.PuzzlesDir = *o.puzzlesDir
		case "sessions-dir":
			s.SessionsDir = *o.sessionsDir
		case "solutions-db":
			s.SolutionsDB = *o.solutionsDB
		case "strategy":
			s.Strategy, strategyErr = engine.ParseStrategy(*o.strategy)
		case "workers":
			s.Workers = *o.workers
		case "ngrok":
			s.Ngrok = *o.ngrokEnabled
		case "ngrok-domain":
			s.NgrokDomain = *o.ngrokDomain
		}
	})
	if strategyErr != nil {
		return nil, fmt.Errorf("%w: %w", settings.ErrInvalidSettings, strategyErr)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ngrokAuthToken returns the auth token from the flag or the environment
func (o *options) ngrokAuthToken(getenv func(string) string) string {
	if *o.ngrokAuth != "" {
		return *o.ngrokAuth
	}
	if token := getenv("NGROK_AUTHTOKEN"); token != "" {
		return token
	}
	return getenv("NGROK_AUTH_TOKEN")
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [OPTIONS] [MODE]\n\n", os.Args[0])
		fmt.Fprintf(out, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(out, "Available modes:\n")
		fmt.Fprintf(out, "  server, http     Run HTTP server with API, WebSocket, and MCP endpoint (default)\n")
		fmt.Fprintf(out, "  stdio-mcp        Run MCP stdio server with internal HTTP server\n")
		fmt.Fprintf(out, "  mcp-stdio        Alias for stdio-mcp\n")
		fmt.Fprintf(out, "  mcp              Alias for stdio-mcp\n")
		fmt.Fprintf(out, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  %s                         # Run HTTP server using guardpatrol.hcl or defaults\n", os.Args[0])
		fmt.Fprintf(out, "  %s -port 9090              # Run HTTP server on port 9090\n", os.Args[0])
		fmt.Fprintf(out, "  %s -settings prod.hcl      # Use another settings file\n", os.Args[0])
		fmt.Fprintf(out, "  %s stdio-mcp               # Run MCP stdio server\n", os.Args[0])
	}
}

// main parses flags, initializes services, and starts the selected mode.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	opts := registerFlags(flag.CommandLine)
	flag.Usage = usage(flag.CommandLine)
	flag.Parse()

	if *opts.version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	if *opts.debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	cfg, err := opts.resolveSettings(flag.CommandLine, os.Getenv)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	mode := "server"
	if args := flag.Args(); len(args) > 0 {
		mode = args[0]
	}

	log.Printf("Starting %s v%s (mode: %s)", AppName, Version, mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	puzzleService, shutdown, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer shutdown()

	switch mode {
	case "stdio-mcp", "mcp-stdio", "mcp":
		runStdioMCPWithInternalServer(puzzleService, cfg)
	case "server", "http":
		runHTTPServer(ctx, puzzleService, cfg, opts.ngrokAuthToken(os.Getenv), shutdown)
	default:
		log.Printf("Unknown mode: %s. Use 'server' (default) or 'stdio-mcp'", mode)
		shutdown()
		os.Exit(1)
	}
}

// newMainRouter mounts the API server at the root and the MCP message
// endpoint at /mcp
func newMainRouter(apiServer http.Handler, mcpClient *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled it also provisions a public tunnel.
// drained runs after the server stops accepting requests so no step lands
// after sessions are flushed.
func runHTTPServer(ctx context.Context, puzzleService service.PuzzleService, cfg *settings.Settings, ngrokAuth string, drained func()) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	apiServer := api.NewServer(puzzleService, hub)

	addr := cfg.Addr()
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	mainRouter := newMainRouter(apiServer, mcpClient)

	// Exhaustive searches on large grids need a long write timeout
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?session=<session_id> or ?puzzle=<puzzle_id>", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	if cfg.Ngrok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, mainRouter, cfg.NgrokDomain, ngrokAuth)
		}()
	}

	sig := <-stop
	log.Printf("Received signal: %v. Shutting down...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	drained()

	wg.Wait()
	log.Println("Server stopped")
}

// runNgrokTunnel serves handler through an ngrok tunnel until ctx is done
func runNgrokTunnel(ctx context.Context, handler http.Handler, domain, authToken string) {
	if authToken == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Printf("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("🚀 Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// initializeServices wires the puzzle catalogue, session manager, solution
// store and puzzle service. It starts background routines that prune stale
// sessions until ctx is done. The returned func closes the solution store.
func initializeServices(ctx context.Context, cfg *settings.Settings) (service.PuzzleService, func(), error) {
	puzzleManager, err := config.NewManager(cfg.PuzzlesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create puzzle manager: %w", err)
	}

	persistence, err := session.NewFilePersistence(cfg.SessionsDir, puzzleManager)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessionManager := session.NewManagerWithPersistence(persistence)
	if loaded, err := sessionManager.LoadPersistedSessions(); err != nil {
		log.Printf("Warning: Failed to load persisted sessions: %v", err)
	} else if loaded > 0 {
		log.Printf("Loaded %d persisted sessions from %s", loaded, cfg.SessionsDir)
	}

	solutions, err := openSolutionStore(ctx, cfg.SolutionsDB)
	if err != nil {
		return nil, nil, err
	}

	puzzleService := service.NewPuzzleService(sessionManager, puzzleManager, solutions,
		service.WithSearchDefaults(cfg.Strategy, cfg.Workers))

	go sessionCleanupRoutine(ctx, sessionManager, cfg.SessionTTL, cleanupInterval)
	go filesystemSyncRoutine(ctx, sessionManager, persistence, syncInterval)

	return puzzleService, shutdownServices(sessionManager, solutions), nil
}

// shutdownServices returns an idempotent func that flushes every live
// session to disk and then closes the solution store. main defers it, so it
// runs once the HTTP server has drained or the stdio loop has ended.
func shutdownServices(sessions *session.Manager, solutions io.Closer) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sessions.SaveAllSessions(); err != nil {
				log.Printf("Warning: Failed to flush sessions: %v", err)
			} else {
				log.Printf("Flushed %d sessions to disk", sessions.Count())
			}
			if err := solutions.Close(); err != nil {
				log.Printf("Warning: Failed to close solution store: %v", err)
			}
		})
	}
}

// openSolutionStore opens and initialises the SQLite solution history
func openSolutionStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create solutions directory: %w", err)
		}
	}

	solutions, err := store.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open solution store: %w", err)
	}
	if err := solutions.Init(ctx); err != nil {
		solutions.Close()
		return nil, fmt.Errorf("failed to initialise solution store: %w", err)
	}
	return solutions, nil
}

// sessionCleanupRoutine periodically removes sessions that have not been accessed
// within ttl.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(ttl); removed > 0 {
				log.Printf("Cleaned up %d expired sessions, %d still active", removed, manager.Count())
			}
		}
	}
}

// filesystemSyncRoutine periodically removes sessions from memory whose
// files have been deleted.
func filesystemSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, interval time.Duration) {
	if persistence == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := syncSessionsWithDisk(manager, persistence); pruned > 0 {
				log.Printf("Filesystem sync: pruned %d orphaned sessions from memory", pruned)
			}
		}
	}
}

// syncSessionsWithDisk drops in-memory sessions that no longer have a file
// and returns how many were dropped
func syncSessionsWithDisk(manager *session.Manager, persistence session.SessionPersistence) int {
	pruned := 0
	for _, sess := range manager.List() {
		if persistence.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			log.Printf("Pruned session %s from memory (file deleted)", sess.ID)
		}
	}
	return pruned
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It tries to reuse an external API at the configured address; if unavailable,
// it starts a minimal internal HTTP API bound to a random loopback port and targets that.
func runStdioMCPWithInternalServer(puzzleService service.PuzzleService, cfg *settings.Settings) {
	externalURL := fmt.Sprintf("http://%s", cfg.Addr())
	log.Printf("Checking for external API server at %s...", externalURL)

	baseURL := externalURL
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/api")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Printf("External API server found at %s, using it for MCP", externalURL)
	} else {
		if resp != nil {
			resp.Body.Close()
		}
		log.Printf("No external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			log.Fatalf("Failed to get available port: %v", err)
		}
		internalAddr := listener.Addr().String()
		log.Printf("Starting internal HTTP server on %s for MCP stdio", internalAddr)

		hub := websocket.NewHub()
		go hub.Run()
		defer hub.Stop()

		httpServer := &http.Server{Handler: api.NewServer(puzzleService, hub)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", internalAddr)
	}

	mcpClient := mcp.NewClient(baseURL)

	if baseURL == externalURL {
		log.Println("MCP stdio server ready (using external HTTP server)")
	} else {
		log.Println("MCP stdio server ready (using internal HTTP server)")
	}

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		log.Printf("MCP stdio server error: %v", err)
	}
}
