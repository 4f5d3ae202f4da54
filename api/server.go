package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
	"github.com/wricardo/mcp-training/guardpatrol/transport/websocket"
)

// maxBodyBytes bounds request bodies; puzzle layouts are the largest payload
const maxBodyBytes = 4 << 20

// Server represents the REST API server
type Server struct {
	service service.PuzzleService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server. hub may be nil.
func NewServer(puzzleService service.PuzzleService, hub *websocket.Hub) *Server {
	s := &Server{
		service: puzzleService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("", s.handleIndex).Methods("GET")

	// Puzzle catalogue
	api.HandleFunc("/puzzles", s.handleListPuzzles).Methods("GET")
	api.HandleFunc("/puzzles", s.handleCreatePuzzle).Methods("POST")
	api.HandleFunc("/puzzles/{name}", s.handleGetPuzzle).Methods("GET")
	api.HandleFunc("/puzzles/{name}/solve", s.handleSolvePuzzle).Methods("POST")

	// Solving
	api.HandleFunc("/solve", s.handleSolve).Methods("POST")
	api.HandleFunc("/solutions", s.handleListSolutions).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Patrol operations
	api.HandleFunc("/sessions/{id}/state", s.handleGetPatrolState).Methods("GET")
	api.HandleFunc("/sessions/{id}/step", s.handleStep).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/obstacles", s.handlePlaceObstacle).Methods("POST")
	api.HandleFunc("/sessions/{id}/obstacles", s.handleClearObstacles).Methods("DELETE")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service and engine errors to status codes
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrPuzzleNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNonTerminating):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, engine.ErrInvalidPuzzle),
		errors.Is(err, engine.ErrInvalidObstacle),
		errors.Is(err, engine.ErrInvalidStart),
		errors.Is(err, engine.ErrMalformedGrid),
		errors.Is(err, engine.ErrMissingAgent),
		errors.Is(err, engine.ErrDuplicateAgent),
		errors.Is(err, engine.ErrUnknownStrategy):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody decodes an optional JSON body. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name": "guard patrol",
		"endpoints": []string{
			"GET /api/puzzles",
			"POST /api/puzzles",
			"GET /api/puzzles/{name}",
			"POST /api/puzzles/{name}/solve",
			"POST /api/solve",
			"GET /api/solutions",
			"POST /api/sessions",
			"GET /api/sessions",
			"GET /api/sessions/{id}",
			"DELETE /api/sessions/{id}",
			"GET /api/sessions/{id}/state",
			"POST /api/sessions/{id}/step",
			"POST /api/sessions/{id}/reset",
			"POST /api/sessions/{id}/obstacles",
			"DELETE /api/sessions/{id}/obstacles",
			"GET /ws?session={id}",
			"GET /ws?puzzle={name}",
		},
	})
}

// Puzzle Handlers

func (s *Server) handleListPuzzles(w http.ResponseWriter, r *http.Request) {
	puzzles, err := s.service.ListPuzzles(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if puzzles == nil {
		puzzles = []*service.PuzzleInfo{}
	}

	respondJSON(w, http.StatusOK, puzzles)
}

func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	config, err := s.service.LoadPuzzle(r.Context(), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, config)
}

func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		engine.PuzzleConfig
		ID string `json:"id,omitempty"`
	}

	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Puzzle name is required")
		return
	}

	id := req.ID
	if id == "" {
		id = req.Name
	}

	config := req.PuzzleConfig
	if err := s.service.SavePuzzle(r.Context(), id, &config); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Puzzle saved successfully",
		"puzzle_id": id,
	})
}

// Solve Handlers

type solveRequest struct {
	Puzzle   string   `json:"puzzle,omitempty"`
	Layout   []string `json:"layout,omitempty"`
	Grid     string   `json:"grid,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
	Workers  int      `json:"workers,omitempty"`
}

func (s *Server) handleSolvePuzzle(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Puzzle = mux.Vars(r)["name"]
	req.Layout = nil
	req.Grid = ""

	s.solve(w, r, req)
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.solve(w, r, req)
}

func (s *Server) solve(w http.ResponseWriter, r *http.Request, req solveRequest) {
	layout := req.Layout
	if len(layout) == 0 && req.Grid != "" {
		layout = splitGrid(req.Grid)
	}

	topic := req.Puzzle
	switch {
	case len(layout) > 0:
		topic = "inline"
	case topic == "":
		topic = "default"
	}

	opts := service.SolveOptions{
		Strategy: req.Strategy,
		Workers:  req.Workers,
	}
	if s.hub != nil {
		opts.Progress = func(done, total int) {
			s.hub.BroadcastProgress(topic, done, total)
		}
	}

	var (
		result *service.SolveResult
		err    error
	)
	if len(layout) > 0 {
		result, err = s.service.SolveLayout(r.Context(), layout, opts)
	} else {
		result, err = s.service.Solve(r.Context(), req.Puzzle, opts)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(websocket.SolveTopic(topic), websocket.EventSolved, result)
	}

	sol := result.Solution
	fmt.Printf("[SOLVE] puzzle=%s part1=%d part2=%d strategy=%s candidates=%d elapsed=%s\n",
		result.PuzzleName, sol.PartOne, sol.PartTwo, sol.Search.Strategy, sol.Search.Candidates, sol.ElapsedHuman)

	respondJSON(w, http.StatusOK, result)
}

// splitGrid splits raw puzzle text into layout rows
func splitGrid(raw string) []string {
	text := strings.TrimRight(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func (s *Server) handleListSolutions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = l
	}

	records, err := s.service.ListSolutions(r.Context(), query.Get("puzzle"), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(records),
		"solutions": records,
	})
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PuzzleID string `json:"puzzle_id,omitempty"`
	}

	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.service.CreateSession(r.Context(), req.PuzzleID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default)
	limitStr := query.Get("limit") // number of sessions to return
	puzzle := query.Get("puzzle")  // only sessions for this puzzle

	if sortBy != "created" {
		sortBy = "accessed"
	}
	if order != "asc" {
		order = "desc"
	}

	if puzzle != "" {
		filtered := sessions[:0]
		for _, session := range sessions {
			if session.PuzzleName == puzzle {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}
	total := len(sessions)

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}
	if sessions == nil {
		sessions = []*service.SessionInfo{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(sessionID, websocket.EventSessionDeleted, sessionID)
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Patrol Handlers

func (s *Server) handleGetPatrolState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.GetPatrolState(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	req := struct {
		Steps int  `json:"steps"`
		Reset bool `json:"reset,omitempty"`
	}{Steps: 1}

	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.Step(r.Context(), sessionID, req.Steps, req.Reset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, result.PatrolState)

	st := result.PatrolState
	fmt.Printf("[STEP] session=%s taken=%d/%d guard=%s status=%s visited=%d\n",
		sessionID, result.StepsTaken, result.Requested, st.Guard, st.Status, st.VisitedCount)

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.Reset(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Patrol reset successfully",
		"state":   state,
	})
}

func (s *Server) handlePlaceObstacle(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Row *int `json:"row"`
		Col *int `json:"col"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Row == nil || req.Col == nil {
		respondError(w, http.StatusBadRequest, "row and col are required")
		return
	}

	pos := engine.Position{Row: *req.Row, Col: *req.Col}
	state, err := s.service.PlaceObstacle(r.Context(), sessionID, pos)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)
	log.Printf("[OBSTACLE] session=%s placed at %s", sessionID, pos)

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleClearObstacles(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.ClearObstacles(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) broadcast(sessionID string, state *engine.PatrolState) {
	if s.hub != nil {
		s.hub.BroadcastToSession(sessionID, state)
	}
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "WebSocket updates are disabled", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	if puzzle := query.Get("puzzle"); puzzle != "" {
		s.hub.ServeWS(w, r, websocket.SolveTopic(puzzle))
		return
	}

	sessionID := query.Get("session")
	if sessionID == "" {
		http.Error(w, "session or puzzle parameter required", http.StatusBadRequest)
		return
	}

	if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, sessionID)
}
