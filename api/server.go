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
	"time"

	"github.com/gorilla/mux"
	"github.com/wricardo/mechanism-workbench/transport/websocket"
	"github.com/wricardo/mechanism-workbench/workbench/engine"
	"github.com/wricardo/mechanism-workbench/workbench/service"
)

// Server represents the REST API server
type Server struct {
	service service.WorkbenchService
	hub     *websocket.Hub
	router  *mux.Router
	metrics http.Handler
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer creates a new API server
func NewServer(svc service.WorkbenchService, hub *websocket.Hub, opts ...ServerOption) *Server {
	s := &Server{
		service: svc,
		hub:     hub,
		router:  mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Router exposes the router so callers can mount extra handlers
func (s *Server) Router() *mux.Router {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/state", s.handleGetState).Methods("GET")

	// Components
	api.HandleFunc("/sessions/{id}/components", s.handleListComponents).Methods("GET")
	api.HandleFunc("/sessions/{id}/components", s.handleAddComponent).Methods("POST")
	api.HandleFunc("/sessions/{id}/components/{cid}", s.handleRemoveComponent).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/components/{cid}/move", s.handleMoveComponent).Methods("POST")
	api.HandleFunc("/sessions/{id}/components/{cid}/rotate", s.handleRotateComponent).Methods("POST")

	// Drag gesture
	api.HandleFunc("/sessions/{id}/drag", s.handleBeginDrag).Methods("POST")
	api.HandleFunc("/sessions/{id}/drag", s.handleEndDrag).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/drag/move", s.handleDragTo).Methods("POST")

	// Interaction
	api.HandleFunc("/sessions/{id}/apply", s.simpleCommand("apply", s.service.ApplyInput)).Methods("POST")
	api.HandleFunc("/sessions/{id}/release", s.simpleCommand("release", s.service.ReleaseInput)).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.simpleCommand("reset", s.service.ResetStates)).Methods("POST")
	api.HandleFunc("/sessions/{id}/example", s.simpleCommand("example", s.service.LoadExample)).Methods("POST")
	api.HandleFunc("/sessions/{id}/clear", s.handleClear).Methods("POST")
	api.HandleFunc("/sessions/{id}/analysis", s.handleAnalysis).Methods("POST")

	// Queries
	api.HandleFunc("/sessions/{id}/engagements", s.handleListEngagements).Methods("GET")
	api.HandleFunc("/sessions/{id}/constraints", s.handleListConstraints).Methods("GET")
	api.HandleFunc("/sessions/{id}/metrics", s.handleGetMetrics).Methods("GET")
	api.HandleFunc("/sessions/{id}/report", s.handleGetReport).Methods("GET")

	// Profiles
	api.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")
	api.HandleFunc("/profiles/{name}", s.handleGetProfile).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Operations
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
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

// respondServiceError maps service errors onto HTTP status codes
func respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrProfileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrCommandRejected), errors.Is(err, service.ErrInvalidProfile):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	respondError(w, status, err.Error())
}

func componentID(r *http.Request) (engine.ComponentID, error) {
	n, err := strconv.Atoi(mux.Vars(r)["cid"])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid component id %q", mux.Vars(r)["cid"])
	}
	return engine.ComponentID(n), nil
}

// decodeBody decodes an optional JSON body into v
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("Invalid request body")
	}
	return nil
}

// respondCommand writes a command result and pushes the new state to watchers
func (s *Server) respondCommand(w http.ResponseWriter, sessionID, name string, result *service.CommandResult, err error) {
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastToSession(sessionID, result.State)
	}

	// Compact server log for observability
	status := "OK"
	if !result.Success {
		status = "FAIL"
	}
	log.Printf("[CMD] session=%s cmd=%s %s system=%s msg=%q",
		sessionID, name, status, result.State.SystemState, result.Status.Message)

	respondJSON(w, http.StatusOK, result)
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileID string `json:"profile_id,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.service.CreateSession(r.Context(), req.ProfileID)
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
	sortBy := query.Get("sort") // "created", "accessed" (default)
	order := query.Get("order") // "asc", "desc" (default)
	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.SliceStable(sessions, func(i, j int) bool {
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

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit >= 0 && limit < len(sessions) {
			sessions = sessions[:limit]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
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

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

// Component Handlers

func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	components, err := s.service.ListComponents(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, components)
}

func (s *Server) handleAddComponent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req service.AddComponentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.AddComponent(r.Context(), sessionID, req)
	if err == nil {
		w.Header().Set("Location", fmt.Sprintf("/api/sessions/%s/components/%d", sessionID, result.ComponentID))
	}
	s.respondCommand(w, sessionID, "add_component", result, err)
}

func (s *Server) handleRemoveComponent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	id, err := componentID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.RemoveComponent(r.Context(), sessionID, id)
	s.respondCommand(w, sessionID, "remove_component", result, err)
}

func (s *Server) handleMoveComponent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	id, err := componentID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Animate bool    `json:"animate,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.MoveComponent(r.Context(), sessionID, id, engine.Vec2{X: req.X, Y: req.Y}, req.Animate)
	s.respondCommand(w, sessionID, "move_component", result, err)
}

func (s *Server) handleRotateComponent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	id, err := componentID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Delta *float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == nil {
		respondError(w, http.StatusBadRequest, "delta is required")
		return
	}

	result, err := s.service.RotateComponent(r.Context(), sessionID, id, *req.Delta)
	s.respondCommand(w, sessionID, "rotate_component", result, err)
}

// Drag Handlers

func (s *Server) handleBeginDrag(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		ComponentID engine.ComponentID `json:"component_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ComponentID <= 0 {
		respondError(w, http.StatusBadRequest, "component_id is required")
		return
	}

	result, err := s.service.BeginDrag(r.Context(), sessionID, req.ComponentID)
	s.respondCommand(w, sessionID, "begin_drag", result, err)
}

func (s *Server) handleDragTo(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.DragTo(r.Context(), sessionID, engine.Vec2{X: req.X, Y: req.Y})
	s.respondCommand(w, sessionID, "drag_to", result, err)
}

func (s *Server) handleEndDrag(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	result, err := s.service.EndDrag(r.Context(), sessionID)
	s.respondCommand(w, sessionID, "end_drag", result, err)
}

// Interaction Handlers

func (s *Server) simpleCommand(name string, fn func(ctx context.Context, sessionID string) (*service.CommandResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]
		result, err := fn(r.Context(), sessionID)
		s.respondCommand(w, sessionID, name, result, err)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.ClearAll(r.Context(), sessionID, req.Confirm)
	s.respondCommand(w, sessionID, "clear", result, err)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	result, err := s.service.RunAnalysis(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastToSession(sessionID, result.State)
		s.hub.BroadcastEvent(sessionID, "analysis_complete", result.Failures)
	}
	log.Printf("[ANALYSIS] session=%s failures=%d waited=%s", sessionID, len(result.Failures), result.Waited)

	respondJSON(w, http.StatusOK, result)
}

// Query Handlers

func (s *Server) handleListEngagements(w http.ResponseWriter, r *http.Request) {
	engagements, err := s.service.ListEngagements(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engagements)
}

func (s *Server) handleListConstraints(w http.ResponseWriter, r *http.Request) {
	constraints, err := s.service.ListConstraints(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, constraints)
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.service.GetMetrics(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.GetFailureReport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Profile Handlers

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.service.ListProfiles(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.LoadProfile(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "WebSocket not available", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	state, err := s.service.GetState(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	if err := s.hub.ServeWS(w, r, sessionID); err != nil {
		return
	}

	// Initial state for the new client
	s.hub.BroadcastToSession(sessionID, state)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
