// Package api provides the HTTP API for observing the world.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/gorilla/websocket"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/engine"
	"github.com/talgya/cytophage/internal/persistence"
)

// Server serves the world state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Store    persistence.Store  // Nil = no stats history
	Saver    *persistence.Saver // Nil = snapshot endpoint disabled
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	CORSOrigins  []string
	StateLimiter *RateLimiter // Nil = /state unlimited

	hub         *hub
	upgrader    websocket.Upgrader
	streamConns atomic.Int32
	done        chan struct{}
	httpSrv     *http.Server
}

// NewServer wires a server around a running simulation.
func NewServer(sim *engine.Simulation, eng *engine.Engine) *Server {
	return &Server{
		Sim: sim,
		Eng: eng,
		hub: newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/state", RateLimitMiddleware(s.StateLimiter, s.handleState))
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/clans", s.handleClans)
	mux.HandleFunc("/api/v1/organism/{id}", s.handleOrganism)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown closes stream clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no WORLDSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) ticksPerYear() float64 {
	return s.Sim.Config.Derived.TicksPerYear
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sn := s.Sim.Snapshot()
	status := map[string]any{
		"name":       "Cytophage",
		"world_id":   sn.WorldID,
		"rules":      sn.Rules,
		"tick":       sn.Tick,
		"sim_time":   engine.SimTime(sn.Tick, s.ticksPerYear()),
		"population": sn.Aggregates.Population,
		"clans":      sn.Aggregates.Clans,
		"food":       sn.Aggregates.Food,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sn := s.Sim.Snapshot()
	writeJSON(w, map[string]any{
		"tick":       sn.Tick,
		"sim_time":   engine.SimTime(sn.Tick, s.ticksPerYear()),
		"stats":      sn.Stats,
		"aggregates": sn.Aggregates,
	})
}

func (s *Server) handleClans(w http.ResponseWriter, r *http.Request) {
	clans := s.Sim.Snapshot().Clans
	if clans == nil {
		clans = []engine.ClanView{}
	}
	writeJSON(w, clans)
}

func (s *Server) handleOrganism(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid organism id", http.StatusBadRequest)
		return
	}
	o, ok := s.Sim.Snapshot().Organism(agents.OrganismID(id))
	if !ok {
		http.Error(w, "organism not found", http.StatusNotFound)
		return
	}
	writeJSON(w, o)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		writeJSON(w, s.Sim.RecentEvents(limit))
		return
	}

	// Filter the whole buffer, then keep the newest matches.
	filtered := []engine.Event{}
	for _, e := range s.Sim.RecentEvents(0) {
		if e.Category == category {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	writeJSON(w, filtered)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "store not available", http.StatusServiceUnavailable)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	rows, err := s.Store.StatsHistory(limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		// Return empty rather than fail; nothing may have been sampled yet.
		rows = nil
	}
	if rows == nil {
		rows = []persistence.StatsRow{}
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="stats_history.csv"`)
		if err := gocsv.Marshal(rows, w); err != nil {
			slog.Error("stats history csv failed", "error", err)
		}
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Saver == nil {
		http.Error(w, "store not available", http.StatusServiceUnavailable)
		return
	}
	if s.Saver.Busy() {
		http.Error(w, "save already in progress", http.StatusConflict)
		return
	}

	st := s.Sim.Export()
	if !s.Saver.Request(st, s.Sim.DrainEvents()) {
		http.Error(w, "save already in progress", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{
		"tick":    st.Stats.TickCount,
		"message": "snapshot queued",
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
