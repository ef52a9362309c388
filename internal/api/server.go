// Package api provides the HTTP API for observing a running colony.
// GET endpoints are public and read-only.
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/engine"
	"github.com/talgya/foobar-colony/internal/persistence"
)

const (
	defaultHistoryLimit = 60
	maxHistoryLimit     = 1000
)

// Server serves colony state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; history endpoints 503 without it
	RunID    uuid.UUID
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	srv *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	historyLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/history", RateLimitMiddleware(historyLimiter, s.handleHistory))
	mux.HandleFunc("/api/v1/runs", RateLimitMiddleware(historyLimiter, s.handleRuns))

	// Admin endpoints (POST, bearer token required).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("API server starting", "addr", addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
		}
	}()
}

// Close stops the listener.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type statusResponse struct {
	RunID    string          `json:"run_id,omitempty"`
	Tick     uint64          `json:"tick"`
	SimTime  string          `json:"sim_time"`
	Speed    float64         `json:"speed"`
	Running  bool            `json:"running"`
	Won      bool            `json:"won"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.Sim.Snapshot()
	resp := statusResponse{
		Tick:     snap.Tick,
		SimTime:  engine.SimTime(snap.Tick, s.Eng.Interval),
		Speed:    s.Eng.Speed(),
		Running:  s.Eng.Running(),
		Won:      s.Sim.Won(),
		Snapshot: snap,
	}
	if s.RunID != uuid.Nil {
		resp.RunID = s.RunID.String()
	}
	writeJSON(w, resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var filter *agents.WorkState
	if q := r.URL.Query().Get("state"); q != "" {
		var st agents.WorkState
		if err := st.UnmarshalText([]byte(q)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = &st
	}

	roster := s.Sim.Colony.Roster.Agents()
	out := make([]agents.Status, 0, len(roster))
	for _, a := range roster {
		st := a.Status()
		if filter != nil && st.State != *filter {
			continue
		}
		out = append(out, st)
	}
	writeJSON(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "journal disabled", http.StatusServiceUnavailable)
		return
	}

	limit, err := parseLimit(r, defaultHistoryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run := s.RunID
	if q := r.URL.Query().Get("run"); q != "" {
		if run, err = uuid.Parse(q); err != nil {
			http.Error(w, "invalid run id", http.StatusBadRequest)
			return
		}
	}

	rows, err := s.DB.History(run, limit)
	if err != nil {
		slog.Error("history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []persistence.SnapshotRow{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "journal disabled", http.StatusServiceUnavailable)
		return
	}
	limit, err := parseLimit(r, 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	runs, err := s.DB.Runs(limit)
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "runs unavailable", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 100 {
		http.Error(w, "speed must be in [0, 100]", http.StatusBadRequest)
		return
	}

	s.Eng.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]float64{"speed": req.Speed})
}

func parseLimit(r *http.Request, def int) (int, error) {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return def, nil
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
