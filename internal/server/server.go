// Package server exposes the coin engine over HTTP: ledger reads and
// writes, reward calculation, decay preview and manual runs, and rule
// administration.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oakmund/sprout/internal/coinerr"
	"github.com/oakmund/sprout/internal/decay"
	"github.com/oakmund/sprout/internal/reward"
	"github.com/oakmund/sprout/internal/store"
)

// Server is the sprout HTTP API server.
type Server struct {
	db      *store.DB
	calc    *reward.Calculator
	engine  *decay.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server with the given database, calculator, decay
// engine, and version string.
func New(db *store.DB, calc *reward.Calculator, engine *decay.Engine, version string) *Server {
	s := &Server{
		db:      db,
		calc:    calc,
		engine:  engine,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/entries", s.handleAppendEntry)
			r.Get("/balance", s.handleBalance)
			r.Get("/history", s.handleHistory)
			r.Get("/decay/preview", s.handleDecayPreview)
		})

		r.Post("/rewards/calculate", s.handleCalculate)
		r.Post("/rewards/record", s.handleRecord)
		r.Post("/decay/run", s.handleDecayRun)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{ruleID}", s.handleGetRule)
			r.Put("/{ruleID}", s.handleUpdateRule)
			r.Delete("/{ruleID}", s.handleDeleteRule)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps a coin engine error onto its HTTP status. Untyped errors
// become 500s with the message passed through.
func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, coinerr.StatusOf(err), map[string]any{
		"error": err.Error(),
		"code":  coinerr.CodeOf(err),
	})
}
