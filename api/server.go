// Package api serves headless runs over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"snake-sim/game"
	"snake-sim/game/config"
	"snake-sim/game/controller"
	"snake-sim/game/rng"
	"snake-sim/game/types"
	"snake-sim/scripting"
	"snake-sim/store"
)

// DefaultMaxMoves caps runs whose policy never collides
const DefaultMaxMoves = 10000

// RunRequest starts a headless run. Seed may be a JSON number or a decimal
// string; when absent a seed is drawn. At most one of Script and JS is used,
// JS taking precedence.
type RunRequest struct {
	Seed     json.RawMessage `json:"seed,omitempty"`
	Script   string          `json:"script,omitempty"`
	JS       string          `json:"js,omitempty"`
	MaxMoves int             `json:"max_moves,omitempty"`
}

type Option func(*Server)

// WithStore archives every run and enables the listing endpoints
func WithStore(s *store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

func WithLogger(l *log.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

func WithMaxMoves(n int) Option {
	return func(srv *Server) { srv.maxMoves = n }
}

// Server handles HTTP requests
type Server struct {
	cfg      config.Config
	store    *store.Store
	logger   *log.Logger
	maxMoves int
}

func NewServer(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   log.New(io.Discard),
		maxMoves: DefaultMaxMoves,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes sets up the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseSeed accepts a JSON number or string holding an unsigned 64-bit integer
func parseSeed(raw json.RawMessage) (*uint64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, nil
	}
	if strings.HasPrefix(text, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, err
		}
		text = str
	}
	seed, err := rng.ParseSeed(text)
	if err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	seed, err := parseSeed(req.Seed)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		c      controller.Controller
		script string
	)
	if req.JS != "" {
		js, err := scripting.New(req.JS, scripting.WithLogger(s.logger))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c = js
	} else {
		moves, err := types.ParseScript(req.Script)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c = controller.NewScript(moves)
		script = types.FormatScript(moves)
	}

	maxMoves := s.maxMoves
	if req.MaxMoves > 0 && req.MaxMoves < maxMoves {
		maxMoves = req.MaxMoves
	}

	res, err := game.RunController(r.Context(), s.cfg, seed, c,
		game.WithMaxMoves(maxMoves),
		game.WithLogger(s.logger),
	)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.SaveRun(r.Context(), res, script); err != nil {
			s.logger.Error("failed to archive run", "run_id", res.RunID, "err", err)
			s.writeError(w, http.StatusInternalServerError, "failed to archive run")
			return
		}
	}
	s.logger.Debug("run finished", "run_id", res.RunID, "seed", res.Seed, "score", res.Score, "moves", res.Moves)
	s.writeJSON(w, http.StatusCreated, store.Run{Result: res, Script: script, CreatedAt: time.Now().UTC()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run archive is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var (
		runs []store.Run
		err  error
	)
	if r.URL.Query().Get("order") == "score" {
		runs, err = s.store.TopRuns(r.Context(), limit)
	} else {
		runs, err = s.store.ListRuns(r.Context(), limit)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run archive is disabled")
		return
	}

	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}
