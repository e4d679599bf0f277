// Package dashboard serves the browser UI: static assets plus a small
// JSON API over the in-view record set.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"arrowtail/internal/ingest"
	"arrowtail/internal/logging"
	"arrowtail/internal/metrics"
	"arrowtail/internal/view"
)

// Status is the /api/status payload.
type Status struct {
	Version       string `json:"version"`
	LiveTail      bool   `json:"live_tail"`
	TrackedFiles  int    `json:"tracked_files"`
	LoadedTables  int    `json:"loaded_tables"`
	Traces        int    `json:"traces"`
	MetricPoints  int    `json:"metric_points"`
	SelectedTrace string `json:"selected_trace,omitempty"`
}

// Limits is the /api/limits payload.
type Limits struct {
	MaxLoadedTables int `json:"max_loaded_tables"`
	MaxTraces       int `json:"max_traces"`
	MaxGraphPoints  int `json:"max_graph_points"`
}

// Info supplies the daemon-level fields of the status payload.
type Info struct {
	Version      string
	LiveTail     bool
	TrackedFiles int
}

// Server is the dashboard HTTP server.
type Server struct {
	view      *view.View
	index     *ingest.TableIndex
	staticDir string
	info      func() Info
	limits    func() Limits
	log       *logging.Logger

	srv *http.Server
}

// New creates a dashboard server. staticDir may be empty to serve the API
// only; info and limits may be nil.
func New(v *view.View, index *ingest.TableIndex, staticDir string, info func() Info, limits func() Limits, log *logging.Logger) *Server {
	if info == nil {
		info = func() Info { return Info{} }
	}
	if limits == nil {
		limits = func() Limits { return Limits{} }
	}
	if log == nil {
		log = logging.Default()
	}
	return &Server{
		view:      v,
		index:     index,
		staticDir: staticDir,
		info:      info,
		limits:    limits,
		log:       log.WithComponent("dashboard"),
	}
}

// Handler returns the full dashboard handler, API and static assets.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/traces", s.handleTraces)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/tables", s.handleTables)
	mux.HandleFunc("/api/select", s.handleSelect)
	mux.HandleFunc("/api/limits", s.handleLimits)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", s.handleStatic)
	return metrics.Middleware(mux)
}

// Start begins serving on listen. It returns once the listener is bound;
// serving continues in the background until Shutdown.
func (s *Server) Start(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("dashboard server failed", "error", err)
		}
	}()

	s.log.Info("dashboard listening", "address", ln.Addr().String())
	return nil
}

// Shutdown stops the server, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info := s.info()
	writeJSON(w, Status{
		Version:       info.Version,
		LiveTail:      info.LiveTail,
		TrackedFiles:  info.TrackedFiles,
		LoadedTables:  s.index.Len(),
		Traces:        s.view.TraceCount(),
		MetricPoints:  s.view.PointCount(),
		SelectedTrace: s.view.Selected(),
	})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	traces, _ := s.view.Snapshot()
	if traces == nil {
		traces = []view.TraceRow{}
	}
	writeJSON(w, map[string]any{"traces": traces})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, points := s.view.Snapshot()
	if points == nil {
		points = []view.MetricPoint{}
	}
	writeJSON(w, map[string]any{"points": points})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"tables": s.index.Entries()})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			TraceID string `json:"trace_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.TraceID == "" {
			s.view.ClearSelection()
		} else {
			s.view.Select(req.TraceID)
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		s.view.ClearSelection()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.limits())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
