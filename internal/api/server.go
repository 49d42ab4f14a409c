// Package api provides the HTTP control surface for the sentinel worker
// fleet: per-line status, abort_run, and reload_config, plus a human
// dashboard. Grounded on GVCUTV-NRG-CHAMP's services/mape/execute HTTP
// service (gorilla/mux router wrapped in gorilla/handlers.LoggingHandler),
// generalized from the teacher's bare http.ServeMux status page.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
	"github.com/vulcan-sentinel/sentinel-core/internal/status"
)

// LineController is the narrow surface a Server needs from a running
// worker to serve the control-surface operations of spec.md §6.
type LineController interface {
	Status() status.Snapshot
	AbortRun(reason string) error
	ReloadConfig(cfg logic.Config) error
}

// Server serves the status dashboard and control-surface API over HTTP.
type Server struct {
	httpServer *http.Server
	lines      map[string]LineController
}

// New creates a Server fronting the given set of lines, keyed by line id.
func New(addr string, lines map[string]LineController) *Server {
	s := &Server{lines: lines}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleIndexJSON).Methods(http.MethodGet)
	r.HandleFunc("/lines/{line_id}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/lines/{line_id}/abort", s.handleAbort).Methods(http.MethodPost)
	r.HandleFunc("/lines/{line_id}/reload", s.handleReload).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(stdLogWriter{}, r),
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snaps := s.sortedSnapshots()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderDashboard(w, snaps)
}

func (s *Server) handleIndexJSON(w http.ResponseWriter, r *http.Request) {
	snaps := s.sortedSnapshots()
	w.Header().Set("Content-Type", "application/json")
	out := make([]json.RawMessage, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, status.FormatJSON(snap))
	}
	data, _ := json.Marshal(out)
	w.Write(data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["line_id"]
	line, ok := s.lines[lineID]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(line.Status()))
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["line_id"]
	line, ok := s.lines[lineID]
	if !ok {
		http.NotFound(w, r)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := line.AbortRun(body.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["line_id"]
	line, ok := s.lines[lineID]
	if !ok {
		http.NotFound(w, r)
		return
	}

	var cfg logic.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid config body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := line.ReloadConfig(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) sortedSnapshots() []status.Snapshot {
	ids := make([]string, 0, len(s.lines))
	for id := range s.lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snaps := make([]status.Snapshot, 0, len(ids))
	for _, id := range ids {
		snaps = append(snaps, s.lines[id].Status())
	}
	return snaps
}

// stdLogWriter routes gorilla/handlers' access log lines into log/slog at
// info level, matching the ambient structured-logging convention used by
// internal/worker.
type stdLogWriter struct{}

func (stdLogWriter) Write(p []byte) (int, error) {
	accessLogger.Info(string(p))
	return len(p), nil
}
