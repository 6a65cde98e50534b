// Package api exposes session data over HTTP as JSON, plus an HTML report
// endpoint for quick inspection without a frontend.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/roadmetrics/countline/internal/httputil"
	"github.com/roadmetrics/countline/internal/monitoring"
	"github.com/roadmetrics/countline/internal/report"
	"github.com/roadmetrics/countline/internal/session"
	"github.com/roadmetrics/countline/internal/store"
	"github.com/roadmetrics/countline/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server serves stored session data and, when a session is live, its
// in-memory state.
type Server struct {
	db     *store.DB
	runner *session.Runner
}

// NewServer creates a server. runner may be nil when no session is running;
// the live endpoint then reports 503.
func NewServer(db *store.DB, runner *session.Runner) *Server {
	return &Server{
		db:     db,
		runner: runner,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/live", s.showLive)
	mux.HandleFunc("/api/report", s.showReport)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// sessionParam resolves the session query parameter, defaulting to the most
// recent session when absent.
func (s *Server) sessionParam(r *http.Request) (string, error) {
	if id := r.URL.Query().Get("session"); id != "" {
		return id, nil
	}
	sessions, err := s.db.ListSessions(1)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("no sessions recorded")
	}
	return sessions[0].ID, nil
}

// limitParam parses the limit query parameter, falling back to def.
func limitParam(r *http.Request, def int) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 1 {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	return parsed, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := limitParam(r, 50)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	sessions, err := s.db.ListSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}

	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	sessionID, err := s.sessionParam(r)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	limit, err := limitParam(r, 100)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	events, err := s.db.RecentEvents(sessionID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []*store.StoredEvent{}
	}

	httputil.WriteJSONOK(w, events)
}

// summaryResponse aggregates a session's stored counts.
type summaryResponse struct {
	Session    *store.Session            `json:"session"`
	ByClass    map[string]int            `json:"by_class"`
	ByBoundary map[string]map[string]int `json:"by_boundary"`
	Hourly     []store.HourlyCount       `json:"hourly"`
	Daily      []store.DailySummary      `json:"daily"`
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	sessionID, err := s.sessionParam(r)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	sess, err := s.db.GetSession(sessionID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("Unknown session: %v", err))
		return
	}

	resp := summaryResponse{
		Session:    sess,
		ByClass:    map[string]int{},
		ByBoundary: map[string]map[string]int{},
	}

	classes, err := s.db.ClassTotals(sessionID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve class totals: %v", err))
		return
	}
	for class, n := range classes {
		resp.ByClass[string(class)] = n
	}

	boundaries, err := s.db.BoundaryTotals(sessionID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve boundary totals: %v", err))
		return
	}
	for id, byDir := range boundaries {
		m := map[string]int{}
		for dir, n := range byDir {
			m[string(dir)] = n
		}
		resp.ByBoundary[id] = m
	}

	if resp.Hourly, err = s.db.HourlyCounts(sessionID); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve hourly counts: %v", err))
		return
	}
	if resp.Daily, err = s.db.DailySummaries(sessionID); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve daily summaries: %v", err))
		return
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if s.runner == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "No active session")
		return
	}

	httputil.WriteJSONOK(w, s.runner.Snapshot())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	sessionID, err := s.sessionParam(r)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	sess, err := s.db.GetSession(sessionID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("Unknown session: %v", err))
		return
	}

	hourly, err := s.db.HourlyCounts(sessionID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve hourly counts: %v", err))
		return
	}

	title := sess.Name
	if title == "" {
		title = sess.ID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderHourly(w, title, hourly); err != nil {
		monitoring.Logf("api: failed to render report for %s: %v", sessionID, err)
	}
}
