// Package api exposes the read-only HTTP interface over the snapshot store.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minvand/companion/internal/metrics"
	"github.com/minvand/companion/internal/snapshot"
)

// Server wires HTTP handlers to the snapshot store. The handlers never
// trigger a scrape or mutate the snapshot; they only read the last completed
// one, so requests never block on an in-flight cycle.
type Server struct {
	router chi.Router
	store  *snapshot.Store
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store *snapshot.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(10 * time.Second))

	r.Get("/state", s.getState)
	r.Get("/state_raw", s.getStateRaw)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// stateResponse is the JSON body of both state endpoints.
type stateResponse struct {
	OK           bool     `json:"ok"`
	Error        *string  `json:"error"`
	ReadingM3    *float64 `json:"reading_m3"`
	ReadAtISO    *string  `json:"read_at_iso"`
	ScrapedAtUTC string   `json:"scraped_at_utc"`
	Raw          *string  `json:"raw"`
}

const readAtLayout = "2006-01-02T15:04:05"

func toStateResponse(snap snapshot.Snapshot) stateResponse {
	resp := stateResponse{
		OK:           snap.OK,
		ScrapedAtUTC: snap.ScrapedAt.UTC().Format(time.RFC3339),
	}
	if snap.Error != "" {
		resp.Error = &snap.Error
	}
	if snap.Reading != nil {
		volume := snap.Reading.Volume
		readAt := snap.Reading.ReadAt.Format(readAtLayout)
		resp.ReadingM3 = &volume
		resp.ReadAtISO = &readAt
	}
	if snap.Raw != "" {
		raw := snap.Raw
		resp.Raw = &raw
	}
	return resp
}

// getState returns the snapshot with the status code carrying the success
// signal: 200 while the latest cycle produced a reading, 503 otherwise.
func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Get()
	status := http.StatusOK
	if !snap.OK {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, toStateResponse(snap))
}

// getStateRaw always returns 200 with the current snapshot, for diagnosis.
func (s *Server) getStateRaw(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, toStateResponse(s.store.Get()))
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The store always holds a snapshot, so the process is ready as soon as
	// it serves.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", duration),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
