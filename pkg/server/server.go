// Package server exposes the large-object runtime over HTTP. Each client
// transaction maps to a server-side session: begin allocates one, the
// per-session endpoints run handle operations against it, and commit or
// abort ends it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
	"github.com/dd0wney/cluso-lobstore/pkg/logging"
	"github.com/dd0wney/cluso-lobstore/pkg/metrics"
)

// Version reported by /health.
const Version = "1.0.0"

// Options configures a Server beyond its backing store.
type Options struct {
	// Gate authorizes import and export. Nil denies both.
	Gate lob.Authorizer

	// Logger receives request and session logs. Nil means no logging.
	Logger logging.Logger

	// Registry collects metrics and serves /metrics. Nil disables both.
	Registry *metrics.Registry

	// Backend names the configured store in /health output.
	Backend string
}

// Server owns the session table and the HTTP surface over it.
type Server struct {
	store     lob.ObjectStore
	gate      lob.Authorizer
	log       logging.Logger
	registry  *metrics.Registry
	backend   string
	startTime time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// sessionEntry serializes operations on one session. Sessions are
// single-transaction state machines and are not safe for concurrent use.
type sessionEntry struct {
	mu   sync.Mutex
	sess *lob.Session
}

// New creates a server over store.
func New(store lob.ObjectStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		store:     store,
		gate:      opts.Gate,
		log:       logger,
		registry:  opts.Registry,
		backend:   opts.Backend,
		startTime: time.Now(),
		sessions:  make(map[string]*sessionEntry),
	}
}

// Handler returns the full route table wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", s.registry.Handler())
	}

	mux.HandleFunc("POST /v1/sessions", s.handleBeginSession)
	mux.HandleFunc("POST /v1/sessions/{id}/commit", s.endSessionHandler(true))
	mux.HandleFunc("POST /v1/sessions/{id}/abort", s.endSessionHandler(false))

	mux.HandleFunc("POST /v1/sessions/{id}/open", s.handleOpen)
	mux.HandleFunc("POST /v1/sessions/{id}/close", s.handleClose)
	mux.HandleFunc("POST /v1/sessions/{id}/read", s.handleRead)
	mux.HandleFunc("POST /v1/sessions/{id}/write", s.handleWrite)
	mux.HandleFunc("POST /v1/sessions/{id}/seek", s.handleSeek)
	mux.HandleFunc("POST /v1/sessions/{id}/tell", s.handleTell)
	mux.HandleFunc("POST /v1/sessions/{id}/create", s.handleCreate)
	mux.HandleFunc("POST /v1/sessions/{id}/unlink", s.handleUnlink)
	mux.HandleFunc("POST /v1/sessions/{id}/import", s.handleImport)
	mux.HandleFunc("POST /v1/sessions/{id}/export", s.handleExport)

	return s.loggingMiddleware(s.credentialMiddleware(mux))
}

// Shutdown aborts every live session. Clients with in-flight transactions
// lose their handles, matching abort semantics.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()

	var firstErr error
	for id, entry := range sessions {
		entry.mu.Lock()
		err := entry.sess.EndTransaction(ctx, false)
		entry.mu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		s.log.Info("session aborted on shutdown", logging.String("session_id", id))
		if s.registry != nil {
			s.registry.SessionClosed()
		}
	}
	return firstErr
}

// SessionCount reports the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// lookupSession finds the entry for the {id} path segment.
func (s *Server) lookupSession(r *http.Request) (*sessionEntry, string, bool) {
	id := r.PathValue("id")
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	return entry, id, ok
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("encoding response", logging.Err(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// respondLobError maps runtime errors onto HTTP statuses.
func (s *Server) respondLobError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lob.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, lob.ErrInvalidHandle),
		errors.Is(err, lob.ErrHandleOutOfRange),
		errors.Is(err, lob.ErrPathTooLong),
		errors.Is(err, lob.ErrModeNotPermitted):
		status = http.StatusBadRequest
	case errors.Is(err, lob.ErrHandlesExhausted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, lob.ErrBackingStore):
		status = http.StatusNotFound
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// withSession runs fn while holding the session's lock.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(sess *lob.Session)) {
	entry, _, ok := s.lookupSession(r)
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.sess)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  Version,
		Backend:  s.backend,
		Sessions: s.SessionCount(),
		Uptime:   time.Since(s.startTime).String(),
	})
}

func (s *Server) handleBeginSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	opts := lob.SessionOptions{
		Authorizer: s.gate,
		Logger:     s.log.With(logging.String("session_id", id)),
	}
	// Assign only when non-nil: a typed-nil *Registry would slip past the
	// session's interface nil checks.
	if s.registry != nil {
		opts.Metrics = s.registry
	}
	entry := &sessionEntry{sess: lob.NewSession(s.store, opts)}

	s.mu.Lock()
	s.sessions[id] = entry
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.SessionOpened()
	}
	s.log.Info("session started", logging.String("session_id", id))
	s.respondJSON(w, http.StatusCreated, BeginSessionResponse{SessionID: id})
}

// endSessionHandler terminates a session with commit or abort semantics.
// The session is removed from the table either way.
func (s *Server) endSessionHandler(isCommit bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		s.mu.Lock()
		entry, ok := s.sessions[id]
		if ok {
			delete(s.sessions, id)
		}
		s.mu.Unlock()

		if !ok {
			s.respondError(w, http.StatusNotFound, "unknown session")
			return
		}

		entry.mu.Lock()
		err := entry.sess.EndTransaction(r.Context(), isCommit)
		entry.mu.Unlock()

		if s.registry != nil {
			s.registry.SessionClosed()
		}
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
