// Package api serves the JSON API the annotation UI drives.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ajitpratap0/entitext/internal/annotation"
	"github.com/ajitpratap0/entitext/internal/catalog"
	"github.com/ajitpratap0/entitext/internal/schema"
	"github.com/ajitpratap0/entitext/internal/store"
)

// IdentityHeader carries the caller identity used to scope project ownership.
const IdentityHeader = "X-Identity"

// AnonymousIdentity owns projects created without an identity header.
const AnonymousIdentity = "anonymous"

const maxBodyBytes = 1 << 20 // 1 MB

// Server is an HTTP API server exposing catalog and annotation operations.
type Server struct {
	catalog   *catalog.Service
	engine    *annotation.Engine
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(cat *catalog.Service, eng *annotation.Engine, logger *slog.Logger, authToken string) *Server {
	return &Server{
		catalog:   cat,
		engine:    eng,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check and counters, no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /debug/vars", expvar.Handler())

	mux.HandleFunc("GET /api/projects", s.auth(s.handleListProjects))
	mux.HandleFunc("POST /api/projects", s.auth(s.handleCreateProject))
	mux.HandleFunc("GET /api/projects/{project_id}", s.auth(s.handleGetProject))

	mux.HandleFunc("GET /api/projects/{project_id}/entity-types", s.auth(s.handleListEntityTypes))
	mux.HandleFunc("POST /api/projects/{project_id}/entity-types", s.auth(s.handleCreateEntityType))
	mux.HandleFunc("GET /api/entity-types/{id}", s.auth(s.handleGetEntityType))
	mux.HandleFunc("PUT /api/entity-types/{id}", s.auth(s.handleUpdateEntityType))
	mux.HandleFunc("DELETE /api/entity-types/{id}", s.auth(s.handleDeleteEntityType))

	mux.HandleFunc("GET /api/projects/{project_id}/entities", s.auth(s.handleSearchEntities))
	mux.HandleFunc("POST /api/projects/{project_id}/entities", s.auth(s.handleCreateEntity))
	mux.HandleFunc("GET /api/entities/{id}", s.auth(s.handleGetEntity))
	mux.HandleFunc("PUT /api/entities/{id}", s.auth(s.handleUpdateEntity))
	mux.HandleFunc("DELETE /api/entities/{id}", s.auth(s.handleDeleteEntity))

	mux.HandleFunc("POST /api/projects/{project_id}/documents", s.auth(s.handleCreateDocument))
	mux.HandleFunc("GET /api/documents/{id}", s.auth(s.handleGetDocument))
	mux.HandleFunc("POST /api/documents/{id}/pages", s.auth(s.handleAddPages))
	mux.HandleFunc("GET /api/pages/{id}", s.auth(s.handleGetPage))
	mux.HandleFunc("PUT /api/pages/{id}/text", s.auth(s.handlePageText))

	mux.HandleFunc("GET /api/pages/{id}/annotations", s.auth(s.handleListAnnotations))
	mux.HandleFunc("POST /api/pages/{id}/annotations", s.auth(s.handleCreateAnnotation))
	mux.HandleFunc("DELETE /api/annotations/{id}", s.auth(s.handleDeleteAnnotation))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// identity returns the caller identity, treated as an opaque owner token.
func identity(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(IdentityHeader)); id != "" {
		return id
	}
	return AnonymousIdentity
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

// decodeBody decodes a size-limited JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// validationResponse reports every failing metadata field.
type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// writeServiceError maps a catalog, annotation or store error to a status
// code. op names the failed operation in logs and 500 responses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, op string) {
	var fieldErrs schema.FieldErrors
	var defErr *schema.DefinitionError
	switch {
	case errors.Is(err, catalog.ErrCorruptSchema):
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &fieldErrs):
		s.writeJSON(w, http.StatusBadRequest, validationResponse{Error: "metadata validation failed", Fields: fieldErrs.Map()})
	case errors.As(err, &defErr),
		errors.Is(err, catalog.ErrInvalid),
		errors.Is(err, annotation.ErrOffset),
		errors.Is(err, annotation.ErrEmptySpan):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrProtected),
		errors.Is(err, store.ErrStaleSnapshot):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, op)
	}
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
