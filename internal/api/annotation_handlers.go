package api

import (
	"net/http"

	"github.com/ajitpratap0/entitext/internal/models"
)

// createAnnotationRequest is the body accepted by POST /api/pages/{id}/annotations.
type createAnnotationRequest struct {
	EntityID    string `json:"entity_id"`
	StartOffset *int   `json:"start_offset"`
	EndOffset   *int   `json:"end_offset"`
}

// pageTextRequest is the body accepted by PUT /api/pages/{id}/text.
type pageTextRequest struct {
	Text *string `json:"text"`
}

func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.ListForPage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to list annotations")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]models.AnnotationRecord{"annotations": recs})
}

func (s *Server) handleCreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req createAnnotationRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.EntityID == "" || req.StartOffset == nil || req.EndOffset == nil {
		s.writeError(w, http.StatusBadRequest, "entity_id, start_offset, and end_offset are required.")
		return
	}
	rec, err := s.engine.Create(r.Context(), r.PathValue("id"), req.EntityID, *req.StartOffset, *req.EndOffset)
	if err != nil {
		s.writeServiceError(w, err, "failed to create annotation")
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err, "failed to delete annotation")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handlePageText(w http.ResponseWriter, r *http.Request) {
	var req pageTextRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Text == nil {
		s.writeError(w, http.StatusBadRequest, "'text' is required.")
		return
	}
	res, err := s.engine.ApplyPageEdit(r.Context(), r.PathValue("id"), *req.Text)
	if err != nil {
		s.writeServiceError(w, err, "failed to save page text")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
