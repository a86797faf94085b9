package api

import (
	"encoding/json"
	"net/http"

	"github.com/ajitpratap0/entitext/internal/catalog"
	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
)

// --- projects ---

type projectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.catalog.ListProjects(r.Context(), identity(r))
	if err != nil {
		s.writeServiceError(w, err, "failed to list projects")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]models.Project{"projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	p, err := s.catalog.CreateProject(r.Context(), identity(r), req.Title, req.Description)
	if err != nil {
		s.writeServiceError(w, err, "failed to create project")
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProject(r.Context(), r.PathValue("project_id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get project")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// --- entity types ---

// entityTypeRequest is the body accepted when creating or updating an entity
// type. Absent fields are left unchanged on update.
type entityTypeRequest struct {
	Name        *string         `json:"name"`
	Color       *string         `json:"color"`
	Description *string         `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	IsActive    *bool           `json:"is_active"`
}

func (req entityTypeRequest) input() (catalog.EntityTypeInput, error) {
	in := catalog.EntityTypeInput{
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
		IsActive:    req.IsActive,
	}
	if len(req.Schema) > 0 {
		sch, err := schema.Parse(req.Schema)
		if err != nil {
			return in, err
		}
		in.Schema = sch
	}
	return in, nil
}

func (s *Server) handleListEntityTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.catalog.ListEntityTypes(r.Context(), r.PathValue("project_id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to list entity types")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]models.EntityTypeSummary{"entity_types": types})
}

func (s *Server) handleCreateEntityType(w http.ResponseWriter, r *http.Request) {
	var req entityTypeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	in, err := req.input()
	if err != nil {
		s.writeServiceError(w, err, "failed to create entity type")
		return
	}
	et, err := s.catalog.CreateEntityType(r.Context(), r.PathValue("project_id"), in)
	if err != nil {
		s.writeServiceError(w, err, "failed to create entity type")
		return
	}
	s.writeJSON(w, http.StatusCreated, et)
}

func (s *Server) handleGetEntityType(w http.ResponseWriter, r *http.Request) {
	et, err := s.catalog.GetEntityType(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get entity type")
		return
	}
	s.writeJSON(w, http.StatusOK, et)
}

func (s *Server) handleUpdateEntityType(w http.ResponseWriter, r *http.Request) {
	var req entityTypeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	in, err := req.input()
	if err != nil {
		s.writeServiceError(w, err, "failed to update entity type")
		return
	}
	et, err := s.catalog.UpdateEntityType(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, err, "failed to update entity type")
		return
	}
	s.writeJSON(w, http.StatusOK, et)
}

func (s *Server) handleDeleteEntityType(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteEntityType(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err, "failed to delete entity type")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- entities ---

type entityRequest struct {
	EntityTypeID string         `json:"entity_type_id"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entities, err := s.catalog.SearchEntities(r.Context(), r.PathValue("project_id"), q.Get("q"), q.Get("type_id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to search entities")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]models.EntitySummary{"entities": entities})
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.EntityTypeID == "" {
		s.writeError(w, http.StatusBadRequest, "entity_type_id is required.")
		return
	}
	sum, err := s.catalog.CreateEntity(r.Context(), r.PathValue("project_id"), req.EntityTypeID, req.Metadata)
	if err != nil {
		s.writeServiceError(w, err, "failed to create entity")
		return
	}
	s.writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	sum, err := s.catalog.GetEntity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get entity")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	sum, err := s.catalog.UpdateEntity(r.Context(), r.PathValue("id"), req.Metadata)
	if err != nil {
		s.writeServiceError(w, err, "failed to update entity")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteEntity(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err, "failed to delete entity")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- documents and pages ---

type documentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// documentResponse is a document with its pages in order.
type documentResponse struct {
	*models.Document
	Pages []models.Page `json:"pages"`
}

type pageRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Order *int   `json:"order"`
}

type addPagesRequest struct {
	Pages []pageRequest `json:"pages"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	d, err := s.catalog.CreateDocument(r.Context(), r.PathValue("project_id"), req.Title, req.Description)
	if err != nil {
		s.writeServiceError(w, err, "failed to create document")
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.catalog.GetDocument(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to get document")
		return
	}
	pages, err := s.catalog.ListPages(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to list pages")
		return
	}
	s.writeJSON(w, http.StatusOK, documentResponse{Document: d, Pages: pages})
}

func (s *Server) handleAddPages(w http.ResponseWriter, r *http.Request) {
	var req addPagesRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	in := make([]catalog.PageInput, 0, len(req.Pages))
	for _, p := range req.Pages {
		in = append(in, catalog.PageInput{Title: p.Title, Text: p.Text, Order: p.Order})
	}
	pages, err := s.catalog.AddPages(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, err, "failed to add pages")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string][]models.Page{"pages": pages})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetPage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get page")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}
