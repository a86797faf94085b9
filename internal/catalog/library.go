package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/store"
)

// CreateProject stores a new project owned by owner.
func (s *Service) CreateProject(ctx context.Context, owner, title, description string) (*models.Project, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalidf("project title is required")
	}
	p := models.Project{
		ID:          store.NewID(),
		Title:       title,
		Description: strings.TrimSpace(description),
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Info("project created", "project_id", p.ID, "owner", owner)
	return &p, nil
}

// GetProject returns a project by ID.
func (s *Service) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.store.GetProject(ctx, id)
}

// ListProjects returns the projects owned by owner.
func (s *Service) ListProjects(ctx context.Context, owner string) ([]models.Project, error) {
	projects, err := s.store.ListProjects(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

// CreateDocument stores a new document in projectID.
func (s *Service) CreateDocument(ctx context.Context, projectID, title, description string) (*models.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalidf("document title is required")
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	d := models.Document{
		ID:          store.NewID(),
		ProjectID:   projectID,
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateDocument(ctx, d); err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	s.logger.Info("document created", "document_id", d.ID, "project_id", projectID)
	return &d, nil
}

// GetDocument returns a document by ID.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// PageInput describes one page to add to a document.
type PageInput struct {
	Title string
	Text  string
	Order *int // nil appends after the current last page
}

// AddPages appends pages to a document. Pages without an explicit order are
// numbered after the document's current highest order, in input order.
func (s *Service) AddPages(ctx context.Context, documentID string, pages []PageInput) ([]models.Page, error) {
	if len(pages) == 0 {
		return nil, invalidf("at least one page is required")
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	existing, err := s.store.ListPages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}

	last := 0
	for i := range existing {
		if existing[i].Order > last {
			last = existing[i].Order
		}
	}

	now := time.Now().UTC()
	out := make([]models.Page, 0, len(pages))
	for _, in := range pages {
		p := models.Page{
			ID:         store.NewID(),
			DocumentID: documentID,
			Title:      in.Title,
			Text:       in.Text,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if in.Order != nil {
			p.Order = *in.Order
		} else {
			p.Order = last + 1
		}
		if p.Order > last {
			last = p.Order
		}
		if err := s.store.CreatePage(ctx, p); err != nil {
			return out, fmt.Errorf("creating page: %w", err)
		}
		out = append(out, p)
	}
	s.logger.Info("pages added", "document_id", documentID, "count", len(out))
	return out, nil
}

// ListPages returns a document's pages in order.
func (s *Service) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	if pages == nil {
		pages = []models.Page{}
	}
	return pages, nil
}

// GetPage returns a page by ID.
func (s *Service) GetPage(ctx context.Context, id string) (*models.Page, error) {
	return s.store.GetPage(ctx, id)
}
