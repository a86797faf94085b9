package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ajitpratap0/entitext/internal/models"
)

// Sentinel errors returned (wrapped) by every Store implementation.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would break a uniqueness rule.
	ErrConflict = errors.New("conflict")

	// ErrProtected is returned when deleting a record that others still reference.
	ErrProtected = errors.New("record is referenced and cannot be deleted")

	// ErrStaleSnapshot is returned by InsertAnnotation when the page text at
	// the annotation's offsets no longer equals its snapshot.
	ErrStaleSnapshot = errors.New("annotation snapshot does not match page text")
)

// Store defines persistence for projects, entity types, entities, documents,
// pages and annotations. Implementations enforce the referential rules:
// (project, entity type name) is unique, entity types and entities cannot be
// deleted while referenced, and an annotation is only stored when its
// snapshot matches the page text committed at that moment.
type Store interface {
	// CreateProject inserts a new project.
	CreateProject(ctx context.Context, p models.Project) error

	// GetProject retrieves a project by ID.
	GetProject(ctx context.Context, id string) (*models.Project, error)

	// ListProjects returns the projects owned by owner, oldest first.
	// An empty owner lists every project.
	ListProjects(ctx context.Context, owner string) ([]models.Project, error)

	// CreateEntityType inserts an entity type. Returns ErrConflict when the
	// project already has a type with the same name.
	CreateEntityType(ctx context.Context, et models.EntityType) error

	// UpdateEntityType replaces an existing entity type's mutable fields.
	UpdateEntityType(ctx context.Context, et models.EntityType) error

	// GetEntityType retrieves an entity type by ID.
	GetEntityType(ctx context.Context, id string) (*models.EntityType, error)

	// ListEntityTypes returns a project's entity types ordered by name.
	ListEntityTypes(ctx context.Context, projectID string, activeOnly bool) ([]models.EntityType, error)

	// DeleteEntityType removes an entity type. Returns ErrProtected while
	// entities use it or another type's reference field targets it.
	DeleteEntityType(ctx context.Context, id string) error

	// SaveEntity inserts or updates an entity. The entity type must exist.
	SaveEntity(ctx context.Context, e *models.Entity) error

	// GetEntity retrieves an entity by ID.
	GetEntity(ctx context.Context, id string) (*models.Entity, error)

	// SearchEntities returns entities matching the filter in creation order.
	SearchEntities(ctx context.Context, f EntityFilter) ([]*models.Entity, error)

	// DeleteEntity removes an entity. Returns ErrProtected while annotations
	// or other entities' reference fields point at it.
	DeleteEntity(ctx context.Context, id string) error

	// CreateDocument inserts a document. The project must exist.
	CreateDocument(ctx context.Context, d models.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// CreatePage inserts a page. The document must exist.
	CreatePage(ctx context.Context, p models.Page) error

	// GetPage retrieves a page by ID.
	GetPage(ctx context.Context, id string) (*models.Page, error)

	// ListPages returns a document's pages ordered by Order.
	ListPages(ctx context.Context, documentID string) ([]models.Page, error)

	// ReplacePageText sets a page's text and returns the annotations that
	// existed on the page at the moment the new text was committed.
	ReplacePageText(ctx context.Context, pageID, text string) ([]models.Annotation, error)

	// InsertAnnotation stores a new annotation after checking, atomically with
	// the insert, that the page text at its offsets equals AnnotatedText.
	// Returns ErrStaleSnapshot otherwise and ErrNotFound when the page or
	// entity is missing.
	InsertAnnotation(ctx context.Context, a models.Annotation) error

	// GetAnnotation retrieves an annotation by ID.
	GetAnnotation(ctx context.Context, id string) (*models.Annotation, error)

	// PageAnnotations returns a page and its annotations as of one committed
	// state, annotations ordered by StartOffset.
	PageAnnotations(ctx context.Context, pageID string) (*models.Page, []models.Annotation, error)

	// ListAnnotations returns a page's annotations ordered by StartOffset.
	ListAnnotations(ctx context.Context, pageID string) ([]models.Annotation, error)

	// DeleteAnnotation removes an annotation; the entity is untouched.
	DeleteAnnotation(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

// EntityFilter narrows SearchEntities.
type EntityFilter struct {
	ProjectID    string
	EntityTypeID string // optional
	Query        string // case-insensitive substring of the display name; empty matches all
	Limit        int    // 0 means no limit
}

// NewID returns a new record identifier (UUID v7, falling back to v4).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
