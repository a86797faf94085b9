package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
)

// MemoryStore is an in-memory implementation of Store. It is safe for
// concurrent use; every method runs under a single lock, so each call
// observes one committed state.
type MemoryStore struct {
	mu          sync.RWMutex
	projects    map[string]models.Project
	entityTypes map[string]models.EntityType
	entities    map[string]*models.Entity
	entityOrder []string
	documents   map[string]models.Document
	pages       map[string]models.Page
	annotations map[string]models.Annotation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    make(map[string]models.Project),
		entityTypes: make(map[string]models.EntityType),
		entities:    make(map[string]*models.Entity),
		documents:   make(map[string]models.Document),
		pages:       make(map[string]models.Page),
		annotations: make(map[string]models.Annotation),
	}
}

// CreateProject inserts a new project.
func (m *MemoryStore) CreateProject(_ context.Context, p models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("%w: project %s already exists", ErrConflict, p.ID)
	}
	m.projects[p.ID] = p
	return nil
}

// GetProject retrieves a project by ID.
func (m *MemoryStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return &p, nil
}

// ListProjects returns projects owned by owner, oldest first.
func (m *MemoryStore) ListProjects(_ context.Context, owner string) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Project
	for _, p := range m.projects {
		if owner != "" && p.Owner != owner {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateEntityType inserts an entity type.
func (m *MemoryStore) CreateEntityType(_ context.Context, et models.EntityType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[et.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, et.ProjectID)
	}
	if _, ok := m.entityTypes[et.ID]; ok {
		return fmt.Errorf("%w: entity type %s already exists", ErrConflict, et.ID)
	}
	if err := m.checkTypeNameLocked(et); err != nil {
		return err
	}
	m.entityTypes[et.ID] = copyEntityType(et)
	return nil
}

// UpdateEntityType replaces an existing entity type's mutable fields. The
// owning project never changes.
func (m *MemoryStore) UpdateEntityType(_ context.Context, et models.EntityType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entityTypes[et.ID]
	if !ok {
		return fmt.Errorf("%w: entity type %s", ErrNotFound, et.ID)
	}
	et.ProjectID = cur.ProjectID
	et.CreatedAt = cur.CreatedAt
	if err := m.checkTypeNameLocked(et); err != nil {
		return err
	}
	m.entityTypes[et.ID] = copyEntityType(et)
	return nil
}

func (m *MemoryStore) checkTypeNameLocked(et models.EntityType) error {
	for _, other := range m.entityTypes {
		if other.ID != et.ID && other.ProjectID == et.ProjectID && other.Name == et.Name {
			return fmt.Errorf("%w: entity type %q already exists in project %s", ErrConflict, et.Name, et.ProjectID)
		}
	}
	return nil
}

// GetEntityType retrieves an entity type by ID.
func (m *MemoryStore) GetEntityType(_ context.Context, id string) (*models.EntityType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	et, ok := m.entityTypes[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity type %s", ErrNotFound, id)
	}
	cp := copyEntityType(et)
	return &cp, nil
}

// ListEntityTypes returns a project's entity types ordered by name.
func (m *MemoryStore) ListEntityTypes(_ context.Context, projectID string, activeOnly bool) ([]models.EntityType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.EntityType
	for _, et := range m.entityTypes {
		if et.ProjectID != projectID || (activeOnly && !et.IsActive) {
			continue
		}
		out = append(out, copyEntityType(et))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteEntityType removes an entity type unless entities still use it or
// another type's reference field targets it.
func (m *MemoryStore) DeleteEntityType(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entityTypes[id]; !ok {
		return fmt.Errorf("%w: entity type %s", ErrNotFound, id)
	}
	for _, e := range m.entities {
		if e.EntityTypeID() == id {
			return fmt.Errorf("%w: entity type %s has entities", ErrProtected, id)
		}
	}
	if refs := referenceFields(m.entityTypeListLocked(), id, id); len(refs) > 0 {
		return fmt.Errorf("%w: entity type %s is the target of a reference field", ErrProtected, id)
	}
	delete(m.entityTypes, id)
	return nil
}

// SaveEntity inserts or updates an entity.
func (m *MemoryStore) SaveEntity(_ context.Context, e *models.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	et, ok := m.entityTypes[e.EntityTypeID()]
	if !ok {
		return fmt.Errorf("%w: entity type %s", ErrNotFound, e.EntityTypeID())
	}
	if et.ProjectID != e.ProjectID() {
		return fmt.Errorf("%w: entity %s project does not match its entity type", ErrConflict, e.ID)
	}
	if _, exists := m.entities[e.ID]; !exists {
		m.entityOrder = append(m.entityOrder, e.ID)
	}
	m.entities[e.ID] = copyEntity(e)
	return nil
}

// GetEntity retrieves an entity by ID.
func (m *MemoryStore) GetEntity(_ context.Context, id string) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return copyEntity(e), nil
}

// SearchEntities returns matching entities in insertion order.
func (m *MemoryStore) SearchEntities(_ context.Context, f EntityFilter) ([]*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Entity
	for _, id := range m.entityOrder {
		e, ok := m.entities[id]
		if !ok {
			continue
		}
		if e.ProjectID() != f.ProjectID {
			continue
		}
		if f.EntityTypeID != "" && e.EntityTypeID() != f.EntityTypeID {
			continue
		}
		if !matchesQuery(e, f.Query) {
			continue
		}
		out = append(out, copyEntity(e))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// DeleteEntity removes an entity unless annotations or other entities'
// reference fields still point at it.
func (m *MemoryStore) DeleteEntity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	for _, a := range m.annotations {
		if a.EntityID == id {
			return fmt.Errorf("%w: entity %s has annotations", ErrProtected, id)
		}
	}
	fields := referenceFields(m.entityTypeListLocked(), target.EntityTypeID(), "")
	for _, e := range m.entities {
		if e.ID != id && refersTo(e.Metadata, fields[e.EntityTypeID()], id) {
			return fmt.Errorf("%w: entity %s is referenced by entity %s", ErrProtected, id, e.ID)
		}
	}
	delete(m.entities, id)
	for i, oid := range m.entityOrder {
		if oid == id {
			m.entityOrder = append(m.entityOrder[:i], m.entityOrder[i+1:]...)
			break
		}
	}
	return nil
}

// CreateDocument inserts a document.
func (m *MemoryStore) CreateDocument(_ context.Context, d models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[d.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, d.ProjectID)
	}
	if _, ok := m.documents[d.ID]; ok {
		return fmt.Errorf("%w: document %s already exists", ErrConflict, d.ID)
	}
	m.documents[d.ID] = d
	return nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return &d, nil
}

// CreatePage inserts a page.
func (m *MemoryStore) CreatePage(_ context.Context, p models.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[p.DocumentID]; !ok {
		return fmt.Errorf("%w: document %s", ErrNotFound, p.DocumentID)
	}
	if _, ok := m.pages[p.ID]; ok {
		return fmt.Errorf("%w: page %s already exists", ErrConflict, p.ID)
	}
	m.pages[p.ID] = p
	return nil
}

// GetPage retrieves a page by ID.
func (m *MemoryStore) GetPage(_ context.Context, id string) (*models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: page %s", ErrNotFound, id)
	}
	return &p, nil
}

// ListPages returns a document's pages ordered by Order.
func (m *MemoryStore) ListPages(_ context.Context, documentID string) ([]models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Page
	for _, p := range m.pages {
		if p.DocumentID == documentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ReplacePageText sets the page text and returns the annotations present at
// that moment.
func (m *MemoryStore) ReplacePageText(_ context.Context, pageID, text string) ([]models.Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("%w: page %s", ErrNotFound, pageID)
	}
	anns := m.annotationsForPageLocked(pageID)
	p.Text = text
	p.UpdatedAt = time.Now().UTC()
	m.pages[pageID] = p
	return anns, nil
}

// InsertAnnotation stores a after re-checking its snapshot under the lock.
func (m *MemoryStore) InsertAnnotation(_ context.Context, a models.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[a.PageID]
	if !ok {
		return fmt.Errorf("%w: page %s", ErrNotFound, a.PageID)
	}
	if _, ok := m.entities[a.EntityID]; !ok {
		return fmt.Errorf("%w: entity %s", ErrNotFound, a.EntityID)
	}
	if _, ok := m.annotations[a.ID]; ok {
		return fmt.Errorf("%w: annotation %s already exists", ErrConflict, a.ID)
	}
	if models.Span(p.Text, a.StartOffset, a.EndOffset) != a.AnnotatedText {
		return fmt.Errorf("%w: page %s [%d:%d]", ErrStaleSnapshot, a.PageID, a.StartOffset, a.EndOffset)
	}
	m.annotations[a.ID] = a
	return nil
}

// GetAnnotation retrieves an annotation by ID.
func (m *MemoryStore) GetAnnotation(_ context.Context, id string) (*models.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.annotations[id]
	if !ok {
		return nil, fmt.Errorf("%w: annotation %s", ErrNotFound, id)
	}
	return &a, nil
}

// PageAnnotations returns a page together with its annotations.
func (m *MemoryStore) PageAnnotations(_ context.Context, pageID string) (*models.Page, []models.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[pageID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: page %s", ErrNotFound, pageID)
	}
	return &p, m.annotationsForPageLocked(pageID), nil
}

// ListAnnotations returns a page's annotations ordered by StartOffset.
func (m *MemoryStore) ListAnnotations(_ context.Context, pageID string) ([]models.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.annotationsForPageLocked(pageID), nil
}

func (m *MemoryStore) entityTypeListLocked() []models.EntityType {
	out := make([]models.EntityType, 0, len(m.entityTypes))
	for _, et := range m.entityTypes {
		out = append(out, et)
	}
	return out
}

func (m *MemoryStore) annotationsForPageLocked(pageID string) []models.Annotation {
	var out []models.Annotation
	for _, a := range m.annotations {
		if a.PageID == pageID {
			out = append(out, a)
		}
	}
	sortAnnotations(out)
	return out
}

// DeleteAnnotation removes an annotation by ID.
func (m *MemoryStore) DeleteAnnotation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.annotations[id]; !ok {
		return fmt.Errorf("%w: annotation %s", ErrNotFound, id)
	}
	delete(m.annotations, id)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// --- helpers ---

// sortAnnotations orders by start offset, then end offset, then ID.
func sortAnnotations(anns []models.Annotation) {
	sort.Slice(anns, func(i, j int) bool {
		a, b := anns[i], anns[j]
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		if a.EndOffset != b.EndOffset {
			return a.EndOffset < b.EndOffset
		}
		return a.ID < b.ID
	})
}

// Deep-copy mutable fields to prevent callers from mutating stored data.
func copyEntityType(et models.EntityType) models.EntityType {
	if et.Schema != nil {
		s := make(schema.Schema, len(et.Schema))
		for i, def := range et.Schema {
			s[i] = schema.Definition(cloneMap(def))
		}
		et.Schema = s
	}
	return et
}

func copyEntity(e *models.Entity) *models.Entity {
	cp := *e
	cp.Metadata = cloneMap(e.Metadata)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case schema.Definition:
		return schema.Definition(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
