package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// Schema DDL, applied in order on open.
const (
	createProjects = `CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`

	createEntityTypes = `CREATE TABLE IF NOT EXISTS entity_types (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    color TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    schema TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (project_id, name),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);`

	createEntities = `CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    entity_type_id TEXT NOT NULL,
    metadata TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (entity_type_id) REFERENCES entity_types(id) ON DELETE RESTRICT
);`

	createDocuments = `CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);`

	createPages = `CREATE TABLE IF NOT EXISTS pages (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    page_order INTEGER NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);`

	createAnnotations = `CREATE TABLE IF NOT EXISTS annotations (
    id TEXT PRIMARY KEY,
    page_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset INTEGER NOT NULL,
    annotated_text TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (page_id) REFERENCES pages(id) ON DELETE CASCADE,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE RESTRICT
);`

	createAnnotationsPageIndex = `CREATE INDEX IF NOT EXISTS idx_annotations_page ON annotations(page_id, start_offset);`
	createEntitiesTypeIndex    = `CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type_id);`
)

var schemaDDL = []string{
	createProjects,
	createEntityTypes,
	createEntities,
	createDocuments,
	createPages,
	createAnnotations,
	createAnnotationsPageIndex,
	createEntitiesTypeIndex,
}

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. Pass MemoryDSN for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// alive for the life of the store.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// CreateProject inserts a new project.
func (s *SQLiteStore) CreateProject(ctx context.Context, p models.Project) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM projects WHERE id = ?`, p.ID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: project %s already exists", ErrConflict, p.ID)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, title, description, owner, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Title, p.Description, p.Owner, formatTime(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting project: %w", err)
		}
		return nil
	})
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, owner, created_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

// ListProjects returns projects owned by owner, oldest first.
func (s *SQLiteStore) ListProjects(ctx context.Context, owner string) ([]models.Project, error) {
	q := `SELECT id, title, description, owner, created_at FROM projects`
	var args []any
	if owner != "" {
		q += ` WHERE owner = ?`
		args = append(args, owner)
	}
	q += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreateEntityType inserts an entity type.
func (s *SQLiteStore) CreateEntityType(ctx context.Context, et models.EntityType) error {
	schemaJSON, err := json.Marshal(et.Schema)
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM projects WHERE id = ?`, et.ProjectID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: project %s", ErrNotFound, et.ProjectID)
		}
		if ok, err := exists(ctx, tx, `SELECT 1 FROM entity_types WHERE id = ?`, et.ID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: entity type %s already exists", ErrConflict, et.ID)
		}
		if err := checkTypeName(ctx, tx, et); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entity_types (id, project_id, name, color, description, schema, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			et.ID, et.ProjectID, et.Name, et.Color, et.Description, string(schemaJSON),
			et.IsActive, formatTime(et.CreatedAt), formatTime(et.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting entity type: %w", err)
		}
		return nil
	})
}

// UpdateEntityType replaces an existing entity type's mutable fields.
func (s *SQLiteStore) UpdateEntityType(ctx context.Context, et models.EntityType) error {
	schemaJSON, err := json.Marshal(et.Schema)
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var projectID string
		err := tx.QueryRowContext(ctx, `SELECT project_id FROM entity_types WHERE id = ?`, et.ID).Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: entity type %s", ErrNotFound, et.ID)
		}
		if err != nil {
			return fmt.Errorf("getting entity type: %w", err)
		}
		et.ProjectID = projectID
		if err := checkTypeName(ctx, tx, et); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE entity_types SET name = ?, color = ?, description = ?, schema = ?, is_active = ?, updated_at = ?
			 WHERE id = ?`,
			et.Name, et.Color, et.Description, string(schemaJSON), et.IsActive, formatTime(et.UpdatedAt), et.ID)
		if err != nil {
			return fmt.Errorf("updating entity type: %w", err)
		}
		return nil
	})
}

func checkTypeName(ctx context.Context, tx *sql.Tx, et models.EntityType) error {
	ok, err := exists(ctx, tx,
		`SELECT 1 FROM entity_types WHERE project_id = ? AND name = ? AND id <> ?`,
		et.ProjectID, et.Name, et.ID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: entity type %q already exists in project %s", ErrConflict, et.Name, et.ProjectID)
	}
	return nil
}

const entityTypeColumns = `id, project_id, name, color, description, schema, is_active, created_at, updated_at`

// GetEntityType retrieves an entity type by ID.
func (s *SQLiteStore) GetEntityType(ctx context.Context, id string) (*models.EntityType, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityTypeColumns+` FROM entity_types WHERE id = ?`, id)
	et, err := scanEntityType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entity type %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity type: %w", err)
	}
	return et, nil
}

// ListEntityTypes returns a project's entity types ordered by name.
func (s *SQLiteStore) ListEntityTypes(ctx context.Context, projectID string, activeOnly bool) ([]models.EntityType, error) {
	q := `SELECT ` + entityTypeColumns + ` FROM entity_types WHERE project_id = ?`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	q += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing entity types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.EntityType
	for rows.Next() {
		et, err := scanEntityType(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity type: %w", err)
		}
		out = append(out, *et)
	}
	return out, rows.Err()
}

// DeleteEntityType removes an entity type unless entities still use it or
// another type's reference field targets it.
func (s *SQLiteStore) DeleteEntityType(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM entity_types WHERE id = ?`, id); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: entity type %s", ErrNotFound, id)
		}
		if ok, err := exists(ctx, tx, `SELECT 1 FROM entities WHERE entity_type_id = ? LIMIT 1`, id); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: entity type %s has entities", ErrProtected, id)
		}
		types, err := allEntityTypes(ctx, tx)
		if err != nil {
			return err
		}
		if refs := referenceFields(types, id, id); len(refs) > 0 {
			return fmt.Errorf("%w: entity type %s is the target of a reference field", ErrProtected, id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_types WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting entity type: %w", err)
		}
		return nil
	})
}

// SaveEntity inserts or updates an entity.
func (s *SQLiteStore) SaveEntity(ctx context.Context, e *models.Entity) error {
	md, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var projectID string
		err := tx.QueryRowContext(ctx, `SELECT project_id FROM entity_types WHERE id = ?`, e.EntityTypeID()).Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: entity type %s", ErrNotFound, e.EntityTypeID())
		}
		if err != nil {
			return fmt.Errorf("getting entity type: %w", err)
		}
		if projectID != e.ProjectID() {
			return fmt.Errorf("%w: entity %s project does not match its entity type", ErrConflict, e.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entities (id, entity_type_id, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata, updated_at = excluded.updated_at`,
			e.ID, e.EntityTypeID(), string(md), formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
		if err != nil {
			return fmt.Errorf("saving entity: %w", err)
		}
		return nil
	})
}

const entitySelect = `SELECT e.id, e.metadata, e.created_at, e.updated_at, t.id, t.project_id
FROM entities e JOIN entity_types t ON t.id = e.entity_type_id`

// GetEntity retrieves an entity by ID.
func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	row := s.db.QueryRowContext(ctx, entitySelect+` WHERE e.id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}
	return e, nil
}

// SearchEntities returns matching entities in insertion order. Display-name
// matching happens in Go so that it agrees with the memory store.
func (s *SQLiteStore) SearchEntities(ctx context.Context, f EntityFilter) ([]*models.Entity, error) {
	q := entitySelect + ` WHERE t.project_id = ?`
	args := []any{f.ProjectID}
	if f.EntityTypeID != "" {
		q += ` AND e.entity_type_id = ?`
		args = append(args, f.EntityTypeID)
	}
	q += ` ORDER BY e.rowid`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("searching entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		if !matchesQuery(e, f.Query) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, rows.Err()
}

// DeleteEntity removes an entity unless annotations or other entities'
// reference fields still point at it.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var typeID string
		err := tx.QueryRowContext(ctx, `SELECT entity_type_id FROM entities WHERE id = ?`, id).Scan(&typeID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: entity %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("getting entity: %w", err)
		}
		if ok, err := exists(ctx, tx, `SELECT 1 FROM annotations WHERE entity_id = ? LIMIT 1`, id); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: entity %s has annotations", ErrProtected, id)
		}
		if referrer, err := referringEntity(ctx, tx, id, typeID); err != nil {
			return err
		} else if referrer != "" {
			return fmt.Errorf("%w: entity %s is referenced by entity %s", ErrProtected, id, referrer)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting entity: %w", err)
		}
		return nil
	})
}

// CreateDocument inserts a document.
func (s *SQLiteStore) CreateDocument(ctx context.Context, d models.Document) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM projects WHERE id = ?`, d.ProjectID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: project %s", ErrNotFound, d.ProjectID)
		}
		if ok, err := exists(ctx, tx, `SELECT 1 FROM documents WHERE id = ?`, d.ID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: document %s already exists", ErrConflict, d.ID)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, project_id, title, description, created_at) VALUES (?, ?, ?, ?, ?)`,
			d.ID, d.ProjectID, d.Title, d.Description, formatTime(d.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		return nil
	})
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var (
		d       models.Document
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, description, created_at FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.ProjectID, &d.Title, &d.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	d.CreatedAt = parseTime(created)
	return &d, nil
}

// CreatePage inserts a page.
func (s *SQLiteStore) CreatePage(ctx context.Context, p models.Page) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM documents WHERE id = ?`, p.DocumentID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: document %s", ErrNotFound, p.DocumentID)
		}
		if ok, err := exists(ctx, tx, `SELECT 1 FROM pages WHERE id = ?`, p.ID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: page %s already exists", ErrConflict, p.ID)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pages (id, document_id, title, page_order, text, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.DocumentID, p.Title, p.Order, p.Text, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting page: %w", err)
		}
		return nil
	})
}

const pageColumns = `id, document_id, title, page_order, text, created_at, updated_at`

// GetPage retrieves a page by ID.
func (s *SQLiteStore) GetPage(ctx context.Context, id string) (*models.Page, error) {
	p, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: page %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting page: %w", err)
	}
	return p, nil
}

// ListPages returns a document's pages ordered by Order.
func (s *SQLiteStore) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE document_id = ? ORDER BY page_order, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ReplacePageText sets the page text and returns the annotations present in
// the same transaction.
func (s *SQLiteStore) ReplacePageText(ctx context.Context, pageID, text string) ([]models.Annotation, error) {
	var anns []models.Annotation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE pages SET text = ?, updated_at = ? WHERE id = ?`,
			text, formatTime(time.Now().UTC()), pageID)
		if err != nil {
			return fmt.Errorf("updating page text: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: page %s", ErrNotFound, pageID)
		}
		anns, err = queryAnnotations(ctx, tx, pageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return anns, nil
}

// InsertAnnotation stores a after re-checking its snapshot in the same
// transaction as the insert.
func (s *SQLiteStore) InsertAnnotation(ctx context.Context, a models.Annotation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var text string
		err := tx.QueryRowContext(ctx, `SELECT text FROM pages WHERE id = ?`, a.PageID).Scan(&text)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: page %s", ErrNotFound, a.PageID)
		}
		if err != nil {
			return fmt.Errorf("getting page text: %w", err)
		}
		if ok, err := exists(ctx, tx, `SELECT 1 FROM entities WHERE id = ?`, a.EntityID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: entity %s", ErrNotFound, a.EntityID)
		}
		if ok, err := exists(ctx, tx, `SELECT 1 FROM annotations WHERE id = ?`, a.ID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: annotation %s already exists", ErrConflict, a.ID)
		}
		if models.Span(text, a.StartOffset, a.EndOffset) != a.AnnotatedText {
			return fmt.Errorf("%w: page %s [%d:%d]", ErrStaleSnapshot, a.PageID, a.StartOffset, a.EndOffset)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO annotations (id, page_id, entity_id, start_offset, end_offset, annotated_text, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.PageID, a.EntityID, a.StartOffset, a.EndOffset, a.AnnotatedText,
			formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting annotation: %w", err)
		}
		return nil
	})
}

const annotationColumns = `id, page_id, entity_id, start_offset, end_offset, annotated_text, created_at, updated_at`

// GetAnnotation retrieves an annotation by ID.
func (s *SQLiteStore) GetAnnotation(ctx context.Context, id string) (*models.Annotation, error) {
	a, err := scanAnnotation(s.db.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: annotation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting annotation: %w", err)
	}
	return a, nil
}

// PageAnnotations returns a page together with its annotations, both read in
// one transaction.
func (s *SQLiteStore) PageAnnotations(ctx context.Context, pageID string) (*models.Page, []models.Annotation, error) {
	var (
		page *models.Page
		anns []models.Annotation
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanPage(tx.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, pageID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: page %s", ErrNotFound, pageID)
		}
		if err != nil {
			return fmt.Errorf("getting page: %w", err)
		}
		page = p
		anns, err = queryAnnotations(ctx, tx, pageID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return page, anns, nil
}

// ListAnnotations returns a page's annotations ordered by StartOffset.
func (s *SQLiteStore) ListAnnotations(ctx context.Context, pageID string) ([]models.Annotation, error) {
	return queryAnnotations(ctx, s.db, pageID)
}

// DeleteAnnotation removes an annotation by ID.
func (s *SQLiteStore) DeleteAnnotation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting annotation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: annotation %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return true, nil
}

func allEntityTypes(ctx context.Context, q queryer) ([]models.EntityType, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+entityTypeColumns+` FROM entity_types`)
	if err != nil {
		return nil, fmt.Errorf("listing entity types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.EntityType
	for rows.Next() {
		et, err := scanEntityType(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity type: %w", err)
		}
		out = append(out, *et)
	}
	return out, rows.Err()
}

// referringEntity returns the ID of some entity whose reference field holds
// id, an entity of type typeID, or "" when there is none.
func referringEntity(ctx context.Context, q queryer, id, typeID string) (string, error) {
	types, err := allEntityTypes(ctx, q)
	if err != nil {
		return "", err
	}
	for referrerType, fields := range referenceFields(types, typeID, "") {
		found, err := scanReferrers(ctx, q, referrerType, fields, id)
		if err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}

func scanReferrers(ctx context.Context, q queryer, typeID string, fields []string, id string) (string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, metadata FROM entities WHERE entity_type_id = ? AND id != ?`, typeID, id)
	if err != nil {
		return "", fmt.Errorf("listing referring entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var eid, rawMD string
		if err := rows.Scan(&eid, &rawMD); err != nil {
			return "", fmt.Errorf("scanning entity: %w", err)
		}
		var md map[string]any
		if err := json.Unmarshal([]byte(rawMD), &md); err != nil {
			return "", fmt.Errorf("decoding metadata of entity %s: %w", eid, err)
		}
		if refersTo(md, fields, id) {
			return eid, nil
		}
	}
	return "", rows.Err()
}

func queryAnnotations(ctx context.Context, q queryer, pageID string) ([]models.Annotation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE page_id = ? ORDER BY start_offset, end_offset, id`, pageID)
	if err != nil {
		return nil, fmt.Errorf("listing annotations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning annotation: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanProject(sc scanner) (*models.Project, error) {
	var (
		p       models.Project
		created string
	)
	if err := sc.Scan(&p.ID, &p.Title, &p.Description, &p.Owner, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func scanEntityType(sc scanner) (*models.EntityType, error) {
	var (
		et               models.EntityType
		rawSchema        string
		created, updated string
	)
	if err := sc.Scan(&et.ID, &et.ProjectID, &et.Name, &et.Color, &et.Description,
		&rawSchema, &et.IsActive, &created, &updated); err != nil {
		return nil, err
	}
	var sch schema.Schema
	if err := json.Unmarshal([]byte(rawSchema), &sch); err != nil {
		return nil, fmt.Errorf("decoding schema of entity type %s: %w", et.ID, err)
	}
	et.Schema = sch
	et.CreatedAt = parseTime(created)
	et.UpdatedAt = parseTime(updated)
	return &et, nil
}

func scanEntity(sc scanner) (*models.Entity, error) {
	var (
		id, rawMD        string
		created, updated string
		et               models.EntityType
	)
	if err := sc.Scan(&id, &rawMD, &created, &updated, &et.ID, &et.ProjectID); err != nil {
		return nil, err
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(rawMD), &md); err != nil {
		return nil, fmt.Errorf("decoding metadata of entity %s: %w", id, err)
	}
	e := models.NewEntity(id, &et, md)
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

func scanPage(sc scanner) (*models.Page, error) {
	var (
		p                models.Page
		created, updated string
	)
	if err := sc.Scan(&p.ID, &p.DocumentID, &p.Title, &p.Order, &p.Text, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func scanAnnotation(sc scanner) (*models.Annotation, error) {
	var (
		a                models.Annotation
		created, updated string
	)
	if err := sc.Scan(&a.ID, &a.PageID, &a.EntityID, &a.StartOffset, &a.EndOffset,
		&a.AnnotatedText, &created, &updated); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
