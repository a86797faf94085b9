// Package lifecycle audits stored annotations and entities against the
// current page text and entity type schemas.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ajitpratap0/entitext/internal/annotation"
	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
	"github.com/ajitpratap0/entitext/internal/store"
)

// Scope selects what a run looks at. Either field may be empty.
type Scope struct {
	ProjectID  string // re-validate this project's entities
	DocumentID string // check this document's annotations for drift
}

// DriftedAnnotation is an annotation whose snapshot no longer matches its page.
type DriftedAnnotation struct {
	ID            string `json:"id"`
	PageID        string `json:"page_id"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	AnnotatedText string `json:"annotated_text"`
	CurrentText   string `json:"current_text"`
}

// EntityIssue is an entity whose stored metadata fails its type's current schema.
type EntityIssue struct {
	EntityID       string            `json:"entity_id"`
	DisplayName    string            `json:"display_name"`
	EntityTypeName string            `json:"entity_type_name"`
	Fields         map[string]string `json:"fields,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Report summarizes the results of a lifecycle run.
type Report struct {
	PagesScanned    int                 `json:"pages_scanned"`
	Drifted         []DriftedAnnotation `json:"drifted"`
	Pruned          int                 `json:"pruned"`
	EntitiesScanned int                 `json:"entities_scanned"`
	InvalidEntities []EntityIssue       `json:"invalid_entities"`
}

// Manager handles audit runs.
type Manager struct {
	store     store.Store
	engine    *annotation.Engine
	validator *schema.Validator
	logger    *slog.Logger
}

// NewManager creates a new lifecycle manager.
func NewManager(st store.Store, eng *annotation.Engine, v *schema.Validator, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		engine:    eng,
		validator: v,
		logger:    logger,
	}
}

// Run executes the audits the scope asks for. Drifted annotations are only
// deleted when dryRun is false.
func (m *Manager) Run(ctx context.Context, scope Scope, dryRun bool) (*Report, error) {
	report := &Report{
		Drifted:         []DriftedAnnotation{},
		InvalidEntities: []EntityIssue{},
	}

	if scope.DocumentID != "" {
		if err := m.auditDrift(ctx, scope.DocumentID, dryRun, report); err != nil {
			return report, err
		}
	}
	if scope.ProjectID != "" {
		if err := m.auditEntities(ctx, scope.ProjectID, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// auditDrift finds annotations whose snapshot no longer matches the page.
func (m *Manager) auditDrift(ctx context.Context, documentID string, dryRun bool, report *Report) error {
	if _, err := m.store.GetDocument(ctx, documentID); err != nil {
		return err
	}
	pages, err := m.store.ListPages(ctx, documentID)
	if err != nil {
		return fmt.Errorf("listing pages: %w", err)
	}

	for i := range pages {
		page, anns, err := m.store.PageAnnotations(ctx, pages[i].ID)
		if err != nil {
			return fmt.Errorf("listing annotations of page %s: %w", pages[i].ID, err)
		}
		report.PagesScanned++

		for _, a := range anns {
			if !annotation.Drifted(a, page.Text) {
				continue
			}
			report.Drifted = append(report.Drifted, DriftedAnnotation{
				ID:            a.ID,
				PageID:        a.PageID,
				StartOffset:   a.StartOffset,
				EndOffset:     a.EndOffset,
				AnnotatedText: a.AnnotatedText,
				CurrentText:   models.Span(page.Text, a.StartOffset, a.EndOffset),
			})
			m.logger.Info("drifted annotation", "annotation_id", a.ID, "page_id", page.ID, "dry_run", dryRun)
			if dryRun {
				continue
			}
			if err := m.engine.Delete(ctx, a.ID); err != nil {
				m.logger.Error("pruning drifted annotation", "annotation_id", a.ID, "error", err)
				continue
			}
			report.Pruned++
		}
	}
	return nil
}

// auditEntities re-validates every entity of a project against its type's
// current schema. Nothing is changed.
func (m *Manager) auditEntities(ctx context.Context, projectID string, report *Report) error {
	if _, err := m.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	types, err := m.store.ListEntityTypes(ctx, projectID, false)
	if err != nil {
		return fmt.Errorf("listing entity types: %w", err)
	}
	byID := make(map[string]*models.EntityType, len(types))
	for i := range types {
		byID[types[i].ID] = &types[i]
	}

	entities, err := m.store.SearchEntities(ctx, store.EntityFilter{ProjectID: projectID})
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}

	for _, e := range entities {
		report.EntitiesScanned++
		et, ok := byID[e.EntityTypeID()]
		if !ok {
			continue
		}
		issue := EntityIssue{EntityID: e.ID, DisplayName: e.DisplayName(), EntityTypeName: et.Name}

		md, err := m.validator.DeserializeMetadata(et.Schema, e.Metadata)
		if err == nil {
			err = m.validator.ValidateMetadata(ctx, et.Schema, md)
		}
		if err == nil {
			continue
		}

		var fieldErrs schema.FieldErrors
		var lookupErr *schema.LookupError
		switch {
		case errors.As(err, &fieldErrs):
			issue.Fields = fieldErrs.Map()
		case errors.As(err, &lookupErr):
			return fmt.Errorf("validating entity %s: %w", e.ID, err)
		default:
			issue.Error = err.Error()
		}
		m.logger.Info("entity fails current schema", "entity_id", e.ID, "entity_type_id", et.ID)
		report.InvalidEntities = append(report.InvalidEntities, issue)
	}
	return nil
}
