// Package annotation anchors spans of page text to entities and detects when
// later page edits make those spans drift from their frozen snapshots.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajitpratap0/entitext/internal/metrics"
	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/store"
)

var (
	// ErrOffset is returned when a span's end does not lie after its start.
	ErrOffset = errors.New("end_offset must be greater than start_offset")

	// ErrEmptySpan is returned when the offsets select no page text.
	ErrEmptySpan = errors.New("no text found at the given offsets")
)

// maxSnapshotAttempts bounds how often Create re-reads a page that keeps
// changing between the read and the insert.
const maxSnapshotAttempts = 3

// Engine creates, lists and deletes annotations and applies page edits.
type Engine struct {
	store  store.Store
	logger *slog.Logger
}

// NewEngine creates an annotation engine.
func NewEngine(st store.Store, logger *slog.Logger) *Engine {
	return &Engine{store: st, logger: logger}
}

// Drifted reports whether the text at a's offsets differs from its snapshot.
func Drifted(a models.Annotation, text string) bool {
	return models.Span(text, a.StartOffset, a.EndOffset) != a.AnnotatedText
}

// Create annotates [start, end) of the page with entityID. The snapshot is
// taken from the page text and persisted only if that text is still current
// when the row is inserted; otherwise the page is re-read.
func (e *Engine) Create(ctx context.Context, pageID, entityID string, start, end int) (*models.AnnotationRecord, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrOffset, start, end)
	}
	ent, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxSnapshotAttempts; attempt++ {
		page, err := e.store.GetPage(ctx, pageID)
		if err != nil {
			return nil, err
		}
		snapshot := models.Span(page.Text, start, end)
		if snapshot == "" {
			return nil, fmt.Errorf("%w: [%d, %d)", ErrEmptySpan, start, end)
		}

		now := time.Now().UTC()
		a := models.Annotation{
			ID:            store.NewID(),
			PageID:        pageID,
			EntityID:      ent.ID,
			StartOffset:   start,
			EndOffset:     end,
			AnnotatedText: snapshot,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = e.store.InsertAnnotation(ctx, a)
		if errors.Is(err, store.ErrStaleSnapshot) {
			metrics.Inc(metrics.SnapshotRetries)
			e.logger.Debug("page changed during annotation, retrying", "page_id", pageID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("inserting annotation: %w", err)
		}

		metrics.Inc(metrics.AnnotationsCreated)
		e.logger.Info("annotation created", "annotation_id", a.ID, "page_id", pageID, "entity_id", ent.ID)
		r := newResolver(e.store)
		return r.record(ctx, a, false)
	}
	return nil, fmt.Errorf("creating annotation on page %s: %w", pageID, store.ErrStaleSnapshot)
}

// ApplyPageEdit replaces the page text. The edit is always applied; every
// annotation whose snapshot no longer matches the new text is reported but
// left untouched.
func (e *Engine) ApplyPageEdit(ctx context.Context, pageID, newText string) (*models.PageEditResult, error) {
	anns, err := e.store.ReplacePageText(ctx, pageID, newText)
	if err != nil {
		return nil, err
	}

	r := newResolver(e.store)
	invalidated := make([]models.InvalidatedAnnotation, 0)
	for _, a := range anns {
		if !Drifted(a, newText) {
			continue
		}
		inv := models.InvalidatedAnnotation{
			ID:                a.ID,
			AnnotatedText:     a.AnnotatedText,
			EntityDisplayName: models.UnnamedEntity,
		}
		// The text is already committed, so a failed lookup only costs the
		// display names.
		if ent, et, err := r.entity(ctx, a.EntityID); err != nil {
			e.logger.Warn("resolving invalidated annotation", "annotation_id", a.ID, "entity_id", a.EntityID, "error", err)
		} else {
			inv.EntityDisplayName = ent.DisplayName()
			inv.EntityTypeName = et.Name
		}
		invalidated = append(invalidated, inv)
	}

	metrics.Inc(metrics.PageEdits)
	metrics.Add(metrics.AnnotationsInvalidated, len(invalidated))
	e.logger.Info("page text saved", "page_id", pageID, "invalidated", len(invalidated))
	return &models.PageEditResult{Saved: true, Invalidated: invalidated}, nil
}

// Delete removes an annotation. The referenced entity is kept.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.store.DeleteAnnotation(ctx, id); err != nil {
		return err
	}
	metrics.Inc(metrics.AnnotationsDeleted)
	e.logger.Info("annotation deleted", "annotation_id", id)
	return nil
}

// ListForPage returns the page's annotations ordered by start offset, each
// joined with its entity and flagged when it has drifted from the current
// page text.
func (e *Engine) ListForPage(ctx context.Context, pageID string) ([]models.AnnotationRecord, error) {
	page, anns, err := e.store.PageAnnotations(ctx, pageID)
	if err != nil {
		return nil, err
	}

	r := newResolver(e.store)
	out := make([]models.AnnotationRecord, 0, len(anns))
	for _, a := range anns {
		rec, err := r.record(ctx, a, Drifted(a, page.Text))
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// resolver caches entity and entity type reads for one operation.
type resolver struct {
	store    store.Store
	entities map[string]*models.Entity
	types    map[string]*models.EntityType
}

func newResolver(st store.Store) *resolver {
	return &resolver{
		store:    st,
		entities: make(map[string]*models.Entity),
		types:    make(map[string]*models.EntityType),
	}
}

func (r *resolver) entity(ctx context.Context, id string) (*models.Entity, *models.EntityType, error) {
	ent, ok := r.entities[id]
	if !ok {
		var err error
		ent, err = r.store.GetEntity(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("loading entity %s: %w", id, err)
		}
		r.entities[id] = ent
	}
	et, ok := r.types[ent.EntityTypeID()]
	if !ok {
		var err error
		et, err = r.store.GetEntityType(ctx, ent.EntityTypeID())
		if err != nil {
			return nil, nil, fmt.Errorf("loading entity type %s: %w", ent.EntityTypeID(), err)
		}
		r.types[et.ID] = et
	}
	return ent, et, nil
}

func (r *resolver) record(ctx context.Context, a models.Annotation, drifted bool) (*models.AnnotationRecord, error) {
	ent, et, err := r.entity(ctx, a.EntityID)
	if err != nil {
		return nil, err
	}
	return &models.AnnotationRecord{
		ID:                a.ID,
		StartOffset:       a.StartOffset,
		EndOffset:         a.EndOffset,
		AnnotatedText:     a.AnnotatedText,
		EntityID:          ent.ID,
		EntityDisplayName: ent.DisplayName(),
		EntityTypeID:      et.ID,
		EntityTypeName:    et.Name,
		EntityTypeColor:   et.Color,
		Drifted:           drifted,
	}, nil
}
