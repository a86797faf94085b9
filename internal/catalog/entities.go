package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/entitext/internal/metrics"
	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
	"github.com/ajitpratap0/entitext/internal/store"
)

// CreateEntity validates metadata against the entity type's schema and stores
// a new entity. The entity type must belong to projectID; the entity's
// project is derived from it.
func (s *Service) CreateEntity(ctx context.Context, projectID, entityTypeID string, metadata map[string]any) (*models.EntitySummary, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if entityTypeID == "" {
		return nil, invalidf("entity_type_id is required")
	}
	et, err := s.store.GetEntityType(ctx, entityTypeID)
	if err != nil {
		return nil, err
	}
	if et.ProjectID != projectID {
		return nil, fmt.Errorf("%w: entity type %s in project %s", store.ErrNotFound, entityTypeID, projectID)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if err := s.checkMetadata(ctx, et, metadata); err != nil {
		return nil, err
	}
	stored, err := s.validator.SerializeMetadata(et.Schema, metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: entity type %s: %w", ErrCorruptSchema, et.ID, err)
	}

	now := time.Now().UTC()
	e := models.NewEntity(store.NewID(), et, stored)
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := s.store.SaveEntity(ctx, e); err != nil {
		return nil, fmt.Errorf("saving entity: %w", err)
	}

	metrics.Inc(metrics.EntitiesSaved)
	s.logger.Info("entity created", "entity_id", e.ID, "entity_type_id", et.ID, "project_id", e.ProjectID())
	return s.summarize(e, et)
}

// UpdateEntity replaces an entity's metadata after validating it against the
// current schema of its entity type.
func (s *Service) UpdateEntity(ctx context.Context, id string, metadata map[string]any) (*models.EntitySummary, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	et, err := s.store.GetEntityType(ctx, e.EntityTypeID())
	if err != nil {
		return nil, fmt.Errorf("loading entity type of %s: %w", id, err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if err := s.checkMetadata(ctx, et, metadata); err != nil {
		return nil, err
	}
	stored, err := s.validator.SerializeMetadata(et.Schema, metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: entity type %s: %w", ErrCorruptSchema, et.ID, err)
	}

	e.Metadata = stored
	e.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveEntity(ctx, e); err != nil {
		return nil, fmt.Errorf("saving entity: %w", err)
	}

	metrics.Inc(metrics.EntitiesSaved)
	s.logger.Info("entity updated", "entity_id", e.ID)
	return s.summarize(e, et)
}

// GetEntity returns an entity joined with its type.
func (s *Service) GetEntity(ctx context.Context, id string) (*models.EntitySummary, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	et, err := s.store.GetEntityType(ctx, e.EntityTypeID())
	if err != nil {
		return nil, fmt.Errorf("loading entity type of %s: %w", id, err)
	}
	return s.summarize(e, et)
}

// DeleteEntity removes an entity. Fails with store.ErrProtected while
// annotations or other entities' reference fields point at it.
func (s *Service) DeleteEntity(ctx context.Context, id string) error {
	if err := s.store.DeleteEntity(ctx, id); err != nil {
		return err
	}
	s.logger.Info("entity deleted", "entity_id", id)
	return nil
}

// SearchEntities matches query against entity display names within a
// project, optionally restricted to one entity type. A blank query returns
// an empty list. At most the configured search limit is returned.
func (s *Service) SearchEntities(ctx context.Context, projectID, query, entityTypeID string) ([]models.EntitySummary, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.EntitySummary{}, nil
	}
	metrics.Inc(metrics.SearchTotal)

	entities, err := s.store.SearchEntities(ctx, store.EntityFilter{
		ProjectID:    projectID,
		EntityTypeID: entityTypeID,
		Query:        query,
		Limit:        s.searchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching entities: %w", err)
	}

	types := make(map[string]*models.EntityType)
	out := make([]models.EntitySummary, 0, len(entities))
	for _, e := range entities {
		et, ok := types[e.EntityTypeID()]
		if !ok {
			et, err = s.store.GetEntityType(ctx, e.EntityTypeID())
			if err != nil {
				return nil, fmt.Errorf("loading entity type of %s: %w", e.ID, err)
			}
			types[et.ID] = et
		}
		sum, err := s.summarize(e, et)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, nil
}

// checkMetadata runs the metadata validator. Field failures come back as
// schema.FieldErrors; a stored schema that cannot validate anything comes
// back wrapped in ErrCorruptSchema.
func (s *Service) checkMetadata(ctx context.Context, et *models.EntityType, metadata map[string]any) error {
	err := s.validator.ValidateMetadata(ctx, et.Schema, metadata)
	if err == nil {
		return nil
	}

	var fieldErrs schema.FieldErrors
	if errors.As(err, &fieldErrs) {
		metrics.Inc(metrics.ValidationFailures)
		s.logger.Debug("metadata rejected", "entity_type_id", et.ID, "fields", fieldErrs.Map())
		return fieldErrs
	}

	var defErr *schema.DefinitionError
	if errors.As(err, &defErr) || errors.Is(err, schema.ErrUnknownFieldType) {
		s.logger.Error("stored schema is unusable", "entity_type_id", et.ID, "error", err)
		return fmt.Errorf("%w: entity type %s: %w", ErrCorruptSchema, et.ID, err)
	}
	return fmt.Errorf("validating metadata: %w", err)
}

func (s *Service) summarize(e *models.Entity, et *models.EntityType) (*models.EntitySummary, error) {
	md, err := s.validator.DeserializeMetadata(et.Schema, e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: entity type %s: %w", ErrCorruptSchema, et.ID, err)
	}
	view := *e
	view.Metadata = md
	sum := models.SummarizeEntity(&view, et)
	return &sum, nil
}
