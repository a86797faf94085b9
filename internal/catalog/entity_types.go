package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/entitext/internal/metrics"
	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
	"github.com/ajitpratap0/entitext/internal/store"
)

// EntityTypeInput carries the writable fields of an entity type. On update,
// nil pointers and a nil Schema leave the current value unchanged.
type EntityTypeInput struct {
	Name        *string
	Color       *string
	Description *string
	Schema      schema.Schema
	IsActive    *bool
}

// CreateEntityType validates in and stores a new entity type in projectID.
func (s *Service) CreateEntityType(ctx context.Context, projectID string, in EntityTypeInput) (*models.EntityType, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	et := models.EntityType{
		ID:        store.NewID(),
		ProjectID: projectID,
		Color:     models.DefaultEntityTypeColor,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyEntityTypeInput(&et, in)

	if err := s.checkEntityType(ctx, &et); err != nil {
		return nil, err
	}
	if err := s.store.CreateEntityType(ctx, et); err != nil {
		return nil, fmt.Errorf("creating entity type: %w", err)
	}

	metrics.Inc(metrics.EntityTypesSaved)
	s.logger.Info("entity type created", "entity_type_id", et.ID, "project_id", projectID, "name", et.Name)
	return &et, nil
}

// UpdateEntityType applies in to an existing entity type. The new schema is
// validated on its own; existing entities are not re-validated against it.
func (s *Service) UpdateEntityType(ctx context.Context, id string, in EntityTypeInput) (*models.EntityType, error) {
	et, err := s.store.GetEntityType(ctx, id)
	if err != nil {
		return nil, err
	}
	applyEntityTypeInput(et, in)
	et.UpdatedAt = time.Now().UTC()

	if err := s.checkEntityType(ctx, et); err != nil {
		return nil, err
	}
	if err := s.store.UpdateEntityType(ctx, *et); err != nil {
		return nil, fmt.Errorf("updating entity type: %w", err)
	}

	metrics.Inc(metrics.EntityTypesSaved)
	s.logger.Info("entity type updated", "entity_type_id", et.ID, "name", et.Name)
	return et, nil
}

func applyEntityTypeInput(et *models.EntityType, in EntityTypeInput) {
	if in.Name != nil {
		et.Name = strings.TrimSpace(*in.Name)
	}
	if in.Color != nil && *in.Color != "" {
		et.Color = *in.Color
	}
	if in.Description != nil {
		et.Description = *in.Description
	}
	if in.Schema != nil {
		et.Schema = in.Schema
	}
	if in.IsActive != nil {
		et.IsActive = *in.IsActive
	}
}

func (s *Service) checkEntityType(ctx context.Context, et *models.EntityType) error {
	if et.Name == "" {
		return invalidf("entity type name is required")
	}
	if err := s.validator.ValidateSchema(ctx, et.Schema); err != nil {
		metrics.Inc(metrics.ValidationFailures)
		s.logger.Debug("entity type schema rejected", "name", et.Name, "error", err)
		return err
	}
	return nil
}

// GetEntityType returns an entity type by ID.
func (s *Service) GetEntityType(ctx context.Context, id string) (*models.EntityType, error) {
	return s.store.GetEntityType(ctx, id)
}

// ListEntityTypes returns the active entity types of a project as picker
// summaries. Fails with store.ErrNotFound when the project does not exist.
func (s *Service) ListEntityTypes(ctx context.Context, projectID string) ([]models.EntityTypeSummary, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	types, err := s.store.ListEntityTypes(ctx, projectID, true)
	if err != nil {
		return nil, fmt.Errorf("listing entity types: %w", err)
	}
	out := make([]models.EntityTypeSummary, 0, len(types))
	for i := range types {
		out = append(out, types[i].Summary())
	}
	return out, nil
}

// AllEntityTypes returns every entity type of a project, inactive included.
func (s *Service) AllEntityTypes(ctx context.Context, projectID string) ([]models.EntityType, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListEntityTypes(ctx, projectID, false)
}

// DeleteEntityType removes an entity type. Fails with store.ErrProtected
// while entities of that type exist or a reference field targets it.
func (s *Service) DeleteEntityType(ctx context.Context, id string) error {
	if err := s.store.DeleteEntityType(ctx, id); err != nil {
		return err
	}
	s.logger.Info("entity type deleted", "entity_type_id", id)
	return nil
}
