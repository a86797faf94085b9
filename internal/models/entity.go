package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ajitpratap0/entitext/internal/schema"
)

// UnnamedEntity is shown for an entity whose metadata lacks a display name.
const UnnamedEntity = "(unnamed)"

// DefaultEntityTypeColor is used when an entity type is created without one.
const DefaultEntityTypeColor = "#808080"

// EntityType is a user-defined record kind carrying a schema.
type EntityType struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	Name        string        `json:"name"`
	Color       string        `json:"color"`
	Description string        `json:"description,omitempty"`
	Schema      schema.Schema `json:"schema"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Entity is an instance of an EntityType. Its project and entity type are
// fixed at construction; the project is always the entity type's project.
type Entity struct {
	ID        string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time

	entityTypeID string
	projectID    string
}

// NewEntity binds a new entity to et, deriving its project from et.
func NewEntity(id string, et *EntityType, metadata map[string]any) *Entity {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Entity{
		ID:           id,
		Metadata:     metadata,
		entityTypeID: et.ID,
		projectID:    et.ProjectID,
	}
}

// EntityTypeID returns the ID of the entity's type.
func (e *Entity) EntityTypeID() string { return e.entityTypeID }

// ProjectID returns the project the entity belongs to.
func (e *Entity) ProjectID() string { return e.projectID }

// DisplayName returns metadata["display_name"], or UnnamedEntity.
func (e *Entity) DisplayName() string {
	switch v := e.Metadata[schema.DisplayNameField].(type) {
	case nil:
		return UnnamedEntity
	case string:
		if v == "" {
			return UnnamedEntity
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

type entityJSON struct {
	ID           string         `json:"id"`
	EntityTypeID string         `json:"entity_type_id"`
	ProjectID    string         `json:"project_id"`
	DisplayName  string         `json:"display_name"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MarshalJSON includes the derived project and display name.
func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(entityJSON{
		ID:           e.ID,
		EntityTypeID: e.entityTypeID,
		ProjectID:    e.projectID,
		DisplayName:  e.DisplayName(),
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	})
}

// EntityTypeSummary is the picker view of an active entity type.
type EntityTypeSummary struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Color  string        `json:"color"`
	Schema schema.Schema `json:"schema"`
}

// Summary returns the picker view of et.
func (et *EntityType) Summary() EntityTypeSummary {
	return EntityTypeSummary{ID: et.ID, Name: et.Name, Color: et.Color, Schema: et.Schema}
}

// EntitySummary is the search/create view of an entity.
type EntitySummary struct {
	ID              string         `json:"id"`
	DisplayName     string         `json:"display_name"`
	EntityTypeID    string         `json:"entity_type_id"`
	EntityTypeName  string         `json:"entity_type_name"`
	EntityTypeColor string         `json:"entity_type_color"`
	Metadata        map[string]any `json:"metadata"`
}

// SummarizeEntity joins an entity with its type.
func SummarizeEntity(e *Entity, et *EntityType) EntitySummary {
	return EntitySummary{
		ID:              e.ID,
		DisplayName:     e.DisplayName(),
		EntityTypeID:    e.entityTypeID,
		EntityTypeName:  et.Name,
		EntityTypeColor: et.Color,
		Metadata:        e.Metadata,
	}
}
