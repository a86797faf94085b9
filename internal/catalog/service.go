// Package catalog manages projects, entity types, entities, documents and
// pages. Every entity type write runs the schema validator and every entity
// write runs the metadata validator before anything reaches the store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ajitpratap0/entitext/internal/schema"
	"github.com/ajitpratap0/entitext/internal/store"
)

// MaxSearchLimit caps the number of entities a search returns.
const MaxSearchLimit = 20

var (
	// ErrInvalid is returned for malformed input outside schema validation,
	// such as an empty entity type name.
	ErrInvalid = errors.New("invalid input")

	// ErrCorruptSchema is returned when a stored entity type schema can no
	// longer be used to validate metadata. It wraps the underlying
	// *schema.DefinitionError or *schema.UnknownFieldTypeError.
	ErrCorruptSchema = errors.New("stored schema is corrupt")
)

// Service implements the catalog operations on top of a Store.
type Service struct {
	store       store.Store
	validator   *schema.Validator
	logger      *slog.Logger
	searchLimit int
}

// NewService creates a catalog service. A nil registry uses the built-in
// field types; searchLimit is clamped to 1..MaxSearchLimit.
func NewService(st store.Store, reg *schema.Registry, logger *slog.Logger, searchLimit int) *Service {
	if searchLimit <= 0 || searchLimit > MaxSearchLimit {
		searchLimit = MaxSearchLimit
	}
	return &Service{
		store:       st,
		validator:   schema.NewValidator(reg, storeLookup{st: st}),
		logger:      logger,
		searchLimit: searchLimit,
	}
}

// Validator returns the validator used for schema and metadata checks.
func (s *Service) Validator() *schema.Validator { return s.validator }

// storeLookup resolves reference fields against the store.
type storeLookup struct {
	st store.Store
}

func (l storeLookup) EntityTypeExists(ctx context.Context, id string) (bool, error) {
	_, err := l.st.GetEntityType(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up entity type %s: %w", id, err)
	}
	return true, nil
}

func (l storeLookup) EntityHasType(ctx context.Context, entityID, entityTypeID string) (bool, error) {
	e, err := l.st.GetEntity(ctx, entityID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up entity %s: %w", entityID, err)
	}
	return entityTypeID == "" || e.EntityTypeID() == entityTypeID, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
