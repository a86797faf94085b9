package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ReferenceField holds the ID of another entity of a fixed entity type.
type ReferenceField struct{ baseField }

// NewReferenceField returns the reference field implementation.
func NewReferenceField() FieldType { return ReferenceField{baseField{tag: TypeReference}} }

func (f ReferenceField) CleanDefinition(ctx context.Context, def Definition, lk Lookup) error {
	if err := f.cleanCommon(def); err != nil {
		return err
	}
	raw, ok := def[KeyTargetEntityTypeID]
	if !ok || raw == nil {
		return errors.New("reference field must define 'target_entity_type_id'")
	}
	target, isString := raw.(string)
	if !isString {
		return errors.New("'target_entity_type_id' must be a UUID string")
	}
	id, err := uuid.Parse(target)
	if err != nil {
		return fmt.Errorf("'target_entity_type_id' is not a valid UUID: %q", target)
	}
	if lk == nil {
		return fmt.Errorf("target EntityType with id %s cannot be verified", id)
	}
	exists, err := lk.EntityTypeExists(ctx, id.String())
	if err != nil {
		return &LookupError{Err: fmt.Errorf("looking up target entity type: %w", err)}
	}
	if !exists {
		return fmt.Errorf("target EntityType with id %s does not exist", id)
	}
	return nil
}

func (ReferenceField) Validate(ctx context.Context, value any, def Definition, lk Lookup) error {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fieldErrorf(def, "must be an entity ID (UUID)")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fieldErrorf(def, "must be an entity ID (UUID)")
	}
	if lk == nil {
		return fieldErrorf(def, "must reference a valid entity of the correct type")
	}
	target := def.TargetEntityTypeID()
	if target != "" {
		if tid, parseErr := uuid.Parse(target); parseErr == nil {
			target = tid.String()
		}
	}
	found, err := lk.EntityHasType(ctx, id.String(), target)
	if err != nil {
		return &LookupError{Err: fmt.Errorf("looking up referenced entity %s: %w", id, err)}
	}
	if !found {
		return fieldErrorf(def, "must reference a valid entity of the correct type")
	}
	return nil
}
