package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Validator validates schemas and the metadata instances conforming to them.
type Validator struct {
	registry *Registry
	lookup   Lookup
}

// NewValidator creates a Validator. A nil registry means DefaultRegistry.
func NewValidator(reg *Registry, lk Lookup) *Validator {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Validator{registry: reg, lookup: lk}
}

// Registry returns the registry the validator resolves types with.
func (v *Validator) Registry() *Registry { return v.registry }

// ValidateSchema checks a schema as a whole and returns the first violation
// as *DefinitionError. A *LookupError is returned unchanged.
func (v *Validator) ValidateSchema(ctx context.Context, s Schema) error {
	if s == nil {
		return &DefinitionError{Index: -1, Reason: "schema must be a list of field definitions"}
	}

	seen := make(map[string]int, len(s))
	for i, def := range s {
		name, ok := def[KeyName].(string)
		if !ok {
			continue
		}
		if first, dup := seen[name]; dup {
			return &DefinitionError{Index: i, Field: name, Reason: fmt.Sprintf("duplicate field name (first defined at #%d)", first)}
		}
		seen[name] = i
	}
	if _, ok := seen[DisplayNameField]; !ok {
		return &DefinitionError{Index: -1, Reason: fmt.Sprintf("schema must define a %q field", DisplayNameField)}
	}

	for i, def := range s {
		rawType, ok := def[KeyType]
		if !ok {
			return &DefinitionError{Index: i, Field: def.Name(), Reason: fmt.Sprintf("missing %q in field definition", KeyType)}
		}
		tag, _ := rawType.(string)
		ft, err := v.registry.Resolve(tag)
		if err != nil {
			return &DefinitionError{Index: i, Field: def.Name(), Reason: err.Error(), Err: err}
		}
		if err := ft.CleanDefinition(ctx, def, v.lookup); err != nil {
			var lookupErr *LookupError
			if errors.As(err, &lookupErr) {
				return lookupErr
			}
			return &DefinitionError{Index: i, Field: def.Name(), Reason: err.Error(), Err: err}
		}
	}
	return nil
}

// ValidateMetadata checks metadata against s and reports every failing field
// as FieldErrors. A schema without display_name yields *DefinitionError; a
// type tag the registry cannot resolve yields *UnknownFieldTypeError. Both
// abort validation, as does a *LookupError.
func (v *Validator) ValidateMetadata(ctx context.Context, s Schema, metadata map[string]any) error {
	if _, ok := s.Field(DisplayNameField); !ok {
		return &DefinitionError{Index: -1, Reason: fmt.Sprintf("schema must define a %q field", DisplayNameField)}
	}

	var errs FieldErrors
	for _, def := range s {
		name := def.Name()
		ft, err := v.registry.Resolve(def.Type())
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}

		value := metadata[name]
		if name == DisplayNameField && isBlank(value) {
			errs = append(errs, &FieldError{Field: name, Reason: "display name is required"})
			continue
		}
		if def.Required() && value == nil {
			errs = append(errs, &FieldError{Field: name, Reason: "this field is required"})
			continue
		}

		if err := ft.Validate(ctx, value, def, v.lookup); err != nil {
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				return err
			}
			errs = append(errs, fieldErr)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// SerializeMetadata runs each schema field's Serialize over metadata. Keys
// the schema does not declare are copied unchanged.
func (v *Validator) SerializeMetadata(s Schema, metadata map[string]any) (map[string]any, error) {
	return v.transform(s, metadata, FieldType.Serialize)
}

// DeserializeMetadata is the inverse of SerializeMetadata.
func (v *Validator) DeserializeMetadata(s Schema, metadata map[string]any) (map[string]any, error) {
	return v.transform(s, metadata, FieldType.Deserialize)
}

func (v *Validator) transform(s Schema, metadata map[string]any, fn func(FieldType, any) any) (map[string]any, error) {
	out := make(map[string]any, len(metadata))
	for k, val := range metadata {
		out[k] = val
	}
	for _, def := range s {
		name := def.Name()
		val, ok := metadata[name]
		if !ok {
			continue
		}
		ft, err := v.registry.Resolve(def.Type())
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = fn(ft, val)
	}
	return out, nil
}
