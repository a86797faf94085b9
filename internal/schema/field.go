package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Lookup answers the existence questions reference fields need. The store
// layer provides the implementation.
type Lookup interface {
	// EntityTypeExists reports whether an entity type with the given ID exists.
	EntityTypeExists(ctx context.Context, entityTypeID string) (bool, error)

	// EntityHasType reports whether the entity exists and belongs to the
	// given entity type. An empty entityTypeID matches any type.
	EntityHasType(ctx context.Context, entityID, entityTypeID string) (bool, error)
}

// FieldType is implemented by every field kind.
type FieldType interface {
	// Tag is the value of the "type" key this implementation handles.
	Tag() string

	// CleanDefinition checks the structure of a definition (not a value).
	CleanDefinition(ctx context.Context, def Definition, lk Lookup) error

	// Validate checks a concrete value. A nil value is always accepted;
	// required-ness is enforced by the metadata validator.
	Validate(ctx context.Context, value any, def Definition, lk Lookup) error

	// Serialize converts a value to its stored representation.
	Serialize(value any) any

	// Deserialize converts a stored value back to its working representation.
	Deserialize(value any) any
}

// baseField carries the behaviour shared by all field kinds.
type baseField struct {
	tag string
}

func (b baseField) Tag() string { return b.tag }

func (b baseField) CleanDefinition(_ context.Context, def Definition, _ Lookup) error {
	return b.cleanCommon(def)
}

func (b baseField) cleanCommon(def Definition) error {
	for _, key := range []string{KeyName, KeyLabel, KeyType} {
		if _, ok := def[key]; !ok {
			return fmt.Errorf("missing %q in field definition", key)
		}
	}
	if def.Type() != b.tag {
		return fmt.Errorf("field definition type %v does not match registered field %q", def[KeyType], b.tag)
	}
	if _, ok := def[KeyName].(string); !ok {
		return fmt.Errorf("field %q must be a string", KeyName)
	}
	if _, ok := def[KeyLabel].(string); !ok {
		return fmt.Errorf("field %q must be a string", KeyLabel)
	}
	if v, ok := def[KeyRequired]; ok {
		if _, isBool := v.(bool); !isBool {
			return fmt.Errorf("%q must be a boolean if provided", KeyRequired)
		}
	}
	return nil
}

func (baseField) Serialize(value any) any { return value }

func (baseField) Deserialize(value any) any { return value }

// toFloat returns the numeric value of v. Booleans are not numbers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// sameValue compares two decoded JSON values. Numbers compare by value so a
// YAML int matches a JSON float; everything else compares structurally.
func sameValue(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}
