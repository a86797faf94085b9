// Package schema implements the user-authored field type system behind entity
// types: a fixed set of field kinds, a registry that resolves a type tag to its
// implementation, and validators for both schema definitions and the metadata
// instances that conform to them.
package schema

import (
	"encoding/json"
	"fmt"
)

// Built-in field type tags.
const (
	TypeText      = "text"
	TypeNumber    = "number"
	TypeDate      = "date"
	TypeLatLong   = "latlong"
	TypeDropdown  = "dropdown"
	TypeBool      = "bool"
	TypeReference = "reference"
)

// DisplayNameField is the field every schema must declare exactly once.
const DisplayNameField = "display_name"

// Definition keys shared by every field type.
const (
	KeyName     = "name"
	KeyLabel    = "label"
	KeyType     = "type"
	KeyRequired = "required"

	KeyChoices            = "choices"
	KeyTargetEntityTypeID = "target_entity_type_id"
)

// Definition is one field definition as authored by a project owner. It is
// kept as a plain JSON object so unknown extra keys survive a round trip.
type Definition map[string]any

// Name returns the field name, or "" when absent or not a string.
func (d Definition) Name() string { return d.str(KeyName) }

// Label returns the human-readable label.
func (d Definition) Label() string { return d.str(KeyLabel) }

// Type returns the type tag.
func (d Definition) Type() string { return d.str(KeyType) }

// Required reports whether the definition marks the field as required.
func (d Definition) Required() bool {
	b, _ := d[KeyRequired].(bool)
	return b
}

// Choices returns the dropdown choices, or nil when absent or not a list.
func (d Definition) Choices() []any {
	list, _ := asList(d[KeyChoices])
	return list
}

// TargetEntityTypeID returns the entity type a reference field points to.
func (d Definition) TargetEntityTypeID() string {
	switch v := d[KeyTargetEntityTypeID].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (d Definition) str(key string) string {
	s, _ := d[key].(string)
	return s
}

// Schema is the ordered list of field definitions of an entity type.
type Schema []Definition

// Field returns the first definition with the given name.
func (s Schema) Field(name string) (Definition, bool) {
	for _, def := range s {
		if def.Name() == name {
			return def, true
		}
	}
	return nil, false
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for _, def := range s {
		names = append(names, def.Name())
	}
	return names
}

// Parse decodes a JSON document into a Schema. Structural problems (not a
// list, an entry that is not an object) are reported as *DefinitionError.
func Parse(data []byte) (Schema, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DefinitionError{Index: -1, Reason: fmt.Sprintf("schema is not valid JSON: %v", err)}
	}
	return Decode(raw)
}

// Decode converts a generically decoded value (from JSON or YAML) into a
// Schema. The value must be a list of objects.
func Decode(raw any) (Schema, error) {
	list, ok := asList(raw)
	if !ok {
		return nil, &DefinitionError{Index: -1, Reason: "schema must be a list of field definitions"}
	}
	out := make(Schema, 0, len(list))
	for i, item := range list {
		obj, ok := asObject(item)
		if !ok {
			return nil, &DefinitionError{Index: i, Reason: "field definition must be an object"}
		}
		out = append(out, Definition(obj))
	}
	return out, nil
}

// asList accepts the list shapes produced by encoding/json, yaml.v3 and Go
// callers building definitions by hand.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case []Definition:
		out := make([]any, len(l))
		for i := range l {
			out[i] = map[string]any(l[i])
		}
		return out, true
	case Schema:
		return asList([]Definition(l))
	default:
		return nil, false
	}
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Definition:
		return o, true
	default:
		return nil, false
	}
}
