package schema

import (
	"fmt"
	"sort"
	"sync"
)

// builtins maps each built-in tag to the constructor of its implementation.
var builtins = map[string]func() FieldType{
	TypeText:      NewTextField,
	TypeNumber:    NewNumberField,
	TypeDate:      NewDateField,
	TypeLatLong:   NewLatLongField,
	TypeDropdown:  NewDropdownField,
	TypeBool:      NewBoolField,
	TypeReference: NewReferenceField,
}

// Registry resolves type tags to field type implementations.
type Registry struct {
	mu    sync.RWMutex
	types map[string]FieldType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]FieldType)}
}

// DefaultRegistry returns a registry holding the seven built-in field types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for tag, ctor := range builtins {
		if err := r.Register(tag, ctor()); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds an implementation under tag. The tag must match the
// implementation's own Tag and must not already be registered.
func (r *Registry) Register(tag string, ft FieldType) error {
	if tag == "" || ft == nil {
		return fmt.Errorf("registering field type: tag and implementation are required")
	}
	if ft.Tag() != tag {
		return fmt.Errorf("registering field type %q: implementation reports tag %q", tag, ft.Tag())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[tag]; exists {
		return fmt.Errorf("registering field type %q: already registered", tag)
	}
	r.types[tag] = ft
	return nil
}

// Resolve returns the implementation for tag, or *UnknownFieldTypeError.
func (r *Registry) Resolve(tag string) (FieldType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ft, ok := r.types[tag]
	if !ok {
		return nil, &UnknownFieldTypeError{Type: tag}
	}
	return ft, nil
}

// Tags lists the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.types))
	for tag := range r.types {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
