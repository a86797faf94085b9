package schema

import (
	"context"
	"errors"
)

// DropdownField holds one value out of a fixed list of choices.
type DropdownField struct{ baseField }

// NewDropdownField returns the dropdown field implementation.
func NewDropdownField() FieldType { return DropdownField{baseField{tag: TypeDropdown}} }

func (f DropdownField) CleanDefinition(_ context.Context, def Definition, _ Lookup) error {
	if err := f.cleanCommon(def); err != nil {
		return err
	}
	choices, ok := asList(def[KeyChoices])
	if !ok || len(choices) == 0 {
		return errors.New("dropdown field must define a non-empty 'choices' list")
	}
	return nil
}

func (DropdownField) Validate(_ context.Context, value any, def Definition, _ Lookup) error {
	if value == nil {
		return nil
	}
	for _, c := range def.Choices() {
		if sameValue(value, c) {
			return nil
		}
	}
	return fieldErrorf(def, "must be one of %v", def.Choices())
}
