package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TextField holds free text.
type TextField struct{ baseField }

// NewTextField returns the text field implementation.
func NewTextField() FieldType { return TextField{baseField{tag: TypeText}} }

func (TextField) Validate(_ context.Context, value any, def Definition, _ Lookup) error {
	if value == nil {
		return nil
	}
	if _, ok := value.(string); !ok {
		return fieldErrorf(def, "must be a string")
	}
	return nil
}

// Deserialize renders non-string scalars in their string form.
func (TextField) Deserialize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprint(v)
	}
}

// NumberField holds an integer or floating point number.
type NumberField struct{ baseField }

// NewNumberField returns the number field implementation.
func NewNumberField() FieldType { return NumberField{baseField{tag: TypeNumber}} }

func (NumberField) Validate(_ context.Context, value any, def Definition, _ Lookup) error {
	if value == nil {
		return nil
	}
	if _, ok := toFloat(value); !ok {
		return fieldErrorf(def, "must be a number")
	}
	return nil
}

// boolStrings are the HTML form encodings accepted in place of a boolean.
var boolStrings = map[string]bool{
	"true": true, "false": true,
	"1": true, "0": true,
	"yes": true, "no": true,
}

// BoolField holds a boolean checkbox value.
type BoolField struct{ baseField }

// NewBoolField returns the bool field implementation.
func NewBoolField() FieldType { return BoolField{baseField{tag: TypeBool}} }

func (BoolField) Validate(_ context.Context, value any, def Definition, _ Lookup) error {
	switch v := value.(type) {
	case nil, bool:
		return nil
	case string:
		if v == "" || boolStrings[strings.ToLower(v)] {
			return nil
		}
	}
	return fieldErrorf(def, "must be a boolean")
}
