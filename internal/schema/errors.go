package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFieldType is matched by every *UnknownFieldTypeError.
var ErrUnknownFieldType = errors.New("unknown field type")

// UnknownFieldTypeError reports a type tag the registry cannot resolve.
type UnknownFieldTypeError struct {
	Type string
}

func (e *UnknownFieldTypeError) Error() string {
	return fmt.Sprintf("unknown field type: %q", e.Type)
}

// Is makes errors.Is(err, ErrUnknownFieldType) hold.
func (e *UnknownFieldTypeError) Is(target error) bool {
	return target == ErrUnknownFieldType
}

// DefinitionError rejects a malformed schema. Index is the position of the
// offending definition, or -1 when the problem concerns the schema as a whole.
type DefinitionError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("invalid schema")
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": field #%d", e.Index)
		if e.Field != "" {
			fmt.Fprintf(&b, " (%s)", e.Field)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// FieldError is a single field value failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

func fieldErrorf(def Definition, format string, args ...any) *FieldError {
	return &FieldError{Field: def.Name(), Reason: fmt.Sprintf(format, args...)}
}

// FieldErrors collects every independent field failure of one metadata
// instance, in schema order.
type FieldErrors []*FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Error()
	}
	return "metadata validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (fe FieldErrors) Unwrap() []error {
	out := make([]error, len(fe))
	for i, e := range fe {
		out[i] = e
	}
	return out
}

// Map returns field name -> reason. When a field failed more than once the
// first reason wins.
func (fe FieldErrors) Map() map[string]string {
	m := make(map[string]string, len(fe))
	for _, e := range fe {
		if _, ok := m[e.Field]; !ok {
			m[e.Field] = e.Reason
		}
	}
	return m
}

// LookupError wraps a failure of the Lookup itself (storage unavailable,
// cancelled context). It is never a verdict about the data and always aborts
// validation.
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string { return e.Err.Error() }

func (e *LookupError) Unwrap() error { return e.Err }
