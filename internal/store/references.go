package store

import (
	"github.com/google/uuid"

	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
)

// referenceFields maps each entity type to the names of its reference fields
// that target targetTypeID. Types whose ID equals skipTypeID are ignored.
func referenceFields(types []models.EntityType, targetTypeID, skipTypeID string) map[string][]string {
	out := make(map[string][]string)
	for _, et := range types {
		if et.ID == skipTypeID {
			continue
		}
		for _, def := range et.Schema {
			if def.Type() == schema.TypeReference && sameID(def.TargetEntityTypeID(), targetTypeID) {
				out[et.ID] = append(out[et.ID], def.Name())
			}
		}
	}
	return out
}

// refersTo reports whether any of fields in metadata holds id.
func refersTo(metadata map[string]any, fields []string, id string) bool {
	for _, f := range fields {
		if v, ok := metadata[f].(string); ok && sameID(v, id) {
			return true
		}
	}
	return false
}

// sameID compares two IDs, treating different spellings of one UUID as equal.
func sameID(a, b string) bool {
	if a == b {
		return true
	}
	ua, errA := uuid.Parse(a)
	ub, errB := uuid.Parse(b)
	return errA == nil && errB == nil && ua == ub
}
