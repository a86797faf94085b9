package store

import (
	"strings"

	"github.com/ajitpratap0/entitext/internal/models"
)

// matchesQuery reports whether the entity's display name contains query,
// ignoring case.
func matchesQuery(e *models.Entity, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.DisplayName()), strings.ToLower(query))
}
