// Package metrics provides application-level counters using stdlib expvar.
// Counters are exported on the /debug/vars HTTP endpoint served by the API.
package metrics

import "expvar"

// Operation counters.
var (
	EntityTypesSaved       = expvar.NewInt("entitext_entity_types_saved_total")
	EntitiesSaved          = expvar.NewInt("entitext_entities_saved_total")
	ValidationFailures     = expvar.NewInt("entitext_validation_failures_total")
	SearchTotal            = expvar.NewInt("entitext_search_total")
	AnnotationsCreated     = expvar.NewInt("entitext_annotations_created_total")
	AnnotationsDeleted     = expvar.NewInt("entitext_annotations_deleted_total")
	SnapshotRetries        = expvar.NewInt("entitext_snapshot_retries_total")
	PageEdits              = expvar.NewInt("entitext_page_edits_total")
	AnnotationsInvalidated = expvar.NewInt("entitext_annotations_invalidated_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// Add increments the given counter by n.
func Add(counter *expvar.Int, n int) { counter.Add(int64(n)) }
