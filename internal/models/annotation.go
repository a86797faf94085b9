package models

import "time"

// Span returns text[start:end] counted in Unicode code points. Offsets out of
// range are clamped, so a span past the end of text is empty.
func Span(text string, start, end int) string {
	runes := []rune(text)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

// Annotation anchors the half-open span [StartOffset, EndOffset) of a page's
// text to an entity. AnnotatedText is the span captured at creation and is
// never rewritten.
type Annotation struct {
	ID            string    `json:"id"`
	PageID        string    `json:"page_id"`
	EntityID      string    `json:"entity_id"`
	StartOffset   int       `json:"start_offset"`
	EndOffset     int       `json:"end_offset"`
	AnnotatedText string    `json:"annotated_text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AnnotationRecord is an annotation joined with its entity and entity type.
type AnnotationRecord struct {
	ID                string `json:"id"`
	StartOffset       int    `json:"start_offset"`
	EndOffset         int    `json:"end_offset"`
	AnnotatedText     string `json:"annotated_text"`
	EntityID          string `json:"entity_id"`
	EntityDisplayName string `json:"entity_display_name"`
	EntityTypeID      string `json:"entity_type_id"`
	EntityTypeName    string `json:"entity_type_name"`
	EntityTypeColor   string `json:"entity_type_color"`
	// Drifted is computed from the page text at read time and never stored.
	Drifted bool `json:"drifted"`
}

// InvalidatedAnnotation describes an annotation whose snapshot no longer
// matches the page text at its offsets.
type InvalidatedAnnotation struct {
	ID                string `json:"id"`
	AnnotatedText     string `json:"annotated_text"`
	EntityDisplayName string `json:"entity_display_name"`
	EntityTypeName    string `json:"entity_type_name"`
}

// PageEditResult is returned after a page text edit has been applied.
type PageEditResult struct {
	Saved       bool                    `json:"saved"`
	Invalidated []InvalidatedAnnotation `json:"invalidated_annotations"`
}
