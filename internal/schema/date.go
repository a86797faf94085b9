package schema

import (
	"context"
	"strings"
	"time"
)

// Date precisions a structured date may carry.
const (
	PrecisionDay            = "day"
	PrecisionMonth          = "month"
	PrecisionYear           = "year"
	PrecisionDecade         = "decade"
	PrecisionQuarterCentury = "quarter_century"
	PrecisionCentury        = "century"
)

var validPrecisions = map[string]bool{
	PrecisionDay:            true,
	PrecisionMonth:          true,
	PrecisionYear:           true,
	PrecisionDecade:         true,
	PrecisionQuarterCentury: true,
	PrecisionCentury:        true,
}

// unknownYearPrefix marks a date whose year is not known ("April 30").
const unknownYearPrefix = "0000-"

// ISO-8601 layouts for the date, time-of-day and UTC offset parts of an
// "iso" value. A time may follow the date after 'T' or a space.
var (
	isoDateLayouts    = []string{"2006-01-02", "20060102"}
	isoClockLayouts   = []string{"15", "15:04", "15:04:05", "1504", "150405"}
	isoSecondsLayouts = []string{"15:04:05", "150405"}
	isoOffsetLayouts  = []string{"-07", "-07:00", "-0700", "-07:00:00"}
)

// DateField holds either a raw string the client could not normalize or a
// structured {iso, precision, original} object.
type DateField struct{ baseField }

// NewDateField returns the date field implementation.
func NewDateField() FieldType { return DateField{baseField{tag: TypeDate}} }

func (DateField) Validate(_ context.Context, value any, def Definition, _ Lookup) error {
	switch v := value.(type) {
	case nil, string:
		return nil
	case map[string]any:
		return validateStructuredDate(v, def)
	default:
		return fieldErrorf(def, "date value must be a string or structured date object")
	}
}

func validateStructuredDate(v map[string]any, def Definition) error {
	iso, _ := v["iso"].(string)
	if iso == "" {
		return fieldErrorf(def, "structured date must include 'iso'")
	}
	precision, _ := v["precision"].(string)
	if !validPrecisions[precision] {
		return fieldErrorf(def, "invalid precision %v: must be one of century, day, decade, month, quarter_century, year", v["precision"])
	}
	if rest, ok := strings.CutPrefix(iso, unknownYearPrefix); ok {
		if _, err := time.Parse("01-02", rest); err != nil {
			return fieldErrorf(def, "'iso' is not a valid date, got %q", iso)
		}
		return nil
	}
	if !parsesAsISO(iso) {
		return fieldErrorf(def, "'iso' must be a valid ISO date string, got %q", iso)
	}
	return nil
}

func parsesAsISO(s string) bool {
	datePart, timePart := s, ""
	if i := strings.IndexAny(s, "Tt "); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
		if timePart == "" {
			return false
		}
	}
	if !matchesAny(isoDateLayouts, datePart) {
		return false
	}
	return timePart == "" || parsesISOTime(timePart)
}

// parsesISOTime accepts hh[:mm[:ss[.fff]]] with an optional Z or ±hh[:mm].
func parsesISOTime(s string) bool {
	clock, offset := s, ""
	if i := strings.IndexAny(s, "Zz+-"); i >= 0 {
		clock, offset = s[:i], s[i:]
	}
	layouts := isoClockLayouts
	if i := strings.IndexAny(clock, ".,"); i >= 0 {
		frac := clock[i+1:]
		if frac == "" || strings.Trim(frac, "0123456789") != "" {
			return false
		}
		clock, layouts = clock[:i], isoSecondsLayouts
	}
	if !matchesAny(layouts, clock) {
		return false
	}
	switch offset {
	case "", "Z", "z":
		return true
	default:
		return matchesAny(isoOffsetLayouts, offset)
	}
}

func matchesAny(layouts []string, s string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
