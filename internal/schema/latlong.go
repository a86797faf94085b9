package schema

import "context"

// LatLongField holds a geographic coordinate {lat, long}.
type LatLongField struct{ baseField }

// NewLatLongField returns the latlong field implementation.
func NewLatLongField() FieldType { return LatLongField{baseField{tag: TypeLatLong}} }

func (LatLongField) Validate(_ context.Context, value any, def Definition, _ Lookup) error {
	if value == nil {
		return nil
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return fieldErrorf(def, "must be an object with 'lat' and 'long'")
	}
	rawLat, hasLat := obj["lat"]
	rawLong, hasLong := obj["long"]
	if !hasLat || !hasLong {
		return fieldErrorf(def, "must be an object with 'lat' and 'long'")
	}
	lat, latOK := toFloat(rawLat)
	long, longOK := toFloat(rawLong)
	if !latOK || !longOK {
		return fieldErrorf(def, "lat/long must be numeric")
	}
	if !(lat >= -90 && lat <= 90) {
		return fieldErrorf(def, "latitude must be between -90 and 90")
	}
	if !(long >= -180 && long <= 180) {
		return fieldErrorf(def, "longitude must be between -180 and 180")
	}
	return nil
}
