package field

import (
	"strings"

	"fieldgate/pkg/xlog"
)

// LookupMarker opens a variable reference inside a field value.
const LookupMarker = "${"

// StaticField is a configured key/value pair attached to every forwarded record.
// The value may contain ${...} references that are resolved per record.
// A StaticField is immutable and safe for concurrent use.
type StaticField struct {
	name        *string
	value       *string
	needsLookup bool
}

// New creates a StaticField. A nil name is reported on the status logger but
// does not prevent construction.
func New(name, value *string) *StaticField {
	if name == nil {
		l := xlog.Status()
		l.Error().Str(xlog.FieldEvent, "field.name_missing").Msg("static field name cannot be null")
	}
	return &StaticField{
		name:        name,
		value:       value,
		needsLookup: value != nil && strings.Contains(*value, LookupMarker),
	}
}

// Of creates a StaticField with both name and value present.
func Of(name, value string) *StaticField {
	return New(&name, &value)
}

// Name returns the field name. ok is false when the name was absent.
func (f *StaticField) Name() (name string, ok bool) {
	if f.name == nil {
		return "", false
	}
	return *f.name, true
}

// Value returns the raw value, or "" when the value was absent.
func (f *StaticField) Value() string {
	if f.value == nil {
		return ""
	}
	return *f.value
}

// NeedsLookup reports whether the value contains a ${ marker.
func (f *StaticField) NeedsLookup() bool {
	return f.needsLookup
}

// String renders the field as name=value for diagnostics. An absent name
// renders as empty ("=value"), not as the word null.
func (f *StaticField) String() string {
	name, _ := f.Name()
	return name + "=" + f.Value()
}
