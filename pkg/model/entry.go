package model

import (
	"time"
)

// Event is a single record being emitted by the pipeline, as seen by
// variable lookups.
type Event struct {
	// Timestamp is the time the record was processed.
	Timestamp time.Time

	// Raw is the record as it will be forwarded.
	// Lookups must treat it as read-only.
	Raw []byte

	// Metadata holds values computed for this record (e.g. by earlier
	// lookups) so that repeated references resolve consistently.
	Metadata map[string]string
}

// NewEvent wraps raw for lookup at time ts.
func NewEvent(ts time.Time, raw []byte) *Event {
	return &Event{Timestamp: ts, Raw: raw}
}

// Get returns a memoized metadata value.
func (e *Event) Get(key string) (string, bool) {
	if e == nil || e.Metadata == nil {
		return "", false
	}
	v, ok := e.Metadata[key]
	return v, ok
}

// Set memoizes a metadata value.
func (e *Event) Set(key, value string) {
	if e == nil {
		return
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
}
