package engine

import (
	"bytes"
)

// RedactionProcessor replaces occurrences of a target string with a mask.
type RedactionProcessor struct {
	name   string
	target []byte
	mask   []byte
}

func NewRedactionProcessor(name string, target string, mask string) *RedactionProcessor {
	return &RedactionProcessor{
		name:   name,
		target: []byte(target),
		mask:   []byte(mask),
	}
}

func (r *RedactionProcessor) Name() string {
	return r.name
}

func (r *RedactionProcessor) Process(_ *ProcessingContext, entry []byte) ([]byte, bool, error) {
	if len(r.target) == 0 || !bytes.Contains(entry, r.target) {
		return entry, false, nil
	}
	// ReplaceAll allocates only when there is a match.
	return bytes.ReplaceAll(entry, r.target, r.mask), false, nil
}
