package engine

import (
	"bytes"
)

// FilterProcessor drops records containing any of its block words.
type FilterProcessor struct {
	name       string
	blockBytes [][]byte // pre-converted so Process does not allocate
}

func NewFilterProcessor(name string, blockWords []string) *FilterProcessor {
	bb := make([][]byte, 0, len(blockWords))
	for _, w := range blockWords {
		if w == "" {
			// an empty word would match every record
			continue
		}
		bb = append(bb, []byte(w))
	}
	return &FilterProcessor{
		name:       name,
		blockBytes: bb,
	}
}

func (f *FilterProcessor) Name() string {
	return f.name
}

func (f *FilterProcessor) Process(_ *ProcessingContext, entry []byte) ([]byte, bool, error) {
	// O(N*M); fine for the handful of words a rule carries.
	for _, word := range f.blockBytes {
		if bytes.Contains(entry, word) {
			return entry, true, nil
		}
	}
	return entry, false, nil
}
