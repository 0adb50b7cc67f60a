package engine

import (
	"context"
)

// ProcessingContext holds per-worker state passed to processors.
// It may be nil in direct calls; processors fall back to context.Background.
type ProcessingContext struct {
	context.Context
}
