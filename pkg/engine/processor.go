package engine

import "fieldgate/pkg/field"

// Processor defines the interface for any component that transforms or filters logs.
type Processor interface {
	// Process applies logic to the entry.
	// It returns the (potentially modified) entry, a bool indicating if the entry should be DROPPED, and any error.
	// If drop is true, the pipeline stops processing this entry.
	// Implementations must not grow entry in place; return a new slice instead.
	Process(ctx *ProcessingContext, entry []byte) ([]byte, bool, error)

	// Name returns the identifier of the processor (for metrics/logging).
	Name() string
}

// FieldSource is implemented by processors that attach static fields.
type FieldSource interface {
	Processor
	Fields() field.List
}

// Fields collects the static fields of every FieldSource in the chain, keyed by processor name.
func (c *ProcessorChain) Fields() map[string]field.List {
	out := make(map[string]field.List)
	for _, p := range c.processors {
		if fs, ok := p.(FieldSource); ok {
			out[fs.Name()] = fs.Fields()
		}
	}
	return out
}
