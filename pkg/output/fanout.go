package output

import (
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// FanOutOutput writes to multiple outputs in parallel.
type FanOutOutput struct {
	outputs []Output
}

func NewFanOutOutput(outputs ...Output) *FanOutOutput {
	return &FanOutOutput{
		outputs: outputs,
	}
}

// Len returns the number of wrapped outputs.
func (f *FanOutOutput) Len() int {
	return len(f.outputs)
}

// WriteBatch writes to every output and returns the first error.
// A failing output does not stop the others.
func (f *FanOutOutput) WriteBatch(entries [][]byte) error {
	if len(f.outputs) == 1 {
		return f.outputs[0].WriteBatch(entries)
	}

	var g errgroup.Group
	for _, out := range f.outputs {
		g.Go(func() error {
			return out.WriteBatch(entries)
		})
	}
	return g.Wait()
}

// Close closes every wrapped output that holds resources.
func (f *FanOutOutput) Close() error {
	var errs []error
	for _, out := range f.outputs {
		if c, ok := out.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
