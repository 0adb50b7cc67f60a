package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fieldgate/pkg/metrics"
	"fieldgate/pkg/output"
	"fieldgate/pkg/xlog"

	"github.com/rs/zerolog"
)

const (
	defaultBatchSize = 100
	flushInterval    = 100 * time.Millisecond
	idleSleep        = time.Millisecond

	// failOpenRatio is the buffer occupancy above which records skip the chain.
	failOpenRatio = 0.80
)

// Pipeline connects the Ingest Buffer -> ProcessorChain -> Output.
type Pipeline struct {
	buffer *RingBuffer
	chain  atomic.Pointer[ProcessorChain] // Hot-swappable chain

	// outMu is held for reading across each WriteBatch, so a swap waits
	// for the write in flight on the previous output.
	outMu  sync.RWMutex
	output *output.FanOutOutput

	batchSize atomic.Int64
	workers   int

	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewPipeline(buf *RingBuffer, chain *ProcessorChain, out output.Output) *Pipeline {
	p := &Pipeline{
		buffer:  buf,
		workers: 1, // single consumer keeps record order
		logger:  xlog.WithComponent(xlog.ComponentPipeline),
	}
	p.batchSize.Store(defaultBatchSize)
	if chain == nil {
		chain = NewProcessorChain()
	}
	p.chain.Store(chain)

	p.output = asFanOut(out)

	return p
}

func asFanOut(out output.Output) *output.FanOutOutput {
	if f, ok := out.(*output.FanOutOutput); ok {
		return f
	}
	return output.NewFanOutOutput(out)
}

// UpdateChain hot-swaps the processor chain safely.
func (p *Pipeline) UpdateChain(chain *ProcessorChain) {
	p.chain.Store(chain)
	p.logger.Info().
		Str(xlog.FieldEvent, "pipeline.chain_swapped").
		Strs("processors", chain.Names()).
		Msg("processor chain hot-swapped")
}

// Chain returns the active processor chain.
func (p *Pipeline) Chain() *ProcessorChain {
	return p.chain.Load()
}

// UpdateOutput hot-swaps the output provider. It returns once no batch is
// being written to the previous output, so the caller may close it.
func (p *Pipeline) UpdateOutput(out output.Output) {
	next := asFanOut(out)
	p.outMu.Lock()
	p.output = next
	p.outMu.Unlock()
	p.logger.Info().
		Str(xlog.FieldEvent, "pipeline.output_swapped").
		Int("outputs", next.Len()).
		Msg("output provider hot-swapped")
}

// writeBatch writes batch to the current output while holding it in place.
func (p *Pipeline) writeBatch(batch [][]byte) error {
	p.outMu.RLock()
	defer p.outMu.RUnlock()
	return p.output.WriteBatch(batch)
}

// UpdateBatchSize changes the flush threshold. Values below 1 reset it to the default.
func (p *Pipeline) UpdateBatchSize(n int64) {
	if n < 1 {
		n = defaultBatchSize
	}
	p.batchSize.Store(n)
}

// BatchSize returns the current flush threshold.
func (p *Pipeline) BatchSize() int64 {
	return p.batchSize.Load()
}

// Start launches the workers. They flush and exit when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.logger.Info().Str(xlog.FieldEvent, "pipeline.started").Int("workers", p.workers).Msg("starting processing pipeline")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

// Wait blocks until every worker has flushed and returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context) {
	batch := make([][]byte, 0, p.BatchSize())
	pCtx := &ProcessingContext{Context: ctx}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.writeBatch(batch); err != nil {
			metrics.OutputErrorsTotal.Inc()
			p.logger.Error().Err(err).Str(xlog.FieldEvent, "pipeline.output_failed").Int(xlog.FieldCount, len(batch)).Msg("output error")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			p.drain(pCtx, &batch)
			flush()
			return
		case <-ticker.C:
			metrics.BufferUsage.Set(float64(p.buffer.Usage()))
			flush()
		default:
			item := p.buffer.Pop()
			if item == nil {
				// TODO: replace the idle sleep with a sync.Cond signalled by Push.
				time.Sleep(idleSleep)
				continue
			}

			if p.overloaded() {
				metrics.BypassedTotal.Inc()
				batch = append(batch, item)
			} else if processed, ok := p.process(pCtx, item); ok {
				batch = append(batch, processed)
			}

			if int64(len(batch)) >= p.BatchSize() {
				flush()
			}
		}
	}
}

// drain moves whatever is left in the buffer into the final batch.
func (p *Pipeline) drain(pCtx *ProcessingContext, batch *[][]byte) {
	for item := p.buffer.Pop(); item != nil; item = p.buffer.Pop() {
		if processed, ok := p.process(pCtx, item); ok {
			*batch = append(*batch, processed)
		}
	}
}

// overloaded reports whether the buffer is past the fail-open threshold.
func (p *Pipeline) overloaded() bool {
	return float64(p.buffer.Usage()) > float64(p.buffer.Capacity())*failOpenRatio
}

func (p *Pipeline) process(pCtx *ProcessingContext, item []byte) ([]byte, bool) {
	metrics.ProcessedTotal.Inc()
	processed, drop, err := p.chain.Load().Process(pCtx, item)
	if err != nil {
		metrics.ProcessErrorsTotal.Inc()
		p.logger.Error().Err(err).Str(xlog.FieldEvent, "pipeline.process_failed").Msg("process error")
		return nil, false
	}
	if drop {
		metrics.FilteredTotal.Inc()
		return nil, false
	}
	return processed, true
}
