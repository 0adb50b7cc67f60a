package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"fieldgate/pkg/engine"
	"fieldgate/pkg/field"
	"fieldgate/pkg/lookup"
	"fieldgate/pkg/metrics"
	"fieldgate/pkg/output"
	"fieldgate/pkg/xlog"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// BaseProcessorID names the processor carrying file-configured static fields.
const BaseProcessorID = "static_fields"

// ErrNoManifest is returned by Reload when Redis holds no manifest.
var ErrNoManifest = errors.New("no manifest in redis")

// Options configures a Watcher.
type Options struct {
	ConfigKey string // key holding the manifest JSON
	Channel   string // pub/sub channel that signals a reload
}

// Watcher keeps the pipeline in sync with the manifest stored in Redis and
// with the static fields from the config file. Manifest processors run
// first; file-configured static fields are appended last.
type Watcher struct {
	client   *redis.Client
	pipeline *engine.Pipeline
	ip       *lookup.Interpolator
	opts     Options
	dial     MQTTDialer
	logger   zerolog.Logger

	mu       sync.Mutex
	manifest []engine.Processor
	base     engine.Processor
	outputs  *output.FanOutOutput
}

// NewWatcher creates a watcher. client may be nil to run without a control plane.
func NewWatcher(client *redis.Client, pipeline *engine.Pipeline, ip *lookup.Interpolator, opts Options) *Watcher {
	return &Watcher{
		client:   client,
		pipeline: pipeline,
		ip:       ip,
		opts:     opts,
		dial:     dialMQTT,
		logger:   xlog.WithComponent(xlog.ComponentControl),
	}
}

// SetBaseFields replaces the file-configured static fields and swaps the chain.
func (w *Watcher) SetBaseFields(fields field.List) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(fields) == 0 {
		w.base = nil
	} else {
		w.base = engine.NewStaticFieldsProcessor(BaseProcessorID, fields, w.ip)
	}
	w.swapChainLocked()
}

func (w *Watcher) swapChainLocked() {
	procs := make([]engine.Processor, 0, len(w.manifest)+1)
	procs = append(procs, w.manifest...)
	if w.base != nil {
		procs = append(procs, w.base)
	}
	w.pipeline.UpdateChain(engine.NewProcessorChain(procs...))
}

// Run loads the manifest, then reloads on every message on the channel until
// ctx is cancelled. Without a Redis client it returns immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if w.client == nil {
		w.logger.Info().Str(xlog.FieldEvent, "control.disabled").Msg("control plane disabled")
		return nil
	}
	w.logger.Info().Str(xlog.FieldEvent, "control.started").Str(xlog.FieldChannel, w.opts.Channel).Msg("starting config watcher")

	pubsub := w.client.Subscribe(ctx, w.opts.Channel)
	defer pubsub.Close()

	// Load after subscribing so an update published in between is not lost.
	w.reloadAndLog(ctx)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			w.logger.Info().Str(xlog.FieldEvent, "control.update_signal").Str("payload", msg.Payload).Msg("received update signal")
			w.reloadAndLog(ctx)
		}
	}
}

func (w *Watcher) reloadAndLog(ctx context.Context) {
	err := w.Reload(ctx)
	switch {
	case err == nil:
		metrics.ConfigReloadsTotal.WithLabelValues("redis", "ok").Inc()
	case errors.Is(err, ErrNoManifest):
		metrics.ConfigReloadsTotal.WithLabelValues("redis", "empty").Inc()
		w.logger.Info().Str(xlog.FieldEvent, "control.no_manifest").Msg("no config found in redis, keeping current state")
	default:
		metrics.ConfigReloadsTotal.WithLabelValues("redis", "error").Inc()
		w.logger.Error().Err(err).Str(xlog.FieldEvent, "control.reload_failed").Msg("control plane reload failed")
	}
}

// Reload fetches the manifest and applies its first pipeline.
func (w *Watcher) Reload(ctx context.Context) error {
	val, err := w.client.Get(ctx, w.opts.ConfigKey).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNoManifest
	}
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal([]byte(val), &manifest); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	// Only the first pipeline is applied.
	if len(manifest.Pipelines) == 0 {
		return ErrNoManifest
	}
	w.Apply(manifest.Pipelines[0])
	return nil
}

// Apply swaps in the processors, outputs and batch size of cfg.
func (w *Watcher) Apply(cfg PipelineConfig) {
	processors := BuildProcessors(cfg.Processors, w.ip, w.logger)
	outputs := output.NewFanOutOutput(BuildOutputs(cfg.Outputs, w.dial, w.logger)...)

	w.mu.Lock()
	w.manifest = processors
	w.swapChainLocked()
	previous := w.outputs
	w.outputs = outputs
	w.mu.Unlock()

	// UpdateOutput returns only after any write on previous has finished.
	w.pipeline.UpdateOutput(outputs)
	if previous != nil {
		if err := previous.Close(); err != nil {
			w.logger.Warn().Err(err).Str(xlog.FieldEvent, "control.output_close_failed").Msg("failed to close previous outputs")
		}
	}

	batch := int64(cfg.BatchSize)
	if batch == 0 {
		batch = defaultBatchSize
	}
	w.pipeline.UpdateBatchSize(batch)
}

// Close releases outputs created from the manifest.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.outputs == nil {
		return nil
	}
	err := w.outputs.Close()
	w.outputs = nil
	return err
}
