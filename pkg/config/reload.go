package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"fieldgate/pkg/metrics"
	"fieldgate/pkg/xlog"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 200 * time.Millisecond

// Holder holds the current configuration and reloads it when the file changes.
// Readers always see a fully validated Config.
type Holder struct {
	mu      sync.RWMutex
	current *Config
	path    string
	logger  zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []func(*Config)
}

// NewHolder creates a holder for an already loaded configuration.
func NewHolder(initial *Config, path string) *Holder {
	return &Holder{
		current: initial,
		path:    path,
		logger:  xlog.WithComponent(xlog.ComponentConfig),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to be called with every successfully reloaded config.
func (h *Holder) OnReload(fn func(*Config)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload loads and validates the file. On failure the old config is kept.
func (h *Holder) Reload() error {
	h.logger.Info().Str(xlog.FieldEvent, "config.reload_start").Str(xlog.FieldPath, h.path).Msg("reloading configuration")

	cfg, err := Load(h.path)
	if err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("file", "error").Inc()
		h.logger.Error().Err(err).Str(xlog.FieldEvent, "config.reload_failed").Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("file", "error").Inc()
		h.logger.Error().Err(err).Str(xlog.FieldEvent, "config.validation_failed").Msg("new configuration failed validation")
		return fmt.Errorf("validate config: %w", err)
	}

	h.mu.Lock()
	h.current = cfg
	h.mu.Unlock()

	h.listenersMu.RLock()
	listeners := append([]func(*Config){}, h.listeners...)
	h.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(cfg)
	}

	metrics.ConfigReloadsTotal.WithLabelValues("file", "ok").Inc()
	h.logger.Info().Str(xlog.FieldEvent, "config.reload_success").Msg("configuration reloaded successfully")
	return nil
}

// Watch reloads on file changes until ctx is cancelled. It watches the
// parent directory so editors that replace the file are handled.
// With an empty path it returns immediately.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().Str(xlog.FieldEvent, "config.watcher_disabled").Msg("config file watcher disabled (no config file)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(h.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.logger.Info().Str(xlog.FieldEvent, "config.watcher_started").Str(xlog.FieldPath, abs).Msg("watching config file")

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn().Err(err).Str(xlog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		case <-debounce:
			debounce = nil
			_ = h.Reload()
		}
	}
}
