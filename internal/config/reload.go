// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clusterman/clusterman/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder holds the pool configuration with atomic reloading capability.
// It provides thread-safe access and supports hot reloading from file
// (via fsnotify) or manual trigger through the API.
type Holder struct {
	mu         sync.RWMutex
	current    PoolConfig
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	listenerMu sync.RWMutex
	listeners  []chan<- PoolConfig
}

// NewHolder creates a configuration holder with an initial pool config.
func NewHolder(initial PoolConfig, configPath string) *Holder {
	return &Holder{
		current:    initial,
		configPath: configPath,
		logger:     log.WithComponent("config"),
	}
}

// Get returns the current pool configuration.
func (h *Holder) Get() PoolConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Subscribe registers a channel that receives the new pool configuration
// after every successful reload. The channel must be serviced promptly;
// notifications to a full channel are dropped.
func (h *Holder) Subscribe(ch chan<- PoolConfig) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

// Reload re-reads the pool configuration from file and validates it. On any
// failure the old configuration is kept, so the swap is all-or-nothing.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading pool configuration")

	newCfg, err := LoadPoolConfig(h.configPath)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new pool configuration")
		return fmt.Errorf("load pool config: %w", err)
	}

	h.mu.Lock()
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("pool configuration reloaded")
	return nil
}

func (h *Holder) notifyListeners(cfg PoolConfig) {
	h.listenerMu.RLock()
	defer h.listenerMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str("event", "config.listener_skipped").
				Msg("config listener channel full, notification dropped")
		}
	}
}

// StartWatcher watches the pool config file for changes and reloads it.
// A no-op when no config path was given (defaults-only configuration).
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("pool config watcher disabled (no config file)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch pool config file: %w", err)
	}

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str("path", h.configPath).
		Msg("watching pool config file")

	go h.watchLoop(ctx)
	return nil
}

// watchLoop debounces write events; editors commonly emit several events per
// save, and some replace the file entirely.
func (h *Holder) watchLoop(ctx context.Context) {
	defer func() {
		if h.watcher != nil {
			_ = h.watcher.Close()
		}
	}()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().
						Err(err).
						Str("event", "config.watch_reload_failed").
						Msg("pool config reload after file change failed")
				}
				// A rename replaces the inode; re-arm the watch.
				_ = h.watcher.Add(h.configPath)
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn().
				Err(err).
				Str("event", "config.watch_error").
				Msg("pool config watcher error")
		}
	}
}
