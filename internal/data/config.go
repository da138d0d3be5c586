package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

// configReloadDelay is the quiet period before an external edit is reloaded
const configReloadDelay = 500 * time.Millisecond

// ConfigRepo implements the Config repository on a JSON file
type ConfigRepo struct {
	mu        sync.RWMutex
	path      string
	storeName string
	cfg       *domain.BotConfig
	written   []byte // last bytes persisted by this process
	log       *logger.Logger
}

var _ repo.ConfigRepo = (*ConfigRepo)(nil)

// NewConfigRepo loads path, creating it with defaults when missing
func NewConfigRepo(path, storeName string, log *logger.Logger) (*ConfigRepo, error) {
	r := &ConfigRepo{
		path:      path,
		storeName: storeName,
		log:       logger.OrGlobal(log).Component("config"),
	}

	cfg, err := r.load()
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = domain.DefaultBotConfig(storeName)
		if err := r.persist(cfg); err != nil {
			return nil, err
		}
		r.log.Info("Created default config", zap.String("path", path))
	case err != nil:
		r.log.Warn("Invalid config file, using defaults", zap.String("path", path), zap.Error(err))
		cfg = domain.DefaultBotConfig(storeName)
	}
	r.cfg = cfg
	return r, nil
}

// Get returns a snapshot of the in-memory config
func (r *ConfigRepo) Get() *domain.BotConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Clone()
}

// Save deep-merges partial into the current config and persists it
func (r *ConfigRepo) Save(ctx context.Context, partial map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, err := toMap(r.cfg)
	if err != nil {
		return err
	}
	merged := mergeDeep(base, partial)
	normalizeOptionNumbers(merged)

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	next, err := r.decode(data)
	if err != nil {
		return err
	}
	return r.commitLocked(next)
}

// Update applies fn to a copy of the config, validates and persists it
func (r *ConfigRepo) Update(ctx context.Context, fn func(cfg *domain.BotConfig) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cfg.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.Sanitize()
	if err := next.Validate(); err != nil {
		return err
	}
	return r.commitLocked(next)
}

// Reload re-reads the config file
func (r *ConfigRepo) Reload(ctx context.Context) error {
	cfg, err := r.load()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	r.log.Info("Config reloaded", zap.String("path", r.path))
	return nil
}

// Watch reloads the file after external edits until ctx is done
func (r *ConfigRepo) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	target := filepath.Clean(r.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(configReloadDelay, func() {
				r.reloadIfChanged(ctx)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (r *ConfigRepo) reloadIfChanged(ctx context.Context) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	r.mu.RLock()
	own := bytes.Equal(data, r.written)
	r.mu.RUnlock()
	if own {
		return
	}
	if err := r.Reload(ctx); err != nil {
		r.log.Warn("Ignoring invalid external config edit", zap.Error(err))
	}
}

func (r *ConfigRepo) commitLocked(next *domain.BotConfig) error {
	if err := r.persist(next); err != nil {
		return err
	}
	r.cfg = next
	return nil
}

func (r *ConfigRepo) load() (*domain.BotConfig, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	return r.decode(data)
}

// decode parses, sanitizes and validates a config document
func (r *ConfigRepo) decode(data []byte) (*domain.BotConfig, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: "JSON inválido: " + err.Error(), Err: domain.ErrInvalidConfig}
	}
	normalizeOptionNumbers(raw)
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	var cfg domain.BotConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error(), Err: domain.ErrInvalidConfig}
	}
	if cfg.StoreName == "" {
		cfg.StoreName = r.storeName
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// persist writes cfg atomically (temp file + rename)
func (r *ConfigRepo) persist(cfg *domain.BotConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	r.written = data
	return nil
}

func toMap(cfg *domain.BotConfig) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return m, nil
}

// mergeDeep merges src into dst: objects merge recursively, everything else replaces
func mergeDeep(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = mergeDeep(dv, sv)
			continue
		}
		dst[k] = v
	}
	return dst
}

// normalizeOptionNumbers turns numeric menu option numbers into strings
func normalizeOptionNumbers(m map[string]any) {
	menu, ok := m["menu"].(map[string]any)
	if !ok {
		return
	}
	options, ok := menu["options"].([]any)
	if !ok {
		return
	}
	for _, o := range options {
		op, ok := o.(map[string]any)
		if !ok {
			continue
		}
		if n, ok := op["number"].(float64); ok {
			op["number"] = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
}
