package config

import "sync"

// Holder provides concurrency-safe access to a Config that can be
// reloaded at runtime. Readers always see a complete config; a failed
// reload preserves the previous one.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded config with its source path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get returns the current config snapshot.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload re-runs the full load hierarchy from the stored path and swaps
// the config in atomically. On error the old config stays in effect.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}
