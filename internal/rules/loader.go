package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"tbcv/internal/logging"
	"tbcv/internal/types"
)

// Loader loads and caches validator configs from <config_dir>/rules/<name>.yaml.
// Reload swaps the whole map; readers always observe a stable snapshot.
type Loader struct {
	mu      sync.RWMutex
	dir     string
	configs map[string]*ValidatorConfig
}

// NewLoader creates a loader rooted at dir and performs the initial load.
// A missing directory is not an error; validators fall back to built-in
// defaults.
func NewLoader(dir string) (*Loader, error) {
	l := &Loader{dir: dir, configs: make(map[string]*ValidatorConfig)}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads every config file under the rules directory.
func (l *Loader) Reload() error {
	timer := logging.StartTimer(logging.CategoryRules, "Reload")
	defer timer.Stop()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryRules).Warn("Rules directory %s missing; using defaults", l.dir)
			return nil
		}
		return fmt.Errorf("failed to read rules directory: %w", err)
	}

	fresh := make(map[string]*ValidatorConfig)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(l.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryRules).Error("Failed to read %s: %v", path, err)
			continue
		}
		// File shape: a single top-level key naming the validator.
		var doc map[string]*ValidatorConfig
		if err := yaml.Unmarshal(data, &doc); err != nil {
			logging.Get(logging.CategoryRules).Error("Failed to parse %s: %v", path, err)
			continue
		}
		for validator, cfg := range doc {
			if cfg == nil {
				continue
			}
			fresh[validator] = cfg
			logging.Get(logging.CategoryRules).Debug("Loaded config for %s (%d rules, %d profiles)",
				validator, len(cfg.Rules), len(cfg.Profiles))
		}
	}

	l.mu.Lock()
	l.configs = fresh
	l.mu.Unlock()
	logging.Get(logging.CategoryRules).Info("Loaded %d validator configs from %s", len(fresh), l.dir)
	return nil
}

// Config returns the raw config for a validator, or nil when absent.
func (l *Loader) Config(validator string) *ValidatorConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.configs[validator]
}

// Resolve returns the effective rule table for (validator, family). When no
// config file exists the validator's built-in defaults apply (empty table,
// fingerprinted as such).
func (l *Loader) Resolve(validator string, family types.Family) ResolvedRules {
	l.mu.RLock()
	cfg := l.configs[validator]
	l.mu.RUnlock()
	if cfg == nil {
		return ResolvedRules{Validator: validator, Profile: "default", Rules: map[string]Rule{}}
	}
	return cfg.Resolve(validator, family)
}

// Enabled reports whether a validator is enabled at all. Absent config means
// enabled.
func (l *Loader) ValidatorEnabled(validator string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.configs[validator]
	if !ok {
		return true
	}
	return cfg.Enabled
}

// RuleHash returns the combined fingerprint hash of the resolved configs for
// the given validators and family. Part of the validation cache key.
func (l *Loader) RuleHash(validators []string, family types.Family) string {
	var sb strings.Builder
	for _, v := range validators {
		sb.WriteString(l.Resolve(v, family).Fingerprint())
		sb.WriteByte('\n')
	}
	return types.HashContent(sb.String())
}
