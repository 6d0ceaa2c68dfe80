// Package rules provides the hot-reloadable, file-backed configuration for
// each validator: rules, profiles and per-family overrides.
package rules

import (
	"fmt"
	"sort"

	"tbcv/internal/types"
)

// Rule is one individual check inside a validator config.
type Rule struct {
	Enabled bool             `yaml:"enabled"`
	Level   types.IssueLevel `yaml:"level"`
	Message string           `yaml:"message"`
	Params  map[string]any   `yaml:"params"`
}

// Profile is a named bundle of enabled rules plus overrides.
type Profile struct {
	Rules     []string        `yaml:"rules"`
	Overrides map[string]Rule `yaml:"overrides"`
}

// FamilyOverride selects a profile or overrides rules for one family.
type FamilyOverride struct {
	Profile string          `yaml:"profile"`
	Rules   map[string]Rule `yaml:"rules"`
}

// ValidatorConfig is the on-disk shape of one validator's config file.
type ValidatorConfig struct {
	Enabled         bool                      `yaml:"enabled"`
	Profile         string                    `yaml:"profile"`
	Rules           map[string]Rule           `yaml:"rules"`
	Profiles        map[string]Profile        `yaml:"profiles"`
	FamilyOverrides map[string]FamilyOverride `yaml:"family_overrides"`
}

// ResolvedRules is the effective rule table for one (validator, family) pair.
type ResolvedRules struct {
	Validator string
	Profile   string
	Rules     map[string]Rule
}

// Resolve computes the effective rules for a family: base rules filtered by
// the selected profile, then profile overrides, then family overrides.
func (c *ValidatorConfig) Resolve(validator string, family types.Family) ResolvedRules {
	profileName := c.Profile
	if fo, ok := c.FamilyOverrides[string(family)]; ok && fo.Profile != "" {
		profileName = fo.Profile
	}

	resolved := make(map[string]Rule)
	profile, hasProfile := c.Profiles[profileName]
	if hasProfile && len(profile.Rules) > 0 {
		for _, id := range profile.Rules {
			if r, ok := c.Rules[id]; ok {
				resolved[id] = r
			}
		}
	} else {
		for id, r := range c.Rules {
			resolved[id] = r
		}
	}

	if hasProfile {
		for id, override := range profile.Overrides {
			resolved[id] = mergeRule(resolved[id], override)
		}
	}
	if fo, ok := c.FamilyOverrides[string(family)]; ok {
		for id, override := range fo.Rules {
			resolved[id] = mergeRule(resolved[id], override)
		}
	}

	return ResolvedRules{Validator: validator, Profile: profileName, Rules: resolved}
}

// mergeRule overlays non-zero override fields onto base.
func mergeRule(base, override Rule) Rule {
	out := base
	out.Enabled = override.Enabled
	if override.Level != "" {
		out.Level = override.Level
	}
	if override.Message != "" {
		out.Message = override.Message
	}
	if override.Params != nil {
		if out.Params == nil {
			out.Params = override.Params
		} else {
			merged := make(map[string]any, len(out.Params)+len(override.Params))
			for k, v := range out.Params {
				merged[k] = v
			}
			for k, v := range override.Params {
				merged[k] = v
			}
			out.Params = merged
		}
	}
	return out
}

// Enabled returns the enabled rule for id, or ok=false.
func (r ResolvedRules) Enabled(id string) (Rule, bool) {
	rule, ok := r.Rules[id]
	if !ok || !rule.Enabled {
		return Rule{}, false
	}
	return rule, true
}

// ParamInt reads an integer param with a default.
func (r Rule) ParamInt(name string, def int) int {
	if v, ok := r.Params[name]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

// ParamString reads a string param with a default.
func (r Rule) ParamString(name, def string) string {
	if v, ok := r.Params[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ParamStrings reads a string-list param.
func (r Rule) ParamStrings(name string) []string {
	v, ok := r.Params[name]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Fingerprint is a deterministic digest of the resolved rule table, used in
// validation-result cache keys so config changes invalidate results.
func (r ResolvedRules) Fingerprint() string {
	ids := make([]string, 0, len(r.Rules))
	for id := range r.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s := r.Validator + "|" + r.Profile
	for _, id := range ids {
		rule := r.Rules[id]
		s += fmt.Sprintf("|%s:%v:%s:%s:%v", id, rule.Enabled, rule.Level, rule.Message, rule.Params)
	}
	return s
}
