// Package service is the application core shared by the RPC handlers and the
// workflow runners: validate content, persist results, generate
// recommendations and hand off to the enhancer.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"tbcv/internal/cache"
	"tbcv/internal/config"
	"tbcv/internal/enhance"
	"tbcv/internal/events"
	"tbcv/internal/logging"
	"tbcv/internal/recommend"
	"tbcv/internal/rules"
	"tbcv/internal/store"
	"tbcv/internal/types"
	"tbcv/internal/validator"
)

// Service wires the validation pipeline to persistence and caching.
type Service struct {
	cfg       *config.Config
	store     *store.Store
	cache     *cache.Cache
	rules     *rules.Loader
	router    *validator.Router
	generator *recommend.Generator
	enhancer  *enhance.Enhancer
	bus       *events.Bus

	started time.Time
}

// New assembles the service.
func New(cfg *config.Config, st *store.Store, c *cache.Cache, rl *rules.Loader,
	router *validator.Router, gen *recommend.Generator, enh *enhance.Enhancer, bus *events.Bus) *Service {
	return &Service{
		cfg:       cfg,
		store:     st,
		cache:     c,
		rules:     rl,
		router:    router,
		generator: gen,
		enhancer:  enh,
		bus:       bus,
		started:   time.Now(),
	}
}

func (s *Service) Store() *store.Store         { return s.store }
func (s *Service) Cache() *cache.Cache         { return s.cache }
func (s *Service) Rules() *rules.Loader        { return s.rules }
func (s *Service) Enhancer() *enhance.Enhancer { return s.enhancer }

func (s *Service) Generator() *recommend.Generator { return s.generator }

func (s *Service) Router() *validator.Router { return s.router }
func (s *Service) Bus() *events.Bus            { return s.bus }
func (s *Service) Config() *config.Config      { return s.cfg }
func (s *Service) Uptime() time.Duration       { return time.Since(s.started) }

// ValidateContent validates in-memory content, persists the result and
// generates recommendations. validators restricts the run to the named
// validators; empty means all. Identical (content, rules) pairs are served
// from the cache; the persisted validation is always fresh.
func (s *Service) ValidateContent(ctx context.Context, filePath string, family types.Family, content string, validators []string) (*types.Validation, error) {
	if family == "" {
		family = types.FamilyGeneric
	}

	names := s.selectedNames(validators)
	contentHash := types.HashContent(content)
	ruleHash := s.rules.RuleHash(names, family)
	key := cache.ValidationKey(ruleHash, contentHash)

	var report *types.ValidationReport
	if data, ok := s.cache.Get(ctx, key); ok {
		var cached types.ValidationReport
		if json.Unmarshal(data, &cached) == nil {
			report = &cached
			logging.Cache("Validation cache hit for %s", filePath)
		}
	}
	if report == nil {
		report = s.router.Run(ctx, filePath, family, content, validators)
		if data, err := json.Marshal(report); err == nil {
			ttl := s.defaultTTL()
			s.cache.Set(ctx, key, data, ttl, []string{cache.TagConfigChange, cache.TagContent})
		}
	}

	now := time.Now().UTC()
	v := &types.Validation{
		ID:              uuid.NewString(),
		FilePath:        filePath,
		Family:          family,
		ContentHash:     contentHash,
		Status:          types.ValidationPending,
		Severity:        report.MaxSeverity(),
		RulesApplied:    s.appliedRules(family, names),
		Report:          report,
		OriginalContent: content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateValidation(ctx, v); err != nil {
		return nil, err
	}

	if _, err := s.generator.Generate(ctx, v); err != nil {
		logging.Get(logging.CategoryRecommend).Error("Recommendation generation for %s: %v", v.ID, err)
	}
	return v, nil
}

// ValidateFile reads and validates a file on disk.
func (s *Service) ValidateFile(ctx context.Context, path string, family types.Family, validators []string) (*types.Validation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s.ValidateContent(ctx, path, family, string(data), validators)
}

// Revalidate runs a fresh validation of the file behind an existing
// validation; the old record is untouched.
func (s *Service) Revalidate(ctx context.Context, validationID string) (*types.Validation, error) {
	old, err := s.store.GetValidation(ctx, validationID)
	if err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(old.FilePath); err == nil {
		return s.ValidateContent(ctx, old.FilePath, old.Family, string(data), nil)
	}
	// File gone; revalidate the stored content.
	return s.ValidateContent(ctx, old.FilePath, old.Family, old.OriginalContent, nil)
}

// AutoEnhance previews and applies a validation's approved recommendations
// in one step. Used by batch enhancement.
func (s *Service) AutoEnhance(ctx context.Context, validationID string, force bool) (*types.EnhancementRecord, error) {
	preview, err := s.enhancer.Preview(ctx, validationID, nil, types.DefaultPreservationRules())
	if err != nil {
		return nil, err
	}
	return s.enhancer.Apply(ctx, preview.PreviewID, force, "workflow")
}

// selectedNames narrows the registered validator names to the requested
// subset, keeping tier order. Unknown names are dropped; empty means all.
func (s *Service) selectedNames(validators []string) []string {
	all := s.router.ValidatorNames()
	if len(validators) == 0 {
		return all
	}
	wanted := make(map[string]bool, len(validators))
	for _, name := range validators {
		wanted[name] = true
	}
	out := make([]string, 0, len(validators))
	for _, name := range all {
		if wanted[name] {
			out = append(out, name)
		}
	}
	return out
}

// appliedRules snapshots the per-validator fingerprints recorded on the
// validation for later audit.
func (s *Service) appliedRules(family types.Family, names []string) map[string]string {
	out := make(map[string]string)
	for _, name := range names {
		out[name] = types.HashContent(s.rules.Resolve(name, family).Fingerprint())
	}
	return out
}

func (s *Service) defaultTTL() time.Duration {
	d, err := time.ParseDuration(s.cfg.Cache.DefaultTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
