// Package app assembles the full TBCV stack: config, logging, store, cache,
// rules, truth data, validators, enhancer, workflows and the RPC server.
package app

import (
	"context"
	"fmt"
	"time"

	"tbcv/internal/cache"
	"tbcv/internal/config"
	"tbcv/internal/embedding"
	"tbcv/internal/enhance"
	"tbcv/internal/events"
	"tbcv/internal/llm"
	"tbcv/internal/logging"
	"tbcv/internal/recommend"
	"tbcv/internal/rpc"
	"tbcv/internal/rules"
	"tbcv/internal/service"
	"tbcv/internal/store"
	"tbcv/internal/truth"
	"tbcv/internal/validator"
	"tbcv/internal/workflow"
)

// App is the assembled application.
type App struct {
	Config  *config.Config
	Store   *store.Store
	Cache   *cache.Cache
	Bus     *events.Bus
	Rules   *rules.Loader
	Truth   *truth.Index
	Service *service.Service
	Engine  *workflow.Engine
	Server  *rpc.Server

	rulesWatch *rules.Watcher
	truthWatch *truth.Watcher
	cfgSub     *events.Subscription
}

// Options tunes assembly for different entry points.
type Options struct {
	// ConfigPath is the tbcv.yaml location; empty uses defaults plus env.
	ConfigPath string
	// Watch enables the rules and truth file watchers.
	Watch bool
	// SkipRecovery skips crash recovery; tests use this.
	SkipRecovery bool
}

// New builds and starts the application.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.DataDir, cfg.Logging.DebugMode, cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bus := events.NewBus()
	c := cache.New(cfg.Cache.L1Capacity, st)

	ruleLoader, err := rules.NewLoader(cfg.RulesDir())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	// The embedding engine is optional; semantic truth lookup degrades to
	// alias matching without it.
	embedder, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logging.Get(logging.CategoryTruth).Warn("Embedding engine unavailable: %v", err)
		embedder = nil
	}

	index := truth.NewIndex(embedder, cfg.Embedding.CosineThreshold)
	truthLoader := truth.NewLoader(cfg.TruthDir(), index)
	if err := truthLoader.Reload(); err != nil {
		logging.Get(logging.CategoryTruth).Warn("Truth data load: %v", err)
	}

	client := llm.NewClient(cfg.LLM)
	router := validator.NewPipeline(ruleLoader, index, client, cfg)

	var critic recommend.Critic
	if lc := recommend.NewLLMCritic(client); lc != nil {
		critic = lc
	}
	generator := recommend.NewGenerator(st, critic)
	enhancer := enhance.NewEnhancer(st, bus, cfg.Enhance)

	svc := service.New(cfg, st, c, ruleLoader, router, generator, enhancer, bus)

	engine := workflow.NewEngine(st, bus, cfg.Workflow, cfg.MaintenanceMode)
	engine.Register(workflow.NewValidateFileRunner(svc))
	engine.Register(workflow.NewValidateFolderRunner(svc))
	engine.Register(workflow.NewBatchValidationRunner(svc))
	engine.Register(workflow.NewBatchEnhancementRunner(svc))

	a := &App{
		Config:  cfg,
		Store:   st,
		Cache:   c,
		Bus:     bus,
		Rules:   ruleLoader,
		Truth:   index,
		Service: svc,
		Engine:  engine,
		Server:  rpc.NewServer(svc, engine, index, truthLoader, client, embedder),
	}

	if !opts.SkipRecovery {
		a.recover(ctx, enhancer)
	}

	// Rule reloads obsolete cached validation reports whether or not the
	// reload came from the file watcher.
	a.cfgSub = invalidateOnConfigChange(bus, c)

	if opts.Watch {
		if rw, werr := rules.NewWatcher(cfg.RulesDir(), ruleLoader, bus); werr == nil {
			if werr = rw.Start(); werr == nil {
				a.rulesWatch = rw
			}
		}
		if tw, werr := truth.NewWatcher(truthLoader, bus, c); werr == nil {
			if werr = tw.Start(); werr == nil {
				a.truthWatch = tw
			}
		}
	}
	return a, nil
}

// recover finalizes or reverses enhancements interrupted mid-commit and
// demotes interrupted workflows to paused so they resume from checkpoints.
func (a *App) recover(ctx context.Context, enhancer *enhance.Enhancer) {
	finalized, reversed, err := enhancer.RecoverPending(ctx)
	if err != nil {
		logging.Get(logging.CategoryEnhance).Error("Pending-commit recovery: %v", err)
	} else if finalized+reversed > 0 {
		logging.Enhance("Recovered pending commits: %d finalized, %d reversed", finalized, reversed)
	}
	demoted, err := a.Engine.RecoverInterrupted(ctx)
	if err != nil {
		logging.Get(logging.CategoryWorkflow).Error("Workflow recovery: %v", err)
	} else if demoted > 0 {
		logging.Workflow("Demoted %d interrupted workflows to paused", demoted)
	}
}

// invalidateOnConfigChange drops config-tagged cache entries whenever a
// config.changed event is published. The goroutine exits when the
// subscription closes.
func invalidateOnConfigChange(bus *events.Bus, c *cache.Cache) *events.Subscription {
	sub := bus.Subscribe(events.TopicConfigChanged)
	go func() {
		for ev := range sub.C {
			n := c.Invalidate(context.Background(), []string{cache.TagConfigChange})
			logging.Cache("Config change (%v): invalidated %d entries", ev.Payload["file"], n)
		}
	}()
	return sub
}

// Close shuts everything down in dependency order.
func (a *App) Close() {
	if a.rulesWatch != nil {
		a.rulesWatch.Stop()
	}
	if a.cfgSub != nil {
		a.cfgSub.Unsubscribe()
	}
	if a.truthWatch != nil {
		a.truthWatch.Stop()
	}
	a.Engine.Shutdown(30 * time.Second)
	if err := a.Store.Close(); err != nil {
		logging.Get(logging.CategoryStore).Error("Store close: %v", err)
	}
	logging.CloseAll()
}
