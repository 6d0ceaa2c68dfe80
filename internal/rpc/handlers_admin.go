package rpc

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tbcv/internal/cache"
	"tbcv/internal/types"
)

func (s *Server) registerAdmin() {
	s.registry.mustRegister(&Method{
		Name:     "get_system_status",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			counts, err := s.svc.Store().GetStats()
			if err != nil {
				return nil, err
			}
			active, _ := s.svc.Store().ListWorkflows(ctx, types.WorkflowRunning, 0)
			return map[string]any{
				"uptime_seconds":   s.svc.Uptime().Seconds(),
				"maintenance_mode": s.engine.Maintenance(),
				"entity_counts":    counts,
				"cache":            s.svc.Cache().Stats(ctx),
				"truth_families":   s.truthIndex.Stats(),
				"llm_available":    s.llm != nil && s.llm.Available(),
				"active_workflows": len(active),
				"methods":          len(s.registry.List()),
			}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "clear_cache",
		Category: "admin",
		Schema: Schema{
			Optional: []Param{{Name: "namespace", Type: TypeString}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			ns := p.String("namespace")
			cleared := s.svc.Cache().Clear(ctx, ns)
			s.audit(ctx, "clear_cache", "cache", ns, "delete", "")
			return map[string]any{"cleared": cleared, "namespace": ns}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_cache_stats",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.svc.Cache().Stats(ctx), nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "cleanup_cache",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			l1, l2 := s.svc.Cache().CleanupExpired(ctx)
			return map[string]any{"l1_cleaned": l1, "l2_cleaned": l2}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "rebuild_cache",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			cleared := s.svc.Cache().Clear(ctx, "")
			if err := s.svc.Rules().Reload(); err != nil {
				return nil, err
			}
			if err := s.truthLoad.Reload(); err != nil {
				return nil, err
			}
			s.audit(ctx, "rebuild_cache", "cache", "", "update", "full clear and reload")
			return map[string]any{"cleared": cleared, "truth_families": s.truthIndex.Stats()}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "reload_agent",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			if err := s.svc.Rules().Reload(); err != nil {
				return nil, err
			}
			if err := s.truthLoad.Reload(); err != nil {
				return nil, err
			}
			invalidated := s.svc.Cache().Invalidate(ctx, []string{cache.TagConfigChange})
			s.audit(ctx, "reload_agent", "config", "", "update", "rules and truth reloaded")
			return map[string]any{
				"rules_reloaded": true,
				"truth_families": s.truthIndex.Stats(),
				"invalidated":    invalidated,
			}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "run_gc",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			l1, l2 := s.svc.Cache().CleanupExpired(ctx)
			expired, err := s.svc.Enhancer().ExpireRollbacks(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"l1_cleaned":        l1,
				"l2_cleaned":        l2,
				"rollbacks_expired": expired,
			}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "enable_maintenance_mode",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			s.engine.SetMaintenance(true)
			s.audit(ctx, "enable_maintenance_mode", "system", "", "update", "")
			return map[string]any{"maintenance_mode": true}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "disable_maintenance_mode",
		Category: "admin",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			s.engine.SetMaintenance(false)
			s.audit(ctx, "disable_maintenance_mode", "system", "", "update", "")
			return map[string]any{"maintenance_mode": false}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "create_checkpoint",
		Category: "admin",
		Schema: Schema{
			Required: []Param{idParam("workflow_id")},
			Optional: []Param{{Name: "name", Type: TypeString, Default: "manual"}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			w, err := s.svc.Store().GetWorkflow(ctx, p.String("workflow_id"))
			if err != nil {
				return nil, err
			}
			// Manual checkpoints are markers, not resume points. Step -1 keeps
			// them out of the runner's step sequence.
			cp := &types.Checkpoint{
				ID:            uuid.NewString(),
				WorkflowID:    w.ID,
				StepNumber:    -1,
				Name:          p.String("name"),
				CanResumeFrom: false,
				CreatedAt:     time.Now().UTC(),
			}
			if err := s.svc.Store().SaveCheckpoint(ctx, cp); err != nil {
				return nil, err
			}
			s.audit(ctx, "create_checkpoint", "workflow", w.ID, "create", cp.Name)
			return cp, nil
		},
	})
}
