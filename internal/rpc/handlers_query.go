package rpc

import (
	"context"
	"time"

	"tbcv/internal/embedding"
	"tbcv/internal/store"
	"tbcv/internal/validator"
)

func (s *Server) registerQuery() {
	s.registry.mustRegister(&Method{
		Name:     "get_stats",
		Category: "query",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			counts, err := s.svc.Store().GetStats()
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"entity_counts":  counts,
				"cache":          s.svc.Cache().Stats(ctx),
				"truth_families": s.truthIndex.Stats(),
				"uptime_seconds": s.svc.Uptime().Seconds(),
			}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_audit_log",
		Category: "query",
		Schema: Schema{
			Optional: []Param{
				{Name: "method", Type: TypeString},
				{Name: "limit", Type: TypeInteger, Default: 100},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			entries, err := s.svc.Store().AuditLog(ctx, p.String("method"), p.Int("limit"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"entries": entries, "count": len(entries)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_performance_report",
		Category: "query",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return map[string]any{
				"methods":        s.dispatcher.Stats(),
				"cache":          s.svc.Cache().Stats(ctx),
				"uptime_seconds": s.svc.Uptime().Seconds(),
			}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_health_report",
		Category: "query",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.healthReport(ctx), nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_validation_history",
		Category: "query",
		Schema: Schema{
			Required: []Param{{Name: "file_path", Type: TypeString}},
			Optional: []Param{{Name: "limit", Type: TypeInteger, Default: 20}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			vs, err := s.svc.Store().ListValidations(ctx, store.ValidationFilter{
				FilePath: p.String("file_path"),
				Limit:    p.Int("limit"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"validations": vs, "count": len(vs)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_available_validators",
		Category: "query",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			names := s.svc.Router().ValidatorNames()
			out := make([]map[string]any, 0, len(names))
			for _, name := range names {
				out = append(out, map[string]any{
					"name":    name,
					"tier":    validator.Tier(name),
					"enabled": s.svc.Rules().ValidatorEnabled(name),
				})
			}
			return map[string]any{"validators": out, "count": len(out)}, nil
		},
	})
}

// healthReport probes each subsystem with a short timeout and grades the
// overall state: healthy when everything responds, degraded when only
// optional backends (LLM, embeddings) are down, unhealthy when the store is.
func (s *Server) healthReport(ctx context.Context) map[string]any {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	storeOK := s.svc.Store().Ping(probeCtx) == nil
	llmOK := s.llm != nil && s.llm.Available()
	embedState := "disabled"
	if s.embedder != nil {
		embedState = "healthy"
		if hc, ok := s.embedder.(embedding.HealthChecker); ok {
			if hc.HealthCheck(probeCtx) != nil {
				embedState = "unreachable"
			}
		}
	}

	overall := "healthy"
	if !storeOK {
		overall = "unhealthy"
	} else if !llmOK || embedState == "unreachable" {
		overall = "degraded"
	}

	return map[string]any{
		"status":           overall,
		"store":            storeOK,
		"llm":              llmOK,
		"embeddings":       embedState,
		"maintenance_mode": s.engine.Maintenance(),
		"cache":            s.svc.Cache().Stats(ctx),
		"uptime_seconds":   s.svc.Uptime().Seconds(),
		"checked_at":       time.Now().UTC(),
	}
}
