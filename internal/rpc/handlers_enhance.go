package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"tbcv/internal/diff"
	"tbcv/internal/types"
)

func (s *Server) registerEnhancement() {
	s.registry.mustRegister(&Method{
		Name:     "enhance_preview",
		Category: "enhancement",
		Schema: Schema{
			Required: []Param{idParam("validation_id")},
			Optional: []Param{
				{Name: "recommendation_ids", Type: TypeArray},
				{Name: "preservation_rules", Type: TypeObject},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			rules, err := preservationRules(p.Object("preservation_rules"))
			if err != nil {
				return nil, err
			}
			preview, err := s.svc.Enhancer().Preview(ctx, p.String("validation_id"), p.Strings("recommendation_ids"), rules)
			if err != nil {
				return nil, err
			}
			return preview, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "enhance",
		Category: "enhancement",
		Schema: Schema{
			Required: []Param{idParam("preview_id")},
			Optional: []Param{
				{Name: "force", Type: TypeBoolean, Default: false},
				{Name: "applied_by", Type: TypeString, Default: "operator"},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			record, err := s.svc.Enhancer().Apply(ctx, p.String("preview_id"), p.Bool("force"), p.String("applied_by"))
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "enhance", "enhancement", record.ID, "create", record.FilePath)
			return record, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "enhance_auto_apply",
		Category: "enhancement",
		Schema: Schema{
			Required: []Param{idParam("validation_id")},
			Optional: []Param{{Name: "force", Type: TypeBoolean, Default: false}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			record, err := s.svc.AutoEnhance(ctx, p.String("validation_id"), p.Bool("force"))
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "enhance_auto_apply", "enhancement", record.ID, "create", record.FilePath)
			return record, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "enhance_batch",
		Category: "enhancement",
		Schema: Schema{
			Required: []Param{{Name: "validation_ids", Type: TypeArray}},
			Optional: []Param{{Name: "force", Type: TypeBoolean, Default: false}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			w, err := s.engine.Start(ctx, types.WorkflowBatchEnhancement, map[string]any{
				"validation_ids": p.Strings("validation_ids"),
				"force":          p.Bool("force"),
			})
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "enhance_batch", "workflow", w.ID, "create",
				fmt.Sprintf("%d validations", len(p.Strings("validation_ids"))))
			return w, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_enhancement",
		Category: "enhancement",
		Schema:   Schema{Required: []Param{idParam("enhancement_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.svc.Store().GetEnhancement(ctx, p.String("enhancement_id"))
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "list_enhancements",
		Category: "enhancement",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			records, err := s.svc.Store().EnhancementsByValidation(ctx, p.String("validation_id"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"enhancements": records, "count": len(records)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_enhancement_comparison",
		Category: "enhancement",
		Schema:   Schema{Required: []Param{idParam("enhancement_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.enhancementComparison(ctx, p.String("enhancement_id"))
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "rollback_enhancement",
		Category: "enhancement",
		Schema: Schema{
			Required: []Param{idParam("enhancement_id")},
			Optional: []Param{{Name: "force", Type: TypeBoolean, Default: false}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			record, err := s.svc.Enhancer().Rollback(ctx, p.String("enhancement_id"), p.Bool("force"))
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "rollback_enhancement", "enhancement", record.ID, "rollback", record.FilePath)
			return record, nil
		},
	})
}

// enhancementComparison rebuilds the original/enhanced diff for an applied
// enhancement. The original comes from the rollback point; the enhanced side
// is the current file when it still matches the applied hash, otherwise the
// validation's stored enhanced content.
func (s *Server) enhancementComparison(ctx context.Context, id string) (any, error) {
	record, err := s.svc.Store().GetEnhancement(ctx, id)
	if err != nil {
		return nil, err
	}

	original := string(record.Rollback.Content)
	enhanced := ""
	if data, rerr := os.ReadFile(record.FilePath); rerr == nil {
		enhanced = string(data)
	}
	if enhanced == "" {
		v, verr := s.svc.Store().GetValidation(ctx, record.ValidationID)
		if verr != nil {
			return nil, verr
		}
		enhanced = v.EnhancedContent
	}

	result := diff.DefaultEngine.Compute(record.FilePath, record.FilePath, original, enhanced)
	return map[string]any{
		"enhancement":  record,
		"original":     original,
		"enhanced":     enhanced,
		"unified_diff": result.Unified,
		"statistics": map[string]any{
			"lines_added":   result.Stats.LinesAdded,
			"lines_removed": result.Stats.LinesRemoved,
			"lines_changed": result.Stats.LinesChanged,
		},
	}, nil
}

// preservationRules overlays caller-supplied fields on the defaults.
func preservationRules(raw map[string]any) (types.PreservationRules, error) {
	rules := types.DefaultPreservationRules()
	if len(raw) == 0 {
		return rules, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return rules, fmt.Errorf("invalid preservation rules: %w", err)
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("invalid preservation rules: %w", err)
	}
	return rules, nil
}
