package rpc

import (
	"context"
	"errors"
	"fmt"

	"tbcv/internal/store"
	"tbcv/internal/types"
)

func (s *Server) registerRecommendation() {
	s.registry.mustRegister(&Method{
		Name:     "generate_recommendations",
		Category: "recommendation",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			v, err := s.svc.Store().GetValidation(ctx, p.String("validation_id"))
			if err != nil {
				return nil, err
			}
			recs, err := s.svc.Generator().Generate(ctx, v)
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "generate_recommendations", "validation", v.ID, "create",
				fmt.Sprintf("%d recommendations", len(recs)))
			return map[string]any{"recommendations": recs, "count": len(recs)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "rebuild_recommendations",
		Category: "recommendation",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			v, err := s.svc.Store().GetValidation(ctx, p.String("validation_id"))
			if err != nil {
				return nil, err
			}
			deleted, created, err := s.svc.Generator().Rebuild(ctx, v)
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "rebuild_recommendations", "validation", v.ID, "update",
				fmt.Sprintf("deleted %d, created %d", deleted, created))
			return map[string]any{"deleted": deleted, "created": created}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_recommendations",
		Category: "recommendation",
		Schema: Schema{
			Required: []Param{idParam("validation_id")},
			Optional: []Param{{Name: "status", Type: TypeString}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			recs, err := s.svc.Store().RecommendationsByValidation(ctx,
				p.String("validation_id"), types.RecommendationStatus(p.String("status")))
			if err != nil {
				return nil, err
			}
			return map[string]any{"recommendations": recs, "count": len(recs)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "review_recommendation",
		Category: "recommendation",
		Schema: Schema{
			Required: []Param{
				idParam("recommendation_id"),
				{Name: "decision", Type: TypeString},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			to, err := reviewDecision(p.String("decision"))
			if err != nil {
				return nil, err
			}
			return s.reviewRecommendation(ctx, p.String("recommendation_id"), to)
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "bulk_review_recommendations",
		Category: "recommendation",
		Schema: Schema{
			Required: []Param{
				{Name: "recommendation_ids", Type: TypeArray},
				{Name: "decision", Type: TypeString},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			to, err := reviewDecision(p.String("decision"))
			if err != nil {
				return nil, err
			}
			ids := p.Strings("recommendation_ids")
			results := make([]map[string]any, 0, len(ids))
			succeeded := 0
			for _, id := range ids {
				_, rerr := s.reviewRecommendation(ctx, id, to)
				entry := map[string]any{"recommendation_id": id, "ok": rerr == nil}
				if rerr != nil {
					entry["error"] = mapError(rerr)
				} else {
					succeeded++
				}
				results = append(results, entry)
			}
			return map[string]any{"results": results, "succeeded": succeeded, "total": len(ids)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "apply_recommendations",
		Category: "recommendation",
		Schema: Schema{
			Required: []Param{idParam("validation_id")},
			Optional: []Param{
				{Name: "recommendation_ids", Type: TypeArray},
				{Name: "force", Type: TypeBoolean, Default: false},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			preview, err := s.svc.Enhancer().Preview(ctx, p.String("validation_id"),
				p.Strings("recommendation_ids"), types.DefaultPreservationRules())
			if err != nil {
				return nil, err
			}
			record, err := s.svc.Enhancer().Apply(ctx, preview.PreviewID, p.Bool("force"), "operator")
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "apply_recommendations", "enhancement", record.ID, "create", record.FilePath)
			return record, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "delete_recommendation",
		Category: "recommendation",
		Schema:   Schema{Required: []Param{idParam("recommendation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			id := p.String("recommendation_id")
			if err := s.svc.Store().DeleteRecommendation(ctx, id); err != nil {
				return nil, err
			}
			s.audit(ctx, "delete_recommendation", "recommendation", id, "delete", "")
			return map[string]any{"deleted": true, "recommendation_id": id}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "mark_recommendations_applied",
		Category: "recommendation",
		Schema:   Schema{Required: []Param{{Name: "recommendation_ids", Type: TypeArray}}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			ids := p.Strings("recommendation_ids")
			results := make([]map[string]any, 0, len(ids))
			succeeded := 0
			for _, id := range ids {
				rerr := s.markApplied(ctx, id)
				entry := map[string]any{"recommendation_id": id, "ok": rerr == nil}
				if rerr != nil {
					entry["error"] = mapError(rerr)
				} else {
					succeeded++
				}
				results = append(results, entry)
			}
			s.audit(ctx, "mark_recommendations_applied", "recommendation", "", "transition",
				fmt.Sprintf("%d of %d applied", succeeded, len(ids)))
			return map[string]any{"results": results, "succeeded": succeeded, "total": len(ids)}, nil
		},
	})
}

// reviewRecommendation mirrors the validation review semantics: repeating a
// decision is a no-op returning the current state.
func (s *Server) reviewRecommendation(ctx context.Context, id string, to types.RecommendationStatus) (any, error) {
	r, err := s.svc.Store().GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == to {
		return r, nil
	}
	err = s.svc.Store().TransitionRecommendation(ctx, id, types.RecPending, to)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			if current, gerr := s.svc.Store().GetRecommendation(ctx, id); gerr == nil && current.Status == to {
				return current, nil
			}
		}
		return nil, err
	}
	s.audit(ctx, "review_recommendation", "recommendation", id, "transition", string(to))
	return s.svc.Store().GetRecommendation(ctx, id)
}

// markApplied moves one approved recommendation to applied. Already-applied
// recommendations pass through unchanged.
func (s *Server) markApplied(ctx context.Context, id string) error {
	r, err := s.svc.Store().GetRecommendation(ctx, id)
	if err != nil {
		return err
	}
	if r.Status == types.RecApplied {
		return nil
	}
	return s.svc.Store().TransitionRecommendation(ctx, id, types.RecApproved, types.RecApplied)
}

func reviewDecision(decision string) (types.RecommendationStatus, error) {
	switch decision {
	case "approve":
		return types.RecApproved, nil
	case "reject":
		return types.RecRejected, nil
	default:
		return "", &Error{
			Code:    CodeInvalidParams,
			Message: "invalid params",
			Data:    map[string]any{"invalid": []map[string]any{{"name": "decision", "reason": "expected approve or reject"}}},
		}
	}
}
