package rpc

import (
	"context"
	"errors"
	"fmt"

	"tbcv/internal/store"
	"tbcv/internal/types"
)

func (s *Server) registerValidation() {
	s.registry.mustRegister(&Method{
		Name:     "validate_file",
		Category: "validation",
		Schema: Schema{
			Required: []Param{{Name: "file_path", Type: TypeString}},
			Optional: []Param{
				{Name: "family", Type: TypeString, Default: "generic"},
				{Name: "validators", Type: TypeArray},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			v, err := s.svc.ValidateFile(ctx, p.String("file_path"), types.Family(p.String("family")), p.Strings("validators"))
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "validate_file", "validation", v.ID, "create", v.FilePath)
			return v, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "validate_content",
		Category: "validation",
		Schema: Schema{
			Required: []Param{{Name: "content", Type: TypeString}},
			Optional: []Param{
				{Name: "file_path", Type: TypeString, Default: "inline.md"},
				{Name: "family", Type: TypeString, Default: "generic"},
				{Name: "validators", Type: TypeArray},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			v, err := s.svc.ValidateContent(ctx, p.String("file_path"), types.Family(p.String("family")), p.String("content"), p.Strings("validators"))
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "validate_content", "validation", v.ID, "create", v.FilePath)
			return v, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "validate_folder",
		Category: "validation",
		Schema: Schema{
			Required: []Param{{Name: "folder_path", Type: TypeString}},
			Optional: []Param{{Name: "family", Type: TypeString, Default: "generic"}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			w, err := s.engine.Start(ctx, types.WorkflowValidateFolder, map[string]any{
				"folder_path": p.String("folder_path"),
				"family":      p.String("family"),
			})
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "validate_folder", "workflow", w.ID, "create", p.String("folder_path"))
			return w, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_validation",
		Category: "validation",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.svc.Store().GetValidation(ctx, p.String("validation_id"))
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "list_validations",
		Category: "validation",
		Schema: Schema{
			Optional: []Param{
				{Name: "status", Type: TypeString},
				{Name: "family", Type: TypeString},
				{Name: "file_path", Type: TypeString},
				{Name: "limit", Type: TypeInteger, Default: 50},
				{Name: "offset", Type: TypeInteger, Default: 0},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			vs, err := s.svc.Store().ListValidations(ctx, store.ValidationFilter{
				Status:   types.ValidationStatus(p.String("status")),
				Family:   types.Family(p.String("family")),
				FilePath: p.String("file_path"),
				Limit:    p.Int("limit"),
				Offset:   p.Int("offset"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"validations": vs, "count": len(vs)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "update_validation",
		Category: "validation",
		Schema: Schema{
			Required: []Param{idParam("validation_id")},
			Optional: []Param{
				{Name: "status", Type: TypeString},
				{Name: "enhanced_content", Type: TypeString},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			id := p.String("validation_id")
			if status := p.String("status"); status != "" {
				v, err := s.svc.Store().GetValidation(ctx, id)
				if err != nil {
					return nil, err
				}
				if err := s.svc.Store().TransitionValidation(ctx, id, v.Status, types.ValidationStatus(status)); err != nil {
					return nil, err
				}
				s.audit(ctx, "update_validation", "validation", id, "transition",
					fmt.Sprintf("%s -> %s", v.Status, status))
			}
			if _, ok := p["enhanced_content"]; ok {
				content := p.String("enhanced_content")
				if err := s.svc.Store().UpdateValidationFields(ctx, id, &content, nil); err != nil {
					return nil, err
				}
				s.audit(ctx, "update_validation", "validation", id, "update", "enhanced_content")
			}
			return s.svc.Store().GetValidation(ctx, id)
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "delete_validation",
		Category: "validation",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			id := p.String("validation_id")
			if err := s.svc.Store().DeleteValidation(ctx, id); err != nil {
				return nil, err
			}
			s.audit(ctx, "delete_validation", "validation", id, "delete", "")
			return map[string]any{"deleted": true, "validation_id": id}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "revalidate",
		Category: "validation",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			v, err := s.svc.Revalidate(ctx, p.String("validation_id"))
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "revalidate", "validation", v.ID, "create",
				"revalidation of "+p.String("validation_id"))
			return v, nil
		},
	})
}

func (s *Server) registerApproval() {
	s.registry.mustRegister(&Method{
		Name:     "approve",
		Category: "approval",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.reviewValidation(ctx, p.String("validation_id"), types.ValidationApproved)
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "reject",
		Category: "approval",
		Schema:   Schema{Required: []Param{idParam("validation_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.reviewValidation(ctx, p.String("validation_id"), types.ValidationRejected)
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "bulk_approve",
		Category: "approval",
		Schema:   Schema{Required: []Param{{Name: "validation_ids", Type: TypeArray}}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.bulkReviewValidations(ctx, p.Strings("validation_ids"), types.ValidationApproved)
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "bulk_reject",
		Category: "approval",
		Schema:   Schema{Required: []Param{{Name: "validation_ids", Type: TypeArray}}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.bulkReviewValidations(ctx, p.Strings("validation_ids"), types.ValidationRejected)
		},
	})
}

// reviewValidation performs the pending -> approved/rejected transition.
// Repeating the same decision is an idempotent no-op returning the current
// state; a conflicting decision is an invalid transition.
func (s *Server) reviewValidation(ctx context.Context, id string, to types.ValidationStatus) (any, error) {
	v, err := s.svc.Store().GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status == to {
		return v, nil
	}
	err = s.svc.Store().TransitionValidation(ctx, id, types.ValidationPending, to)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// A concurrent call may have landed the same decision first.
			if current, gerr := s.svc.Store().GetValidation(ctx, id); gerr == nil && current.Status == to {
				return current, nil
			}
		}
		return nil, err
	}
	s.audit(ctx, "approve/reject", "validation", id, "transition", string(to))
	return s.svc.Store().GetValidation(ctx, id)
}

func (s *Server) bulkReviewValidations(ctx context.Context, ids []string, to types.ValidationStatus) (any, error) {
	results := make([]map[string]any, 0, len(ids))
	succeeded := 0
	for _, id := range ids {
		_, err := s.reviewValidation(ctx, id, to)
		entry := map[string]any{"validation_id": id, "ok": err == nil}
		if err != nil {
			entry["error"] = mapError(err)
		} else {
			succeeded++
		}
		results = append(results, entry)
	}
	return map[string]any{"results": results, "succeeded": succeeded, "total": len(ids)}, nil
}
