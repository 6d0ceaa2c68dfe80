package rpc

import (
	"context"
	"errors"

	"tbcv/internal/store"
	"tbcv/internal/types"
)

func (s *Server) registerWorkflow() {
	s.registry.mustRegister(&Method{
		Name:     "create_workflow",
		Category: "workflow",
		Schema: Schema{
			Required: []Param{{Name: "type", Type: TypeString}},
			Optional: []Param{{Name: "parameters", Type: TypeObject}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			w, err := s.engine.Start(ctx, types.WorkflowType(p.String("type")), p.Object("parameters"))
			if err != nil {
				return nil, err
			}
			s.audit(ctx, "create_workflow", "workflow", w.ID, "create", string(w.Type))
			return w, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_workflow",
		Category: "workflow",
		Schema:   Schema{Required: []Param{idParam("workflow_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.svc.Store().GetWorkflow(ctx, p.String("workflow_id"))
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "list_workflows",
		Category: "workflow",
		Schema: Schema{
			Optional: []Param{
				{Name: "state", Type: TypeString},
				{Name: "limit", Type: TypeInteger, Default: 50},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			ws, err := s.svc.Store().ListWorkflows(ctx, types.WorkflowState(p.String("state")), p.Int("limit"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"workflows": ws, "count": len(ws)}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "control_workflow",
		Category: "workflow",
		Schema: Schema{
			Required: []Param{
				idParam("workflow_id"),
				{Name: "action", Type: TypeString},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return s.controlWorkflow(ctx, p.String("workflow_id"), p.String("action"))
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_workflow_report",
		Category: "workflow",
		Schema:   Schema{Required: []Param{idParam("workflow_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			w, err := s.svc.Store().GetWorkflow(ctx, p.String("workflow_id"))
			if err != nil {
				return nil, err
			}
			report := map[string]any{
				"workflow": w,
				"progress": w.ProgressPercent,
				"summary":  w.Summary,
			}
			if w.Error != "" {
				report["error"] = w.Error
			}
			if cp, cerr := s.svc.Store().LastCheckpoint(ctx, w.ID); cerr == nil {
				report["last_checkpoint"] = map[string]any{
					"step_number": cp.StepNumber,
					"name":        cp.Name,
					"created_at":  cp.CreatedAt,
				}
			}
			return report, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "get_workflow_summary",
		Category: "workflow",
		Schema:   Schema{Required: []Param{idParam("workflow_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			w, err := s.svc.Store().GetWorkflow(ctx, p.String("workflow_id"))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"workflow_id": w.ID,
				"type":        w.Type,
				"state":       w.State,
				"progress":    w.ProgressPercent,
				"summary":     w.Summary,
				"updated_at":  w.UpdatedAt,
			}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "delete_workflow",
		Category: "workflow",
		Schema:   Schema{Required: []Param{idParam("workflow_id")}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			id := p.String("workflow_id")
			if err := s.svc.Store().DeleteWorkflow(ctx, id); err != nil {
				return nil, err
			}
			s.audit(ctx, "delete_workflow", "workflow", id, "delete", "")
			return map[string]any{"deleted": true, "workflow_id": id}, nil
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "bulk_delete_workflows",
		Category: "workflow",
		Schema:   Schema{Required: []Param{{Name: "workflow_ids", Type: TypeArray}}},
		Handler: func(ctx context.Context, p Params) (any, error) {
			ids := p.Strings("workflow_ids")
			results := make([]map[string]any, 0, len(ids))
			succeeded := 0
			for _, id := range ids {
				err := s.svc.Store().DeleteWorkflow(ctx, id)
				entry := map[string]any{"workflow_id": id, "ok": err == nil}
				if err != nil {
					entry["error"] = mapError(err)
				} else {
					succeeded++
					s.audit(ctx, "bulk_delete_workflows", "workflow", id, "delete", "")
				}
				results = append(results, entry)
			}
			return map[string]any{"results": results, "succeeded": succeeded, "total": len(ids)}, nil
		},
	})
}

// controlWorkflow applies pause/resume/cancel. Controls on a terminal
// workflow are idempotent: the current state comes back without error.
func (s *Server) controlWorkflow(ctx context.Context, id, action string) (any, error) {
	w, err := s.svc.Store().GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.State.Terminal() {
		return w, nil
	}

	switch action {
	case "pause":
		if w.State == types.WorkflowPaused {
			return w, nil
		}
		err = s.engine.Pause(ctx, id)
	case "resume":
		if w.State == types.WorkflowRunning {
			return w, nil
		}
		_, err = s.engine.Resume(ctx, id)
	case "cancel":
		err = s.engine.Cancel(ctx, id)
	default:
		return nil, &Error{
			Code:    CodeInvalidParams,
			Message: "invalid params",
			Data:    map[string]any{"invalid": []map[string]any{{"name": "action", "reason": "expected pause, resume or cancel"}}},
		}
	}
	if err != nil {
		// A racing completion may have landed a terminal state first; controls
		// stay idempotent in that case.
		if errors.Is(err, store.ErrInvalidTransition) {
			if current, gerr := s.svc.Store().GetWorkflow(ctx, id); gerr == nil && current.State.Terminal() {
				return current, nil
			}
		}
		return nil, err
	}
	s.audit(ctx, "control_workflow", "workflow", id, "transition", action)
	return s.svc.Store().GetWorkflow(ctx, id)
}
