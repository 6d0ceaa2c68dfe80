package rpc

import (
	"context"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"tbcv/internal/types"
)

func (s *Server) registerExport() {
	formatParam := Param{Name: "format", Type: TypeString, Default: "json"}

	s.registry.mustRegister(&Method{
		Name:     "export_validation",
		Category: "export",
		Schema: Schema{
			Required: []Param{idParam("validation_id")},
			Optional: []Param{formatParam},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			v, err := s.svc.Store().GetValidation(ctx, p.String("validation_id"))
			if err != nil {
				return nil, err
			}
			recs, err := s.svc.Store().RecommendationsByValidation(ctx, v.ID, "")
			if err != nil {
				return nil, err
			}
			return renderExport(p.String("format"), map[string]any{
				"validation":      v,
				"recommendations": recs,
			})
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "export_recommendations",
		Category: "export",
		Schema: Schema{
			Required: []Param{idParam("validation_id")},
			Optional: []Param{
				formatParam,
				{Name: "status", Type: TypeString},
			},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			recs, err := s.svc.Store().RecommendationsByValidation(ctx,
				p.String("validation_id"), types.RecommendationStatus(p.String("status")))
			if err != nil {
				return nil, err
			}
			return renderExport(p.String("format"), map[string]any{
				"validation_id":   p.String("validation_id"),
				"recommendations": recs,
			})
		},
	})

	s.registry.mustRegister(&Method{
		Name:     "export_workflow",
		Category: "export",
		Schema: Schema{
			Required: []Param{idParam("workflow_id")},
			Optional: []Param{formatParam},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			w, err := s.svc.Store().GetWorkflow(ctx, p.String("workflow_id"))
			if err != nil {
				return nil, err
			}
			out := map[string]any{"workflow": w}
			if cp, cerr := s.svc.Store().LastCheckpoint(ctx, w.ID); cerr == nil {
				out["last_checkpoint"] = cp
			}
			return renderExport(p.String("format"), out)
		},
	})
}

// renderExport serializes a payload as json or yaml.
func renderExport(format string, payload map[string]any) (any, error) {
	switch format {
	case "json", "":
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": "json", "content": string(data)}, nil
	case "yaml":
		// YAML cannot serialize arbitrary structs with json tags faithfully;
		// round-trip through JSON first so field names match the wire format.
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": "yaml", "content": string(out)}, nil
	default:
		return nil, &Error{
			Code:    CodeInvalidParams,
			Message: "invalid params",
			Data:    map[string]any{"invalid": []map[string]any{{"name": "format", "reason": "expected json or yaml"}}},
		}
	}
}
