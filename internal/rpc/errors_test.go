package rpc

import (
	"fmt"
	"testing"

	"tbcv/internal/enhance"
	"tbcv/internal/store"
	"tbcv/internal/workflow"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		reason string
	}{
		{"not found", store.ErrNotFound, CodeNotFound, ""},
		{"wrapped not found", fmt.Errorf("loading: %w", store.ErrNotFound), CodeNotFound, ""},
		{"preview expired", enhance.ErrPreviewExpired, CodeNotFound, ""},
		{"invalid transition", store.ErrInvalidTransition, CodeValidationFailed, "invalid_transition"},
		{"rollback expired", store.ErrRollbackExpired, CodeRollbackExpired, ""},
		{"no rpc context", store.ErrNoRPCContext, CodeUnauthorized, ""},
		{"conflict", store.ErrConflict, CodeWorkflowConflict, ""},
		{"content drift", enhance.ErrContentDrift, CodeWorkflowConflict, ""},
		{"maintenance", workflow.ErrMaintenance, CodeWorkflowConflict, "maintenance_mode"},
		{"safety gate", enhance.ErrSafetyGate, CodeValidationFailed, "safety_gate"},
		{"unknown type", workflow.ErrUnknownType, CodeInvalidParams, ""},
		{"unrecognized", fmt.Errorf("disk on fire"), CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mapError(tt.err)
			if e.Code != tt.code {
				t.Fatalf("mapError(%v).Code = %d, want %d", tt.err, e.Code, tt.code)
			}
			if tt.reason != "" && e.Data["reason"] != tt.reason {
				t.Errorf("data.reason = %v, want %s", e.Data["reason"], tt.reason)
			}
		})
	}
}

func TestMapErrorSanitizesUnknown(t *testing.T) {
	e := mapError(fmt.Errorf("sqlite: database path /var/secret/db"))
	if e.Message != "internal error" {
		t.Fatalf("unrecognized error leaked detail: %q", e.Message)
	}
}

func TestMapErrorPassesThroughRPCError(t *testing.T) {
	in := newError(CodeRateLimited, "slow down")
	if got := mapError(in); got != in {
		t.Fatalf("mapError did not pass through an *Error: %v", got)
	}
}
