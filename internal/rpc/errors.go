// Package rpc is the JSON-RPC 2.0 dispatch layer: the only sanctioned entry
// point from transports to the store and business logic.
package rpc

import (
	"errors"
	"fmt"

	"tbcv/internal/enhance"
	"tbcv/internal/store"
	"tbcv/internal/workflow"
)

// JSON-RPC envelope error codes.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// Application error codes.
const (
	CodeValidationFailed = -32000
	CodeNotFound         = -32001
	CodeUnauthorized     = -32002
	CodeRateLimited      = -32003
	CodeWorkflowConflict = -32004
	CodeRollbackExpired  = -32005
)

// Error is the JSON-RPC error object.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func newError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// mapError translates domain errors to application error objects. Anything
// unrecognized becomes -32603 with a sanitized message.
func mapError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, enhance.ErrPreviewExpired):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrInvalidTransition):
		return &Error{Code: CodeValidationFailed, Message: err.Error(),
			Data: map[string]any{"reason": "invalid_transition"}}
	case errors.Is(err, store.ErrRollbackExpired):
		return &Error{Code: CodeRollbackExpired, Message: err.Error()}
	case errors.Is(err, store.ErrNoRPCContext):
		return &Error{Code: CodeUnauthorized, Message: err.Error()}
	case errors.Is(err, store.ErrConflict), errors.Is(err, enhance.ErrContentDrift):
		return &Error{Code: CodeWorkflowConflict, Message: err.Error()}
	case errors.Is(err, workflow.ErrMaintenance):
		return &Error{Code: CodeWorkflowConflict, Message: err.Error(),
			Data: map[string]any{"reason": "maintenance_mode"}}
	case errors.Is(err, enhance.ErrSafetyGate):
		return &Error{Code: CodeValidationFailed, Message: err.Error(),
			Data: map[string]any{"reason": "safety_gate"}}
	case errors.Is(err, workflow.ErrUnknownType):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return &Error{Code: CodeInternal, Message: "internal error"}
	}
}
