package store

import (
	"context"
	"errors"
	"fmt"

	"tbcv/internal/rpc/rpcctx"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness or concurrency constraint fails.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition is returned on an illegal status transition.
	ErrInvalidTransition = errors.New("invalid_transition")
	// ErrRollbackExpired is returned when a rollback point has expired.
	ErrRollbackExpired = errors.New("rollback expired")
	// ErrNoRPCContext is returned when a mutation is attempted outside RPC.
	ErrNoRPCContext = errors.New("store mutation outside RPC context")
)

// requireRPC enforces the access guard: every store mutation must originate
// from a registered RPC method.
func requireRPC(ctx context.Context) error {
	if !rpcctx.IsRPC(ctx) {
		return fmt.Errorf("%w", ErrNoRPCContext)
	}
	return nil
}

// RequireRPC is the exported guard check used by components that write files
// alongside store records (the enhancer).
func RequireRPC(ctx context.Context) error {
	return requireRPC(ctx)
}
