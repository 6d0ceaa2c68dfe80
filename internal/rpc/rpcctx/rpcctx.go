// Package rpcctx carries the RPC-context marker that gates store mutations.
// Business logic may only reach the store through a registered RPC method;
// the dispatcher stamps the context, and the store checks it on every write.
package rpcctx

import "context"

type key struct{}

// WithRPC marks ctx as executing inside a registered RPC method. The
// dispatcher calls this; tests may call it explicitly.
func WithRPC(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, key{}, method)
}

// IsRPC reports whether ctx carries the RPC marker.
func IsRPC(ctx context.Context) bool {
	_, ok := ctx.Value(key{}).(string)
	return ok
}

// Method returns the RPC method name stamped on ctx, or "".
func Method(ctx context.Context) string {
	m, _ := ctx.Value(key{}).(string)
	return m
}
