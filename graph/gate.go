package graph

import (
	"context"
	"fmt"
)

// Gate is the external tenant/quota authorization capability. The engine
// consults it before every node step; a denial surfaces as ErrQuotaExceeded
// or ErrAccessDenied without executing the node, and is not auto-retried.
type Gate interface {
	// Authorize approves or denies one operation for a tenant. A nil
	// return allows the step; a returned error should wrap
	// ErrQuotaExceeded or ErrAccessDenied so callers can classify it.
	Authorize(ctx context.Context, tenant, operation string) error
}

// GateFunc adapts a plain function to the Gate interface.
type GateFunc func(ctx context.Context, tenant, operation string) error

// Authorize implements Gate.
func (f GateFunc) Authorize(ctx context.Context, tenant, operation string) error {
	return f(ctx, tenant, operation)
}

// AllowAll is the default gate: every operation is permitted.
func AllowAll() Gate {
	return GateFunc(func(context.Context, string, string) error { return nil })
}

// Deny builds a gate error wrapping the given sentinel (ErrQuotaExceeded
// or ErrAccessDenied) with a human-readable reason.
func Deny(sentinel error, reason string) error {
	return fmt.Errorf("%w: %s", sentinel, reason)
}
