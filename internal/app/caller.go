package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/timeboard/internal/domain"
)

// Caller is the authenticated identity an upstream auth layer attaches to a request.
type Caller struct {
	ID   string
	Role domain.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == domain.RoleAdmin
}

// WithCaller attaches a normalized caller to context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, normalizeCaller(caller))
}

// CallerFromContext returns the caller when one with a non-empty id is present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	if !ok {
		return Caller{}, false
	}
	caller = normalizeCaller(caller)
	if caller.ID == "" {
		return Caller{}, false
	}
	return caller, true
}

// callerContextKey stores context keys for caller values.
type callerContextKey struct{}

func normalizeCaller(caller Caller) Caller {
	caller.ID = strings.TrimSpace(caller.ID)
	if caller.Role != domain.RoleAdmin {
		caller.Role = domain.RoleMember
	}
	return caller
}

func requireCaller(ctx context.Context) (Caller, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return Caller{}, fmt.Errorf("%w: missing caller identity", ErrForbidden)
	}
	return caller, nil
}
