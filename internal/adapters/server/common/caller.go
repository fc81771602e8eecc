package common

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
)

// Identity headers set by the upstream auth gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// ErrUnauthenticated reports a request without caller identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// CallerFromRequest lifts gateway identity headers into a caller.
func CallerFromRequest(r *http.Request) (app.Caller, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return app.Caller{}, ErrUnauthenticated
	}
	role, err := domain.ParseRole(r.Header.Get(HeaderUserRole))
	if err != nil {
		return app.Caller{}, err
	}
	return app.Caller{ID: id, Role: role}, nil
}

// ContextWithRequestCaller attaches the request's caller to ctx when the
// headers carry one. Requests without identity leave ctx unchanged so the
// service rejects them.
func ContextWithRequestCaller(ctx context.Context, r *http.Request) context.Context {
	caller, err := CallerFromRequest(r)
	if err != nil {
		return ctx
	}
	return app.WithCaller(ctx, caller)
}
