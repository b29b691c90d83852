package testutil

import (
	"context"
	"net/http"

	"satvault/pkg/domain"
	"satvault/pkg/requestcontext"
)

// WithActor marks the request as authenticated by the given account.
// This simulates what the auth middleware does after validating a token.
func WithActor(req *http.Request, account domain.AccountID, roles ...domain.Role) *http.Request {
	actor := domain.Actor{Account: account, Roles: roles}
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
