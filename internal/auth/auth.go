// Package auth establishes who is calling and gates ledger mutations to the
// owner of the record being changed.
//
// Authentication (proving control of an identity) is pluggable via
// Authenticator; authorization is the single rule enforced by Guard:
// the caller's identity must equal the entity owner.
package auth

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the caller is not the entity owner.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrUnauthenticated is returned when a request carries no valid proof
	// of identity.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
)

type callerKey struct{}

// WithCaller returns a context carrying the authenticated identity.
func WithCaller(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, callerKey{}, identity)
}

// CallerFrom returns the authenticated identity, if any.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	return id, ok && id != ""
}

// Guard enforces ownership of accounts and positions.
type Guard struct{}

// RequireOwner fails with ErrUnauthorized unless caller is a non-empty
// identity equal to owner.
func (Guard) RequireOwner(caller, owner string) error {
	if caller == "" || caller != owner {
		return ErrUnauthorized
	}
	return nil
}

// Authenticator extracts and verifies the caller identity of a request.
// body is the fully read request body; implementations must not consume
// r.Body.
type Authenticator interface {
	Authenticate(r *http.Request, body []byte) (string, error)
}
