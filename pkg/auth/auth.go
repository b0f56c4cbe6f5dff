// Package auth gates the privileged large-object operations (import and
// export). Gates implement the runtime's Authorizer contract:
// Authorize(ctx, op) returns nil to allow the operation.
//
// Three gates are provided: AllowAll (the explicit "dangerous functions"
// bypass), a JWT role gate, and a bcrypt'd API-key gate.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

// ErrNoCredentials marks a context without a token or API key.
var ErrNoCredentials = errors.New("no credentials in context")

// Operations subject to gating.
const (
	OpImport = "import"
	OpExport = "export"
)

type ctxKey int

const (
	tokenKey ctxKey = iota
	apiKeyKey
)

// WithToken attaches a bearer token to ctx for the JWT gate.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext extracts a bearer token attached with WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}

// WithAPIKey attaches an API key to ctx for the API-key gate.
func WithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

// APIKeyFromContext extracts an API key attached with WithAPIKey.
func APIKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(apiKeyKey).(string)
	return key, ok
}

// AllowAll admits every operation. Server-side import/export read and write
// the server's filesystem, so this bypass belongs in trusted single-user
// deployments only.
type AllowAll struct{}

// Authorize implements the Authorizer contract.
func (AllowAll) Authorize(context.Context, string) error {
	return nil
}

// DenyAll rejects every operation.
type DenyAll struct{}

// Authorize implements the Authorizer contract.
func (DenyAll) Authorize(_ context.Context, op string) error {
	return fmt.Errorf("%w: %s disabled", lob.ErrPermissionDenied, op)
}
