// Package identity carries the verified caller of a request.
package identity

import (
	"context"
	"encoding/json"
)

// Identity is resolved once per request by the auth middleware and never
// mutated afterwards. Token is the caller's own bearer credential; it is the
// scoping credential handed to the store so row-level policies apply.
type Identity struct {
	UserID string
	Token  string
	Role   string
	Claims json.RawMessage
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by NewContext.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// ClaimsJSON returns the claim set used to scope store sessions. Identities
// built without claims get a minimal {"sub","role"} document.
func (i Identity) ClaimsJSON() string {
	if len(i.Claims) > 0 {
		return string(i.Claims)
	}
	b, _ := json.Marshal(map[string]string{"sub": i.UserID, "role": i.Role})
	return string(b)
}
