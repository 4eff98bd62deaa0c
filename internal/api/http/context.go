package http

import (
	"context"

	"toolrent-backend/internal/security"

	"github.com/google/uuid"
)

type ctxKey struct{}

var claimsKey ctxKey

func withClaims(ctx context.Context, c *security.MemberClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext returns the claims of the authenticated caller, or nil on
// public routes.
func ClaimsFromContext(ctx context.Context) *security.MemberClaims {
	c, _ := ctx.Value(claimsKey).(*security.MemberClaims)
	return c
}

// actingMember is the ownership scope handed to the services: nil for
// administrators, the caller's own id otherwise.
func actingMember(ctx context.Context) *uuid.UUID {
	c := ClaimsFromContext(ctx)
	if c == nil || c.IsAdmin() {
		return nil
	}
	id := c.MemberID
	return &id
}
