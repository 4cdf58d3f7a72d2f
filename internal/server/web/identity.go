package web

import (
	"context"

	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/gin-gonic/gin"
)

type ctxKey string

const identityKey ctxKey = "identity"

// ginIdentityKey holds the identity in the gin context.
const ginIdentityKey = "identity"

func WithIdentity(ctx context.Context, ident *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext returns the identity attached by the session
// authenticator, if any.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(*models.Identity)
	return ident, ok && ident != nil
}

func identity(c *gin.Context) *models.Identity {
	if v, ok := c.Get(ginIdentityKey); ok {
		if ident, ok := v.(*models.Identity); ok {
			return ident
		}
	}
	return nil
}
