package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-credential-service/pkg/helpers"
	"github.com/oksasatya/go-credential-service/pkg/response"
	"github.com/oksasatya/go-credential-service/pkg/token"
)

const (
	CtxClaimsKey       = "claims"
	CtxCredentialIDKey = "credentialID"
	CtxRoleKey         = "role"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*token.Claims, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// Auth validates the access token from the Authorization header or the
// access_token cookie and stores its claims in the Gin context.
func Auth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := BearerToken(c)
		if raw == "" {
			raw, _ = c.Cookie(helpers.AccessTokenCookie)
		}
		if raw == "" {
			response.Abort(c, http.StatusUnauthorized, "missing access token", response.ErrorBody{Code: "MISSING_TOKEN"})
			return
		}
		claims, err := a.Authenticate(c.Request.Context(), raw)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid access token", response.ErrorBody{Code: "INVALID_TOKEN"})
			return
		}
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxCredentialIDKey, claims.Subject)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole lets the request through only when the authenticated role is
// one of roles. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(CtxRoleKey)) {
			response.Abort(c, http.StatusForbidden, "forbidden", response.ErrorBody{Code: "FORBIDDEN"})
			return
		}
		c.Next()
	}
}
