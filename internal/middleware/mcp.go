package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/response"
)

// ContextMCPTokenKey is the gin context key storing the verified MCP token.
const ContextMCPTokenKey = "mcpToken"

// MCPVerifier checks an MCP bearer token for a scope.
type MCPVerifier interface {
	Verify(ctx context.Context, raw, scope string) (*models.APIToken, error)
}

// MCPToken authenticates /api/mcp routes with an "mcp_" bearer token carrying scope.
// The token owner is exposed through ContextUserKey like a session user.
func MCPToken(verifier MCPVerifier, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if raw == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		token, err := verifier.Verify(c.Request.Context(), raw, scope)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextMCPTokenKey, token)
		c.Set(ContextUserKey, &models.JWTClaims{
			Role:             models.MCPTokenType,
			RegisteredClaims: jwt.RegisteredClaims{Subject: token.UserID, ID: token.TokenID},
		})
		c.Next()
	}
}
