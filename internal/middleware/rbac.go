package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
	"github.com/pawtograder/office-hours/pkg/response"
)

// RequireScopes enforces that the verified MCP token carries every listed scope.
// Class level roles are checked by the services since they depend on the route's class.
func RequireScopes(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextMCPTokenKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		token, ok := value.(*models.APIToken)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, scope := range scopes {
			if !token.HasScope(scope) {
				response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token missing scope "+scope))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
