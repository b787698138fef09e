package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/samudra-hr/hris-api/internal/models"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
	"github.com/samudra-hr/hris-api/pkg/response"
)

// RBAC enforces role-based access control for routes. Fine-grained scoping
// (own instance, own reports) is the coordinator's job; this gate only keeps
// whole roles off a surface.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		allowedRoles := make(map[models.UserRole]struct{})
		for _, a := range allowed {
			allowedRoles[models.UserRole(a)] = struct{}{}
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
