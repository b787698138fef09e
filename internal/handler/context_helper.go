package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/samudra-hr/hris-api/internal/middleware"
	"github.com/samudra-hr/hris-api/internal/models"
	"github.com/samudra-hr/hris-api/internal/workflow"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromClaims(claims *models.JWTClaims) workflow.Actor {
	return workflow.Actor{ID: claims.UserID, Role: claims.Role}
}
