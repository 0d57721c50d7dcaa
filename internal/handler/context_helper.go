package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-registration-api/internal/middleware"
	"github.com/noah-isme/sma-registration-api/internal/models"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
	"github.com/noah-isme/sma-registration-api/pkg/response"
)

// requireClaims returns the authenticated staff or parent claims set by the JWT
// middleware, writing a 401 and reporting false when they are missing.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	if value, exists := c.Get(middleware.ContextUserKey); exists {
		if claims, ok := value.(*models.JWTClaims); ok && claims != nil {
			return claims, true
		}
	}
	response.Error(c, appErrors.ErrUnauthorized)
	return nil, false
}
