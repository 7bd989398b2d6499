package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok || claims.Sub == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	response := gin.H{
		"userId": claims.Sub,
		"role":   claims.Role,
	}
	if claims.Name != "" {
		response["name"] = claims.Name
	}
	if len(claims.Cases) > 0 {
		response["cases"] = claims.Cases
	}
	respond.JSON(c, http.StatusOK, response)
}
