package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodmap-backend/internal/instagram"
	"foodmap-backend/middleware"
	"foodmap-backend/utils"
)

// SetupProfileRoutes wires profile lookup for logged-in accounts.
func SetupProfileRoutes(router *gin.Engine, manager *instagram.Manager, client *instagram.Client, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/profile")
	group.Use(authMiddleware.RequireAuth())

	group.GET("/:account", func(c *gin.Context) {
		account := c.Param("account")

		session, err := manager.EnsureAuthenticated(c.Request.Context(), account, nil)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Account is not logged in")
			return
		}

		profile, err := client.FetchProfile(c.Request.Context(), session, account)
		if errors.Is(err, instagram.ErrProfileNotFound) {
			utils.RespondWithNotFound(c, "Profile not found")
			return
		}
		if errors.Is(err, instagram.ErrUnauthenticated) {
			utils.RespondWithUnauthorized(c, "Session is no longer valid; log in again")
			return
		}
		if err != nil {
			utils.RespondWithError(c, http.StatusBadGateway, "source_unreachable",
				"Could not fetch the profile", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, profile)
	})
}
