package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"foodmap-backend/internal/auth"
	"foodmap-backend/internal/config"
	"foodmap-backend/utils"
)

type tokenRequest struct {
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// SetupAuthRoutes wires the operator token endpoints. The API has a single
// operator identity; possession of the configured password is the only
// credential.
func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, rdb *redis.Client) {
	authGroup := router.Group("/auth")

	authGroup.POST("/token", func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if !utils.CheckPassword(req.Password, cfg.APIPasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid password")
			return
		}

		pair, err := auth.IssueTokenPair(rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		c.JSON(http.StatusOK, pair)
	})

	authGroup.POST("/refresh", func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.ValidateRefreshToken(req.RefreshToken, rdb)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired refresh token")
			return
		}

		// Rotate: old refresh token is spent
		if err := auth.RevokeToken(claims.ID, true, rdb); err != nil {
			utils.RespondWithInternalError(c, "Failed to rotate refresh token", nil)
			return
		}

		pair, err := auth.IssueTokenPair(rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		c.JSON(http.StatusOK, pair)
	})
}
