package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodmap-backend/internal/instagram"
	"foodmap-backend/middleware"
	"foodmap-backend/utils"
)

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

type verifyTwoFactorRequest struct {
	Code string `json:"code" binding:"required"`
}

// SetupInstagramRoutes wires the source login flow. Login is two-step when
// the account has 2FA enabled: the first call parks the challenge and
// returns 409 two_factor_required, verify-2fa finishes it.
func SetupInstagramRoutes(router *gin.Engine, manager *instagram.Manager, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/instagram")
	group.Use(authMiddleware.RequireAuth())

	group.POST("/:account/login", func(c *gin.Context) {
		account := c.Param("account")

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		err := manager.Login(c.Request.Context(), account, req.Password)
		if errors.Is(err, instagram.ErrTwoFactorRequired) {
			utils.RespondWithError(c, http.StatusConflict, "two_factor_required",
				"Two-factor code required to finish login", gin.H{"account": account})
			return
		}
		if err != nil {
			respondAuthError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": account, "logged_in": true})
	})

	group.POST("/:account/verify-2fa", func(c *gin.Context) {
		account := c.Param("account")

		var req verifyTwoFactorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := manager.VerifyTwoFactor(c.Request.Context(), account, req.Code); err != nil {
			respondAuthError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": account, "logged_in": true})
	})

	group.DELETE("/:account/logout", func(c *gin.Context) {
		account := c.Param("account")

		if err := manager.Logout(c.Request.Context(), account); err != nil {
			utils.RespondWithInternalError(c, "Failed to log out", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": account, "logged_in": false})
	})

	group.GET("/:account/status", func(c *gin.Context) {
		account := c.Param("account")
		c.JSON(http.StatusOK, gin.H{
			"account":   account,
			"logged_in": manager.IsLoggedIn(c.Request.Context(), account),
		})
	})
}

func respondAuthError(c *gin.Context, err error) {
	var authErr *instagram.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Reason {
		case instagram.ReasonInvalidCredentials:
			utils.RespondWithUnauthorized(c, "Source rejected the credentials")
		case instagram.ReasonTwoFactorUnsupported:
			utils.RespondWithError(c, http.StatusConflict, "two_factor_unsupported",
				"Two-factor login could not be completed", nil)
		case instagram.ReasonRateLimited:
			utils.RespondWithTooManyRequests(c, "Source is throttling login attempts",
				gin.H{"retry_after": authErr.RetryAfter.Seconds()})
		default:
			utils.RespondWithError(c, http.StatusBadGateway, "source_unreachable",
				"Could not reach the source", gin.H{"error": authErr.Error()})
		}
		return
	}
	utils.RespondWithInternalError(c, "Login failed", gin.H{"error": err.Error()})
}
