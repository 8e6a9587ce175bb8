package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"foodmap-backend/internal/instagram"
	"foodmap-backend/internal/queue"
	"foodmap-backend/internal/store"
	syncengine "foodmap-backend/internal/sync"
	"foodmap-backend/middleware"
	"foodmap-backend/utils"
)

// SetupSyncRoutes wires sync triggering and inspection. The default trigger
// enqueues a background task; ?wait=true runs the sync inline and returns
// the full run result.
func SetupSyncRoutes(
	router *gin.Engine,
	engine *syncengine.Engine,
	manager *instagram.Manager,
	posts *store.PostStore,
	asynqClient *asynq.Client,
	authMiddleware *middleware.AuthMiddleware,
) {
	group := router.Group("/sync")
	group.Use(authMiddleware.RequireAuth())

	group.POST("/:account", func(c *gin.Context) {
		account := c.Param("account")

		max := 0
		if raw := c.Query("max"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				utils.RespondWithBadRequest(c, "max must be a non-negative integer", nil)
				return
			}
			max = parsed
		}

		if c.Query("wait") != "true" {
			task, err := queue.NewSyncRunTask(account, max)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to build sync task", nil)
				return
			}
			info, err := asynqClient.Enqueue(task)
			if err != nil {
				utils.RespondWithConflict(c, "A sync for this account is already queued or running",
					gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"account": account, "task_id": info.ID, "queue": info.Queue})
			return
		}

		result, err := engine.Run(c.Request.Context(), account, nil, max)
		if err != nil {
			var authErr *instagram.AuthError
			if errors.As(err, &authErr) && authErr.Reason == instagram.ReasonInvalidCredentials {
				utils.RespondWithUnauthorized(c, "No usable session; log the account in first")
				return
			}
			// Partial progress is still reported alongside the abort
			c.JSON(http.StatusBadGateway, gin.H{
				"error_code": "sync_aborted",
				"message":    "Sync run aborted before completing",
				"result":     result,
			})
			return
		}

		c.JSON(http.StatusOK, result)
	})

	group.GET("/:account/status", func(c *gin.Context) {
		account := c.Param("account")

		total, err := posts.Count(c.Request.Context(), account)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read record counts", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account":     account,
			"logged_in":   manager.IsLoggedIn(c.Request.Context(), account),
			"total_posts": total,
		})
	})
}
