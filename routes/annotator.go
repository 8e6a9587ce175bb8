package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foodmap-backend/internal/gateway"
	"foodmap-backend/internal/store"
	"foodmap-backend/middleware"
	"foodmap-backend/utils"
)

type annotationResult struct {
	PostID  string `json:"post_id" binding:"required"`
	Store   string `json:"store"`
	Address string `json:"address" binding:"required"`
}

type annotationBatch struct {
	Results []annotationResult `json:"results" binding:"required,min=1"`
}

type annotationFailure struct {
	PostID string `json:"post_id" binding:"required"`
	Reason string `json:"reason"`
}

// SetupAnnotatorRoutes wires the surface the external annotation stage works
// against: claim a batch of unparsed records, commit results, report
// failures. Commits are per item; a bad entry never blocks the rest of the
// batch.
func SetupAnnotatorRoutes(router *gin.Engine, gw *gateway.Gateway, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/annotator")
	group.Use(authMiddleware.RequireAuth())

	group.GET("/:account/unparsed", func(c *gin.Context) {
		account := c.Param("account")

		limit, ok := parseInt64Query(c, "limit")
		if !ok {
			return
		}

		records, err := gw.ClaimUnparsed(c.Request.Context(), account, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list unparsed posts", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": account, "count": len(records), "posts": records})
	})

	group.PATCH("/:account/posts", func(c *gin.Context) {
		account := c.Param("account")

		var batch annotationBatch
		if err := c.ShouldBindJSON(&batch); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		updated := 0
		failed := []gin.H{}
		for _, result := range batch.Results {
			err := gw.CommitParsed(c.Request.Context(), account, result.PostID, result.Store, result.Address)
			if err != nil {
				reason := "commit failed"
				if store.IsNotFound(err) {
					reason = "post not found"
				}
				failed = append(failed, gin.H{"post_id": result.PostID, "reason": reason})
				continue
			}
			updated++
		}

		c.JSON(http.StatusOK, gin.H{
			"account": account,
			"updated": updated,
			"failed":  failed,
		})
	})

	group.POST("/:account/failures", func(c *gin.Context) {
		account := c.Param("account")

		var req annotationFailure
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := gw.CommitFailure(c.Request.Context(), account, req.PostID, req.Reason); err != nil {
			if store.IsNotFound(err) {
				utils.RespondWithNotFound(c, "Post not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to record annotation failure", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": account, "post_id": req.PostID, "state": "parse_failed"})
	})
}
