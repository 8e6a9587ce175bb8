package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"foodmap-backend/internal/store"
	"foodmap-backend/middleware"
	"foodmap-backend/models"
	"foodmap-backend/utils"
)

// SetupPostRoutes wires read access to the stored records.
func SetupPostRoutes(router *gin.Engine, posts *store.PostStore, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/posts")
	group.Use(authMiddleware.RequireAuth())

	group.GET("/:account", func(c *gin.Context) {
		account := c.Param("account")

		filter := store.QueryFilter{
			State:   c.Query("state"),
			Keyword: c.Query("keyword"),
		}
		if filter.State != "" && !validState(filter.State) {
			utils.RespondWithBadRequest(c, "state must be one of unparsed, parsed, parse_failed", nil)
			return
		}

		var ok bool
		if filter.Limit, ok = parseInt64Query(c, "limit"); !ok {
			return
		}
		if filter.Offset, ok = parseInt64Query(c, "offset"); !ok {
			return
		}

		records, err := posts.Query(c.Request.Context(), account, filter)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to query posts", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": account, "count": len(records), "posts": records})
	})

	// Parsed records with a usable address, for map rendering
	group.GET("/:account/parsed", func(c *gin.Context) {
		account := c.Param("account")

		limit, ok := parseInt64Query(c, "limit")
		if !ok {
			return
		}
		offset, ok := parseInt64Query(c, "offset")
		if !ok {
			return
		}

		records, err := posts.ListParsed(c.Request.Context(), account, limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to query parsed posts", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": account, "count": len(records), "posts": records})
	})
}

func validState(state string) bool {
	switch state {
	case models.StateUnparsed, models.StateParsed, models.StateParseFailed:
		return true
	}
	return false
}

// parseInt64Query reads a non-negative integer query param. On a malformed
// value it writes the 400 response and reports !ok.
func parseInt64Query(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		utils.RespondWithBadRequest(c, name+" must be a non-negative integer", nil)
		return 0, false
	}
	return value, true
}
