package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/service"
)

// DataHandler serves the whole-collection routes under /api/data
type DataHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(services *service.Services, log zerolog.Logger) *DataHandler {
	return &DataHandler{
		services: services,
		log:      log.With().Str("handler", "data").Logger(),
	}
}

// GetApps handles GET /api/data/apps
func (h *DataHandler) GetApps(c *gin.Context) {
	apps, res := h.services.App.All(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"apps":    apps,
		"count":   len(apps),
		"source":  res.Source,
	})
}

// SaveApps handles POST /api/data/apps
func (h *DataHandler) SaveApps(c *gin.Context) {
	apps, err := bindList[models.AppItem](c, "apps")
	if err != nil {
		badRequest(c, "invalid apps payload", err.Error())
		return
	}
	status := h.services.App.ReplaceAll(c.Request.Context(), apps)
	c.JSON(http.StatusOK, written(gin.H{"count": len(apps)}, status))
}

// GetContents handles GET /api/data/contents
func (h *DataHandler) GetContents(c *gin.Context) {
	items, res := h.services.Content.All(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"contents": items,
		"count":    len(items),
		"source":   res.Source,
	})
}

// SaveContents handles POST /api/data/contents
func (h *DataHandler) SaveContents(c *gin.Context) {
	items, err := bindList[models.ContentItem](c, "contents")
	if err != nil {
		badRequest(c, "invalid contents payload", err.Error())
		return
	}
	status := h.services.Content.ReplaceAll(c.Request.Context(), items)
	c.JSON(http.StatusOK, written(gin.H{"count": len(items)}, status))
}

// GetIDs handles GET /api/data/featured and /api/data/events
func (h *DataHandler) GetIDs(list models.MembershipList) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, res := h.services.Membership.List(c.Request.Context(), list)
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			string(list): ids,
			"source":     res.Source,
		})
	}
}

// MergeIDs handles POST /api/data/featured and /api/data/events. The posted
// ids are unioned into the stored list.
func (h *DataHandler) MergeIDs(list models.MembershipList) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			badRequest(c, "failed to read body", err.Error())
			return
		}
		ids, err := repository.DecodeIDs(raw, string(list))
		if err != nil {
			badRequest(c, "invalid "+string(list)+" payload", err.Error())
			return
		}

		merged, status, err := h.services.Membership.Merge(c.Request.Context(), list, ids)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, written(gin.H{string(list): merged, "count": len(merged)}, status))
	}
}
