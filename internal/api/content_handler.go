package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/service"
)

// ContentHandler handles App Story and News endpoints
type ContentHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewContentHandler creates a new ContentHandler
func NewContentHandler(services *service.Services, log zerolog.Logger) *ContentHandler {
	return &ContentHandler{
		services: services,
		log:      log.With().Str("handler", "content").Logger(),
	}
}

// List handles GET /api/content?type=&published=
func (h *ContentHandler) List(c *gin.Context) {
	items := h.services.Content.List(c.Request.Context(), models.ContentFilter{
		Type:      models.ContentType(c.Query("type")),
		Published: parseBool(c.Query("published")),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "contents": items, "count": len(items)})
}

// Get handles GET /api/content/:id
func (h *ContentHandler) Get(c *gin.Context) {
	item, err := h.services.Content.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "content": item})
}

// Create handles POST /api/content. A body carrying a contents array with
// ?type= replaces that type's items; any other body creates one item.
func (h *ContentHandler) Create(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read body", err.Error())
		return
	}
	if !gjson.ValidBytes(raw) {
		badRequest(c, "invalid request body", "body is not valid JSON")
		return
	}

	if doc := gjson.ParseBytes(raw); doc.IsArray() || doc.Get("contents").IsArray() {
		h.replace(c, raw)
		return
	}

	var item models.ContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	if item.Type == "" {
		item.Type = models.ContentType(c.Query("type"))
	}

	created, status, err := h.services.Content.Create(c.Request.Context(), item)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, written(gin.H{"content": created}, status))
}

type contentUpdateRequest struct {
	ID string `json:"id"`
	models.ContentUpdate
}

// Update handles PUT /api/content with the id in the body or ?id=
func (h *ContentHandler) Update(c *gin.Context) {
	var req contentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	if req.ID == "" {
		req.ID = c.Query("id")
	}
	if req.ID == "" {
		badRequest(c, "id is required", nil)
		return
	}

	item, status, err := h.services.Content.Update(c.Request.Context(), req.ID, req.ContentUpdate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{"content": item}, status))
}

// Delete handles DELETE /api/content?id=
func (h *ContentHandler) Delete(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		badRequest(c, "id is required", nil)
		return
	}
	status, err := h.services.Content.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{"id": id}, status))
}

// Publish handles PUT /api/content/:id/publish. Without a body the item is
// published.
func (h *ContentHandler) Publish(c *gin.Context) {
	req := struct {
		IsPublished *bool `json:"isPublished"`
	}{}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	published := req.IsPublished == nil || *req.IsPublished

	item, status, err := h.services.Content.SetPublished(c.Request.Context(), c.Param("id"), published)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{"content": item}, status))
}

// ListByType handles GET /api/content/type?type=
func (h *ContentHandler) ListByType(c *gin.Context) {
	typ := models.ContentType(c.Query("type"))
	if !models.ValidContentTypes[typ] {
		badRequest(c, "type must be appstory or news", nil)
		return
	}
	items, res := h.services.Content.ListByType(c.Request.Context(), typ)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"type":     typ,
		"contents": items,
		"count":    len(items),
		"source":   res.Source,
	})
}

// ReplaceByType handles POST /api/content/type?type=
func (h *ContentHandler) ReplaceByType(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read body", err.Error())
		return
	}
	h.replace(c, raw)
}

func (h *ContentHandler) replace(c *gin.Context, raw []byte) {
	typ := models.ContentType(c.Query("type"))
	if !models.ValidContentTypes[typ] {
		badRequest(c, "type must be appstory or news", nil)
		return
	}

	items, err := decodeList[models.ContentItem](raw, "contents")
	if err != nil {
		badRequest(c, "invalid contents payload", err.Error())
		return
	}

	res, err := h.services.Content.ReplaceByType(c.Request.Context(), typ, items)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(res.Rejected) > 0 {
		h.log.Warn().Str("type", string(typ)).Int("rejected", len(res.Rejected)).Msg("Excluded content outside the type range")
	}
	c.JSON(http.StatusOK, written(gin.H{
		"type":          typ,
		"validContents": nonNil(res.Accepted),
		"count":         len(res.Accepted),
		"rejected":      len(res.Rejected),
	}, res.Status))
}
