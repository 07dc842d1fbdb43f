package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/service"
)

// GalleryHandler handles the gallery image buckets and blob housekeeping
type GalleryHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewGalleryHandler creates a new GalleryHandler
func NewGalleryHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *GalleryHandler {
	return &GalleryHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "gallery").Logger(),
	}
}

// List handles GET /api/gallery. With ?type= only that bucket is returned.
func (h *GalleryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	typ := c.Query("type")
	if typ == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "gallery": h.services.Gallery.ListAll(ctx)})
		return
	}

	images, err := h.services.Gallery.List(ctx, models.GalleryType(typ))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "type": typ, "images": images, "count": len(images)})
}

// Add handles POST /api/gallery with an image that is already stored
func (h *GalleryHandler) Add(c *gin.Context) {
	var img models.GalleryImage
	if err := c.ShouldBindJSON(&img); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	if img.Type == "" {
		img.Type = models.GalleryType(c.Query("type"))
	}

	added, status, err := h.services.Gallery.Add(c.Request.Context(), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, written(gin.H{"image": added}, status))
}

// Delete handles DELETE /api/gallery?type=&id=
func (h *GalleryHandler) Delete(c *gin.Context) {
	typ, id := c.Query("type"), c.Query("id")
	if typ == "" || id == "" {
		badRequest(c, "type and id are required", nil)
		return
	}
	status, err := h.services.Gallery.Delete(c.Request.Context(), models.GalleryType(typ), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{"id": id}, status))
}

// Upload handles POST /api/gallery/:type/upload
func (h *GalleryHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required", err.Error())
		return
	}
	data, err := readFormFile(fh, h.cfg.Upload.MaxUploadSize)
	if err != nil {
		respondError(c, err)
		return
	}

	img, status, err := h.services.Gallery.Upload(
		c.Request.Context(),
		models.GalleryType(c.Param("type")),
		fh.Filename,
		data,
		c.PostForm("title"),
		c.PostForm("description"),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, written(gin.H{"image": img}, status))
}

// Setup handles POST /api/gallery/setup
func (h *GalleryHandler) Setup(c *gin.Context) {
	results := h.services.Gallery.Setup(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// SetupFolders handles POST /api/blob/setup-folders
func (h *GalleryHandler) SetupFolders(c *gin.Context) {
	folders, err := h.services.File.SetupFolders(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Strs("created", folders).Msg("Folder setup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "folder setup failed", "details": err.Error(), "created": folders})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "folders": folders})
}
