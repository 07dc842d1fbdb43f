package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/service"
)

// FileHandler handles raw blob uploads, downloads and deletes
type FileHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *FileHandler {
	return &FileHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "file").Logger(),
	}
}

// Upload handles POST /api/blob/upload. The form field kind selects the
// folder: icon, screenshot, image or file (the default).
func (h *FileHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required", err.Error())
		return
	}
	kind := service.FileKind(c.DefaultPostForm("kind", string(service.KindFile)))
	switch kind {
	case service.KindIcon, service.KindScreenshot, service.KindImage, service.KindFile:
	default:
		badRequest(c, "kind must be one of: icon, screenshot, image, file", nil)
		return
	}

	data, err := readFormFile(fh, h.cfg.Upload.MaxUploadSize)
	if err != nil {
		respondError(c, err)
		return
	}
	file, err := h.services.File.Upload(c.Request.Context(), kind, fh.Filename, data)
	if err != nil {
		if errors.Is(err, service.ErrInvalid) || errors.Is(err, service.ErrTooLarge) {
			respondError(c, err)
			return
		}
		h.log.Error().Err(err).Str("filename", fh.Filename).Msg("Blob upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"url":         file.URL,
		"pathname":    file.Key,
		"contentType": file.ContentType,
		"size":        file.Size,
	})
}

// Download handles GET /api/files?url= and streams the stored bytes
func (h *FileHandler) Download(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		badRequest(c, "url is required", nil)
		return
	}
	data, contentType, err := h.services.File.Open(c.Request.Context(), url)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// Delete handles DELETE /api/delete-file?url=
func (h *FileHandler) Delete(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		badRequest(c, "url is required", nil)
		return
	}
	if err := h.services.File.Delete(c.Request.Context(), url); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}
