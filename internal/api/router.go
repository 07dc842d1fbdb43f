package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/metrics"
	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/service"
)

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = cfg.Upload.MaxUploadSize

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())
	router.Use(metricsMiddleware())
	router.Use(newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log).middleware())

	// Handlers
	dataHandler := NewDataHandler(services, log)
	appHandler := NewAppHandler(services, cfg, log)
	contentHandler := NewContentHandler(services, log)
	galleryHandler := NewGalleryHandler(services, cfg, log)
	fileHandler := NewFileHandler(services, cfg, log)

	// Health check and operations
	router.GET("/health", healthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/stats", statsHandler(services))

	api := router.Group("/api")
	{
		data := api.Group("/data")
		{
			data.GET("/apps", dataHandler.GetApps)
			data.POST("/apps", dataHandler.SaveApps)
			data.GET("/contents", dataHandler.GetContents)
			data.POST("/contents", dataHandler.SaveContents)
			data.GET("/featured", dataHandler.GetIDs(models.ListFeatured))
			data.POST("/featured", dataHandler.MergeIDs(models.ListFeatured))
			data.GET("/events", dataHandler.GetIDs(models.ListEvents))
			data.POST("/events", dataHandler.MergeIDs(models.ListEvents))
		}

		apps := api.Group("/apps")
		{
			apps.GET("", appHandler.List)
			apps.GET("/featured", appHandler.GetMembership)
			apps.POST("/featured", appHandler.ReplaceMembership)
			apps.PUT("/featured", appHandler.UpdateMembership)
			apps.GET("/type", appHandler.ListByType)
			apps.POST("/type", appHandler.ReplaceByType)
			apps.GET("/:id", appHandler.Get)
			apps.PUT("/:id", appHandler.Update)
			apps.POST("/:id/view", appHandler.View)
			apps.POST("/:id/like", appHandler.Like)
		}

		content := api.Group("/content")
		{
			content.GET("", contentHandler.List)
			content.POST("", contentHandler.Create)
			content.PUT("", contentHandler.Update)
			content.DELETE("", contentHandler.Delete)
			content.GET("/type", contentHandler.ListByType)
			content.POST("/type", contentHandler.ReplaceByType)
			content.GET("/:id", contentHandler.Get)
			content.PUT("/:id/publish", contentHandler.Publish)
		}

		gallery := api.Group("/gallery")
		{
			gallery.GET("", galleryHandler.List)
			gallery.POST("", galleryHandler.Add)
			gallery.DELETE("", galleryHandler.Delete)
			gallery.POST("/setup", galleryHandler.Setup)
			gallery.POST("/:type/upload", galleryHandler.Upload)
		}

		// File lifecycle
		api.POST("/upload", appHandler.Upload)
		api.POST("/blob/upload", fileHandler.Upload)
		api.POST("/blob/setup-folders", galleryHandler.SetupFolders)
		api.GET("/files", fileHandler.Download)
		api.DELETE("/delete-file", fileHandler.Delete)
		api.DELETE("/delete-app", appHandler.DeleteApp)

		// Reconciliation
		api.GET("/sync", syncStatus(services))
		api.POST("/sync", syncRun(services))
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "appgallery-cms",
	})
}

// statsHandler returns collection counts and the storage tier layout
func statsHandler(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"stats":     services.Stats(c.Request.Context()),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func syncStatus(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "report": services.Sync.LastReport()})
	}
}

// syncRun triggers a reconciliation run and waits for it
func syncRun(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := services.Sync.RunOnce(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"success": report.Remaining == 0, "report": report})
	}
}
