package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/service"
)

// AppHandler handles app listing endpoints
type AppHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewAppHandler creates a new AppHandler
func NewAppHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *AppHandler {
	return &AppHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "app").Logger(),
	}
}

// List handles GET /api/apps?q=&type=&featured=&event=
func (h *AppHandler) List(c *gin.Context) {
	apps := h.services.App.List(c.Request.Context(), models.AppFilter{
		Query:    strings.TrimSpace(c.Query("q")),
		Type:     c.Query("type"),
		Featured: parseBool(c.Query("featured")),
		Event:    parseBool(c.Query("event")),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "apps": apps, "count": len(apps)})
}

// Get handles GET /api/apps/:id
func (h *AppHandler) Get(c *gin.Context) {
	app, err := h.services.App.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "app": app})
}

// Update handles PUT /api/apps/:id
func (h *AppHandler) Update(c *gin.Context) {
	var update models.AppUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	app, status, err := h.services.App.Update(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{"app": app}, status))
}

// View handles POST /api/apps/:id/view
func (h *AppHandler) View(c *gin.Context) {
	h.counter(c, h.services.App.RecordView)
}

// Like handles POST /api/apps/:id/like
func (h *AppHandler) Like(c *gin.Context) {
	h.counter(c, h.services.App.RecordLike)
}

func (h *AppHandler) counter(c *gin.Context, record func(ctx context.Context, id string) (*models.AppItem, models.StorageStatus, error)) {
	app, status, err := record(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{"app": app, "views": app.Views, "likes": app.Likes}, status))
}

// GetMembership handles GET /api/apps/featured
func (h *AppHandler) GetMembership(c *gin.Context) {
	m := h.services.Membership.Get(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"featured": m.Featured,
		"events":   m.Events,
		"dangling": m.Dangling,
	})
}

// ReplaceMembership handles POST /api/apps/featured. Each list present in
// the body replaces the stored list; ids that match no app are dropped.
func (h *AppHandler) ReplaceMembership(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read body", err.Error())
		return
	}

	lists := map[models.MembershipList][]string{}
	for _, list := range []models.MembershipList{models.ListFeatured, models.ListEvents} {
		if !gjson.GetBytes(raw, string(list)).IsArray() {
			continue
		}
		if ids, err := repository.DecodeIDs(raw, string(list)); err == nil {
			lists[list] = ids
		}
	}
	if len(lists) == 0 {
		badRequest(c, "body must contain a featured or events array", nil)
		return
	}

	ctx := c.Request.Context()
	body := gin.H{}
	dropped := []string{}
	status := models.StorageStatus{Storage: "unchanged"}
	for _, list := range []models.MembershipList{models.ListFeatured, models.ListEvents} {
		ids, ok := lists[list]
		if !ok {
			continue
		}
		kept, d, st, err := h.services.Membership.Replace(ctx, list, ids)
		if err != nil {
			respondError(c, err)
			return
		}
		body[string(list)] = kept
		dropped = append(dropped, d...)
		if status.Storage == "unchanged" || !st.Durable() {
			status = st
		}
	}
	body["dropped"] = dropped
	c.JSON(http.StatusOK, written(body, status))
}

type membershipRequest struct {
	AppID  string                  `json:"appId" binding:"required"`
	Type   models.MembershipList   `json:"type" binding:"required"`
	Action models.MembershipAction `json:"action"`
}

// UpdateMembership handles PUT /api/apps/featured with a single-id edit.
// The action defaults to toggle.
func (h *AppHandler) UpdateMembership(c *gin.Context) {
	var req membershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "appId and type are required", err.Error())
		return
	}
	if req.Action == "" {
		req.Action = models.ActionToggle
	}

	change, status, err := h.services.Membership.Apply(c.Request.Context(), req.Type, req.AppID, req.Action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{
		"type":    change.List,
		"appId":   change.AppID,
		"member":  change.Member,
		"changed": change.Changed,
		"ids":     change.IDs,
	}, status))
}

// ListByType handles GET /api/apps/type?type=
func (h *AppHandler) ListByType(c *gin.Context) {
	typ := c.DefaultQuery("type", models.AppTypeGallery)
	apps, res := h.services.App.ListByType(c.Request.Context(), typ)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"type":    typ,
		"apps":    apps,
		"count":   len(apps),
		"source":  res.Source,
	})
}

// ReplaceByType handles POST /api/apps/type?type=
func (h *AppHandler) ReplaceByType(c *gin.Context) {
	typ := c.DefaultQuery("type", models.AppTypeGallery)
	apps, err := bindList[models.AppItem](c, "apps")
	if err != nil {
		badRequest(c, "invalid apps payload", err.Error())
		return
	}

	res, err := h.services.App.ReplaceByType(c.Request.Context(), typ, apps)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{
		"type":      typ,
		"validApps": nonNil(res.Accepted),
		"count":     len(res.Accepted),
		"rejected":  len(res.Rejected),
	}, res.Status))
}

// Upload handles POST /api/upload: a multipart app listing with an icon and
// screenshots. Stored files are removed again if the listing is rejected.
func (h *AppHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart form is required", err.Error())
		return
	}
	ctx := c.Request.Context()

	app, err := appFromForm(form)
	if err != nil {
		badRequest(c, "invalid form field", err.Error())
		return
	}

	var stored []string
	rollback := func() { h.services.File.DeleteAll(ctx, stored) }

	if icons := form.File["icon"]; len(icons) > 0 {
		file, err := h.store(c, service.KindIcon, icons[0])
		if err != nil {
			respondError(c, err)
			return
		}
		stored = append(stored, file.URL)
		app.IconURL = file.URL
	}
	for _, fh := range form.File["screenshots"] {
		file, err := h.store(c, service.KindScreenshot, fh)
		if err != nil {
			rollback()
			respondError(c, err)
			return
		}
		stored = append(stored, file.URL)
		app.ScreenshotURLs = append(app.ScreenshotURLs, file.URL)
	}

	created, status, err := h.services.App.Create(ctx, app)
	if err != nil {
		rollback()
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, written(gin.H{"app": created}, status))
}

func (h *AppHandler) store(c *gin.Context, kind service.FileKind, fh *multipart.FileHeader) (models.UploadedFile, error) {
	data, err := readFormFile(fh, h.cfg.Upload.MaxUploadSize)
	if err != nil {
		return models.UploadedFile{}, err
	}
	return h.services.File.Upload(c.Request.Context(), kind, fh.Filename, data)
}

// DeleteApp handles DELETE /api/delete-app?id=
func (h *AppHandler) DeleteApp(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		badRequest(c, "id is required", nil)
		return
	}
	status, err := h.services.App.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, written(gin.H{"id": id}, status))
}

func appFromForm(form *multipart.Form) (models.AppItem, error) {
	get := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	app := models.AppItem{
		ID:          get("id"),
		Name:        get("name"),
		Developer:   get("developer"),
		Description: get("description"),
		Store:       get("store"),
		Status:      get("status"),
		Downloads:   get("downloads"),
		StoreURL:    get("storeUrl"),
		Version:     get("version"),
		Size:        get("size"),
		Category:    get("category"),
		Type:        get("type"),
		Tags:        splitTags(get("tags")),
		IsFeatured:  get("isFeatured") == "true",
		IsEvent:     get("isEvent") == "true",
	}
	if r := get("rating"); r != "" {
		rating, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return app, fmt.Errorf("rating %q is not a number", r)
		}
		app.Rating = rating
	}
	return app, nil
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// readFormFile reads an uploaded part, refusing anything over limit
func readFormFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if limit > 0 && fh.Size > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", service.ErrTooLarge, fh.Filename, fh.Size, limit)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
