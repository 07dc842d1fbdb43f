package validation

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/appgallery-cms/internal/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator checks app and content records. It remembers the ids it has
// seen so a batch can be checked for duplicates.
type Validator struct {
	maxScreenshots int
	appIDCache     map[string]bool
	contentIDCache map[string]bool
}

// NewValidator creates a new validator instance. maxScreenshots <= 0 means
// no limit.
func NewValidator(maxScreenshots int) *Validator {
	return &Validator{
		maxScreenshots: maxScreenshots,
		appIDCache:     make(map[string]bool),
		contentIDCache: make(map[string]bool),
	}
}

// ValidateApp validates a full app record
func (v *Validator) ValidateApp(app *models.AppItem) []ValidationError {
	var errors []ValidationError

	// Validate ID
	if app.ID == "" {
		errors = append(errors, ValidationError{Field: "id", Message: "id is required"})
	} else if v.appIDCache[app.ID] {
		errors = append(errors, ValidationError{Field: "id", Message: "duplicate id", Value: app.ID})
	}

	if strings.TrimSpace(app.Name) == "" {
		errors = append(errors, ValidationError{Field: "name", Message: "name is required"})
	}
	if strings.TrimSpace(app.Developer) == "" {
		errors = append(errors, ValidationError{Field: "developer", Message: "developer is required"})
	}

	errors = append(errors, v.appFields(app.Store, app.Status, app.Rating, app.Version, app.StoreURL, app.UploadDate, app.ScreenshotURLs)...)

	if app.Views < 0 || app.Likes < 0 {
		errors = append(errors, ValidationError{Field: "views", Message: "counters must not be negative"})
	}
	return errors
}

// AddAppID marks id as seen
func (v *Validator) AddAppID(id string) {
	v.appIDCache[id] = true
}

// ValidateAppUpdate validates the fields present in an update
func (v *Validator) ValidateAppUpdate(u *models.AppUpdate) []ValidationError {
	var errors []ValidationError

	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		errors = append(errors, ValidationError{Field: "name", Message: "name must not be empty"})
	}
	if u.Developer != nil && strings.TrimSpace(*u.Developer) == "" {
		errors = append(errors, ValidationError{Field: "developer", Message: "developer must not be empty"})
	}

	rating := 0.0
	if u.Rating != nil {
		rating = *u.Rating
	}
	var screenshots []string
	if u.ScreenshotURLs != nil {
		screenshots = *u.ScreenshotURLs
	}
	errors = append(errors, v.appFields(deref(u.Store), deref(u.Status), rating, deref(u.Version), deref(u.StoreURL), "", screenshots)...)
	return errors
}

func (v *Validator) appFields(store, status string, rating float64, version, storeURL, uploadDate string, screenshots []string) []ValidationError {
	var errors []ValidationError

	if store != "" && !models.ValidStores[store] {
		errors = append(errors, ValidationError{
			Field:   "store",
			Message: "invalid store, must be one of: google, apple, onestore, galaxy, web, other",
			Value:   store,
		})
	}
	if status != "" && !models.ValidAppStatuses[status] {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "invalid status, must be one of: published, in-review, development, hidden",
			Value:   status,
		})
	}
	if rating < 0 || rating > 5 {
		errors = append(errors, ValidationError{Field: "rating", Message: "rating must be between 0 and 5", Value: rating})
	}
	if version != "" {
		if _, err := semver.NewVersion(version); err != nil {
			errors = append(errors, ValidationError{Field: "version", Message: "version must be a semantic version (e.g. 1.2.0)", Value: version})
		}
	}
	if storeURL != "" && !isHTTPURL(storeURL) {
		errors = append(errors, ValidationError{Field: "storeUrl", Message: "storeUrl must be an http(s) URL", Value: storeURL})
	}
	if uploadDate != "" && !isDate(uploadDate) {
		errors = append(errors, ValidationError{Field: "uploadDate", Message: "invalid ISO 8601 date format", Value: uploadDate})
	}
	if v.maxScreenshots > 0 && len(screenshots) > v.maxScreenshots {
		errors = append(errors, ValidationError{
			Field:   "screenshotUrls",
			Message: fmt.Sprintf("at most %d screenshots are allowed", v.maxScreenshots),
			Value:   len(screenshots),
		})
	}
	return errors
}

// ValidateContent validates a content record
func (v *Validator) ValidateContent(content *models.ContentItem) []ValidationError {
	var errors []ValidationError

	if content.ID == "" {
		errors = append(errors, ValidationError{Field: "id", Message: "id is required"})
	} else if v.contentIDCache[content.ID] {
		errors = append(errors, ValidationError{Field: "id", Message: "duplicate id", Value: content.ID})
	}

	if strings.TrimSpace(content.Title) == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title is required"})
	}

	if content.Type == "" {
		errors = append(errors, ValidationError{Field: "type", Message: "type is required"})
	} else if !models.ValidContentTypes[content.Type] {
		errors = append(errors, ValidationError{Field: "type", Message: "invalid type, must be one of: appstory, news", Value: content.Type})
	}

	if content.PublishDate != "" && !isDate(content.PublishDate) {
		errors = append(errors, ValidationError{Field: "publishDate", Message: "invalid ISO 8601 date format", Value: content.PublishDate})
	}
	if content.ImageURL != "" && !isHTTPURL(content.ImageURL) && !strings.Contains(content.ImageURL, "://") {
		errors = append(errors, ValidationError{Field: "imageUrl", Message: "imageUrl must be a URL", Value: content.ImageURL})
	}
	return errors
}

// AddContentID marks id as seen
func (v *Validator) AddContentID(id string) {
	v.contentIDCache[id] = true
}

// ValidateContentUpdate validates the fields present in an update
func (v *Validator) ValidateContentUpdate(u *models.ContentUpdate) []ValidationError {
	var errors []ValidationError
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title must not be empty"})
	}
	if u.PublishDate != nil && *u.PublishDate != "" && !isDate(*u.PublishDate) {
		errors = append(errors, ValidationError{Field: "publishDate", Message: "invalid ISO 8601 date format", Value: *u.PublishDate})
	}
	return errors
}

// dateLayouts are the accepted ISO 8601 forms, date-only first
var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isHTTPURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
