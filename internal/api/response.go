package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/service"
)

// respondError maps service errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	var vf *service.ValidationFailed
	switch {
	case errors.As(err, &vf):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": vf.Errors})
	case errors.Is(err, service.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "details": err.Error()})
	case errors.Is(err, service.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "details": err.Error()})
	}
}

func badRequest(c *gin.Context, msg string, details interface{}) {
	body := gin.H{"error": msg}
	if details != nil {
		body["details"] = details
	}
	c.JSON(http.StatusBadRequest, body)
}

// written adds the storage outcome of a write to a success body
func written(body gin.H, st models.StorageStatus) gin.H {
	body["success"] = true
	body["storage"] = st.Storage
	if st.Verified {
		body["verified"] = true
	}
	if st.Warning != "" {
		body["warning"] = st.Warning
	}
	return body
}

// bindList reads the request body and decodes it with decodeList
func bindList[T any](c *gin.Context, field string) ([]T, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return decodeList[T](raw, field)
}

// decodeList decodes either a bare JSON array or an object with the array
// under field
func decodeList[T any](raw []byte, field string) ([]T, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("body is not valid JSON")
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		doc = doc.Get(field)
		if !doc.IsArray() {
			return nil, fmt.Errorf("body must be an array or an object with a %q array", field)
		}
	}

	out := []T{}
	if err := json.Unmarshal([]byte(doc.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return out, nil
}

func parseBool(v string) *bool {
	switch v {
	case "true", "1":
		b := true
		return &b
	case "false", "0":
		b := false
		return &b
	}
	return nil
}
