package models

// GalleryType is one of the curated image buckets
type GalleryType string

const (
	GalleryFeatured GalleryType = "featured"
	GalleryEvents   GalleryType = "events"
	GalleryNormal   GalleryType = "normal"
)

// GalleryTypes lists every gallery bucket in display order
var GalleryTypes = []GalleryType{GalleryFeatured, GalleryEvents, GalleryNormal}

// ValidGalleryType reports whether t names a gallery bucket
func ValidGalleryType(t string) bool {
	for _, g := range GalleryTypes {
		if string(g) == t {
			return true
		}
	}
	return false
}

// GalleryImage is one entry in a gallery bucket's meta document
type GalleryImage struct {
	ID          string      `json:"id"`
	Type        GalleryType `json:"type"`
	URL         string      `json:"url"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	UploadedAt  string      `json:"uploadedAt"`
}
