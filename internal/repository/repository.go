// Package repository exposes the stored collections (apps, contents,
// membership lists and gallery metadata) as typed documents on top of the
// tiered store.
package repository

import (
	"context"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/storage"
)

// Document keys
const (
	KeyApps     = "data/apps"
	KeyContents = "data/contents"
	KeyFeatured = "data/featured"
	KeyEvents   = "data/events"
)

// GalleryKey returns the meta document key for a gallery bucket
func GalleryKey(t models.GalleryType) string {
	return "gallery/" + string(t) + "/meta"
}

// Store is the document store the collections persist through.
// *storage.Tiered implements it.
type Store interface {
	Load(ctx context.Context, key string, accept func([]byte) error) ([]byte, storage.LoadResult)
	Save(ctx context.Context, key string, data []byte) models.StorageStatus
}

var _ Store = (*storage.Tiered)(nil)

// Repositories holds every collection
type Repositories struct {
	Apps     *Collection[[]models.AppItem]
	Contents *Collection[[]models.ContentItem]
	Featured *Collection[[]string]
	Events   *Collection[[]string]

	gallery map[models.GalleryType]*Collection[[]models.GalleryImage]
}

// New creates all collections over store
func New(store Store) *Repositories {
	gallery := make(map[models.GalleryType]*Collection[[]models.GalleryImage], len(models.GalleryTypes))
	for _, t := range models.GalleryTypes {
		gallery[t] = NewListCollection[models.GalleryImage](store, GalleryKey(t), "images")
	}

	return &Repositories{
		Apps:     NewListCollection[models.AppItem](store, KeyApps, "apps"),
		Contents: NewListCollection[models.ContentItem](store, KeyContents, "contents"),
		Featured: NewIDListCollection(store, KeyFeatured, string(models.ListFeatured)),
		Events:   NewIDListCollection(store, KeyEvents, string(models.ListEvents)),
		gallery:  gallery,
	}
}

// Membership returns the collection backing list
func (r *Repositories) Membership(list models.MembershipList) *Collection[[]string] {
	if list == models.ListEvents {
		return r.Events
	}
	return r.Featured
}

// Gallery returns the meta collection of a gallery bucket, or nil for an
// unknown bucket
func (r *Repositories) Gallery(t models.GalleryType) *Collection[[]models.GalleryImage] {
	return r.gallery[t]
}

// Keys lists every document key in a stable order
func (r *Repositories) Keys() []string {
	keys := []string{KeyApps, KeyContents, KeyFeatured, KeyEvents}
	for _, t := range models.GalleryTypes {
		keys = append(keys, GalleryKey(t))
	}
	return keys
}
