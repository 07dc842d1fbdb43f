package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/appgallery-cms/internal/models"
)

// Stats counts every collection, loading them in parallel
func (s *Services) Stats(ctx context.Context) models.Stats {
	var (
		apps     []models.AppItem
		contents []models.ContentItem
		m        models.Membership
		gallery  map[models.GalleryType][]models.GalleryImage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		apps, _ = s.App.All(gctx)
		return nil
	})
	g.Go(func() error {
		contents, _ = s.Content.All(gctx)
		return nil
	})
	g.Go(func() error {
		m = s.Membership.Get(gctx)
		return nil
	})
	g.Go(func() error {
		gallery = s.Gallery.ListAll(gctx)
		return nil
	})
	_ = g.Wait()

	stats := models.Stats{
		Apps:       len(apps),
		AppsByType: map[string]int{},
		Contents:   map[string]int{},
		Featured:   len(m.Featured),
		Events:     len(m.Events),
		Dangling:   len(m.Dangling),
		Gallery:    map[string]int{},
		Tiers:      s.store.Tiers(),
		Dirty:      s.store.Dirty(),
	}
	for _, a := range apps {
		stats.AppsByType[a.AppType()]++
	}
	for _, c := range contents {
		stats.Contents[string(c.Type)]++
		if c.IsPublished {
			stats.Published++
		}
	}
	for t, images := range gallery {
		stats.Gallery[string(t)] = len(images)
	}
	return stats
}
