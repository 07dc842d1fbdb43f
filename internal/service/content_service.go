package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/partition"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/storage"
	"github.com/appgallery-cms/internal/validation"
)

type contentService struct {
	repos     *repository.Repositories
	parts     *partition.Partitioner
	validator func() *validation.Validator
	mu        *sync.Mutex
	log       zerolog.Logger
}

func newContentService(
	repos *repository.Repositories,
	parts *partition.Partitioner,
	validator func() *validation.Validator,
	mu *sync.Mutex,
	log zerolog.Logger,
) *contentService {
	return &contentService{
		repos:     repos,
		parts:     parts,
		validator: validator,
		mu:        mu,
		log:       log.With().Str("service", "content").Logger(),
	}
}

func (s *contentService) List(ctx context.Context, filter models.ContentFilter) []models.ContentItem {
	items, _ := s.repos.Contents.Load(ctx)
	out := make([]models.ContentItem, 0, len(items))
	for _, c := range items {
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.Published != nil && c.IsPublished != *filter.Published {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *contentService) Get(ctx context.Context, id string) (*models.ContentItem, error) {
	items, _ := s.repos.Contents.Load(ctx)
	if idx := indexOfContent(items, id); idx >= 0 {
		return &items[idx], nil
	}
	return nil, notFound("content", id)
}

// Create stores a new item. An empty id is allocated from the type's range;
// a supplied id must fall inside it.
func (s *contentService) Create(ctx context.Context, item models.ContentItem) (*models.ContentItem, models.StorageStatus, error) {
	if !models.ValidContentTypes[item.Type] {
		return nil, models.StorageStatus{}, invalid("type must be appstory or news")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, _ := s.repos.Contents.Load(ctx)
	if item.ID == "" {
		existing := make([]string, 0, len(items))
		for _, c := range items {
			existing = append(existing, c.ID)
		}
		id, err := s.parts.NextID(string(item.Type), existing)
		if err != nil {
			return nil, models.StorageStatus{}, invalid("%v", err)
		}
		item.ID = id
	} else if !s.parts.Accept(string(item.Type), item.ID) {
		return nil, models.StorageStatus{}, invalid("id %s is outside the %s range", item.ID, item.Type)
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.IsPublished && item.PublishDate == "" {
		item.PublishDate = today()
	}

	v := s.validator()
	for _, c := range items {
		v.AddContentID(c.ID)
	}
	if err := validationFailed(v.ValidateContent(&item)); err != nil {
		return nil, models.StorageStatus{}, err
	}

	status := s.repos.Contents.Save(ctx, append(items, item))
	s.log.Info().Str("content_id", item.ID).Str("type", string(item.Type)).Str("storage", status.Storage).Msg("Content created")
	return &item, status, nil
}

func (s *contentService) Update(ctx context.Context, id string, update models.ContentUpdate) (*models.ContentItem, models.StorageStatus, error) {
	if err := validationFailed(s.validator().ValidateContentUpdate(&update)); err != nil {
		return nil, models.StorageStatus{}, err
	}
	return s.mutate(ctx, id, func(c *models.ContentItem) {
		setString(&c.Title, update.Title)
		setString(&c.Content, update.Content)
		setString(&c.Author, update.Author)
		setString(&c.PublishDate, update.PublishDate)
		setString(&c.ImageURL, update.ImageURL)
		if update.Tags != nil {
			c.Tags = *update.Tags
		}
		if update.IsPublished != nil {
			c.IsPublished = *update.IsPublished
		}
	})
}

// SetPublished flips the publish flag only
func (s *contentService) SetPublished(ctx context.Context, id string, published bool) (*models.ContentItem, models.StorageStatus, error) {
	return s.mutate(ctx, id, func(c *models.ContentItem) {
		c.IsPublished = published
		if published && c.PublishDate == "" {
			c.PublishDate = today()
		}
	})
}

func (s *contentService) mutate(ctx context.Context, id string, fn func(*models.ContentItem)) (*models.ContentItem, models.StorageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, _ := s.repos.Contents.Load(ctx)
	idx := indexOfContent(items, id)
	if idx < 0 {
		return nil, models.StorageStatus{}, notFound("content", id)
	}
	fn(&items[idx])
	item := items[idx]
	status := s.repos.Contents.Save(ctx, items)
	s.log.Info().Str("content_id", id).Str("storage", status.Storage).Msg("Content updated")
	return &item, status, nil
}

func (s *contentService) Delete(ctx context.Context, id string) (models.StorageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, _ := s.repos.Contents.Load(ctx)
	idx := indexOfContent(items, id)
	if idx < 0 {
		return models.StorageStatus{}, notFound("content", id)
	}
	status := s.repos.Contents.Save(ctx, append(items[:idx:idx], items[idx+1:]...))
	s.log.Info().Str("content_id", id).Str("storage", status.Storage).Msg("Content deleted")
	return status, nil
}

func (s *contentService) ListByType(ctx context.Context, typ models.ContentType) ([]models.ContentItem, storage.LoadResult) {
	items, res := s.repos.Contents.Load(ctx)
	out := partition.Separate(s.parts, items, contentType, contentID)[string(typ)]
	if out == nil {
		out = []models.ContentItem{}
	}
	return out, res
}

// ReplaceByType swaps the typ bucket for items, keeping the other type.
// Items are stamped with typ; ids outside its range are rejected.
func (s *contentService) ReplaceByType(ctx context.Context, typ models.ContentType, items []models.ContentItem) (ReplaceResult[models.ContentItem], error) {
	if !models.ValidContentTypes[typ] {
		return ReplaceResult[models.ContentItem]{}, invalid("type must be appstory or news")
	}

	var candidates, rejected []models.ContentItem
	for _, c := range items {
		if c.Type == "" {
			c.Type = typ
		}
		if c.Type != typ {
			rejected = append(rejected, c)
			continue
		}
		candidates = append(candidates, c)
	}
	accepted, outOfRange := partition.Split(s.parts, string(typ), candidates, contentID)
	rejected = append(rejected, outOfRange...)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, _ := s.repos.Contents.Load(ctx)
	merged := make([]models.ContentItem, 0, len(current)+len(accepted))
	for _, c := range current {
		if c.Type != typ {
			merged = append(merged, c)
		}
	}
	merged = append(merged, accepted...)

	status := s.repos.Contents.Save(ctx, merged)
	if len(rejected) > 0 {
		s.log.Warn().Str("type", string(typ)).Int("rejected", len(rejected)).Msg("Rejected contents outside the type range")
	}
	return ReplaceResult[models.ContentItem]{Accepted: accepted, Rejected: rejected, Status: status}, nil
}

func (s *contentService) All(ctx context.Context) ([]models.ContentItem, storage.LoadResult) {
	return s.repos.Contents.Load(ctx)
}

func (s *contentService) ReplaceAll(ctx context.Context, items []models.ContentItem) models.StorageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos.Contents.Save(ctx, items)
}

func indexOfContent(items []models.ContentItem, id string) int {
	for i, c := range items {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func contentType(c models.ContentItem) string { return string(c.Type) }
func contentID(c models.ContentItem) string   { return c.ID }
