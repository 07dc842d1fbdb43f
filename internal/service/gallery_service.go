package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/storage"
)

// galleryService keeps one meta document of images per gallery bucket
type galleryService struct {
	repos *repository.Repositories
	files FileService
	mu    *sync.Mutex
	log   zerolog.Logger
}

func newGalleryService(repos *repository.Repositories, files FileService, mu *sync.Mutex, log zerolog.Logger) *galleryService {
	return &galleryService{
		repos: repos,
		files: files,
		mu:    mu,
		log:   log.With().Str("service", "gallery").Logger(),
	}
}

func (s *galleryService) collection(typ models.GalleryType) (*repository.Collection[[]models.GalleryImage], error) {
	coll := s.repos.Gallery(typ)
	if coll == nil {
		return nil, invalid("gallery type must be featured, events or normal")
	}
	return coll, nil
}

func (s *galleryService) List(ctx context.Context, typ models.GalleryType) ([]models.GalleryImage, error) {
	coll, err := s.collection(typ)
	if err != nil {
		return nil, err
	}
	images, _ := coll.Load(ctx)
	return images, nil
}

func (s *galleryService) ListAll(ctx context.Context) map[models.GalleryType][]models.GalleryImage {
	out := make(map[models.GalleryType][]models.GalleryImage, len(models.GalleryTypes))
	for _, t := range models.GalleryTypes {
		out[t], _ = s.repos.Gallery(t).Load(ctx)
	}
	return out
}

// Add appends img to its bucket's meta document
func (s *galleryService) Add(ctx context.Context, img models.GalleryImage) (*models.GalleryImage, models.StorageStatus, error) {
	coll, err := s.collection(img.Type)
	if err != nil {
		return nil, models.StorageStatus{}, err
	}
	if img.URL == "" {
		return nil, models.StorageStatus{}, invalid("url is required")
	}
	if img.ID == "" {
		img.ID = adHocID()
	}
	if img.UploadedAt == "" {
		img.UploadedAt = time.Now().UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	images, _ := coll.Load(ctx)
	for _, existing := range images {
		if existing.ID == img.ID {
			return nil, models.StorageStatus{}, invalid("gallery image %s already exists", img.ID)
		}
	}
	status := coll.Save(ctx, append(images, img))
	s.log.Info().Str("type", string(img.Type)).Str("image_id", img.ID).Str("storage", status.Storage).Msg("Gallery image added")
	return &img, status, nil
}

// Upload stores the image file and records it in the bucket
func (s *galleryService) Upload(ctx context.Context, typ models.GalleryType, filename string, data []byte, title, description string) (*models.GalleryImage, models.StorageStatus, error) {
	if _, err := s.collection(typ); err != nil {
		return nil, models.StorageStatus{}, err
	}
	file, err := s.files.Upload(ctx, GalleryKind(typ), filename, data)
	if err != nil {
		return nil, models.StorageStatus{}, err
	}
	img, status, err := s.Add(ctx, models.GalleryImage{
		Type:        typ,
		URL:         file.URL,
		Title:       title,
		Description: description,
	})
	if err != nil {
		s.files.DeleteAll(ctx, []string{file.URL})
		return nil, status, err
	}
	return img, status, nil
}

// Delete removes the image from its bucket and deletes the file
func (s *galleryService) Delete(ctx context.Context, typ models.GalleryType, id string) (models.StorageStatus, error) {
	coll, err := s.collection(typ)
	if err != nil {
		return models.StorageStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	images, _ := coll.Load(ctx)
	idx := -1
	for i, img := range images {
		if img.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.StorageStatus{}, notFound("gallery image", id)
	}

	removed := images[idx]
	status := coll.Save(ctx, append(images[:idx:idx], images[idx+1:]...))
	s.files.DeleteAll(ctx, []string{removed.URL})
	return status, nil
}

// Setup writes an empty meta document for every bucket that has none
func (s *galleryService) Setup(ctx context.Context) map[models.GalleryType]models.StorageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.GalleryType]models.StorageStatus, len(models.GalleryTypes))
	for _, t := range models.GalleryTypes {
		coll := s.repos.Gallery(t)
		images, res := coll.Load(ctx)
		if res.Source != storage.SourceEmpty {
			out[t] = models.StorageStatus{Storage: "unchanged"}
			continue
		}
		out[t] = coll.Save(ctx, images)
	}
	return out
}
