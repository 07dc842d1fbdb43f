package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/storage"
)

// FileKind selects the folder an upload lands in and whether it must be
// an image
type FileKind string

const (
	KindIcon       FileKind = "icon"
	KindScreenshot FileKind = "screenshot"
	KindImage      FileKind = "image"
	KindFile       FileKind = "file"
)

// GalleryKind is the upload kind for a gallery bucket
func GalleryKind(t models.GalleryType) FileKind {
	return FileKind("gallery/" + string(t))
}

// Folder returns the blob key prefix for the kind
func (k FileKind) Folder() string {
	switch k {
	case KindIcon:
		return "icons"
	case KindScreenshot:
		return "screenshots"
	case KindImage:
		return "images"
	case KindFile, "":
		return "uploads"
	}
	return string(k) + "/images"
}

func (k FileKind) imageOnly() bool {
	return k != KindFile && k != ""
}

type fileService struct {
	blobs   storage.BlobStore
	maxSize int64
	log     zerolog.Logger
}

func newFileService(blobs storage.BlobStore, maxSize int64, log zerolog.Logger) *fileService {
	return &fileService{
		blobs:   blobs,
		maxSize: maxSize,
		log:     log.With().Str("service", "file").Logger(),
	}
}

// Upload sniffs the content type, enforces the size limit and stores data
// under a fresh key in the kind's folder
func (s *fileService) Upload(ctx context.Context, kind FileKind, filename string, data []byte) (models.UploadedFile, error) {
	if len(data) == 0 {
		return models.UploadedFile{}, invalid("file %q is empty", filename)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return models.UploadedFile{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(data), s.maxSize)
	}

	mt := mimetype.Detect(data)
	if kind.imageOnly() && !strings.HasPrefix(mt.String(), "image/") {
		return models.UploadedFile{}, invalid("file %q is %s, expected an image", filename, mt.String())
	}

	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	key := kind.Folder() + "/" + uuid.NewString() + ext

	obj, err := s.blobs.Put(ctx, key, data, mt.String())
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Upload failed")
		return models.UploadedFile{}, fmt.Errorf("store %s: %w", filename, err)
	}

	s.log.Info().Str("key", key).Str("content_type", mt.String()).Int("size", len(data)).Msg("File uploaded")
	return models.UploadedFile{
		URL:         obj.URL,
		Key:         obj.Key,
		ContentType: mt.String(),
		Size:        int64(len(data)),
	}, nil
}

// Open returns the file bytes and their sniffed content type
func (s *fileService) Open(ctx context.Context, url string) ([]byte, string, error) {
	data, err := s.blobs.Get(ctx, url)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", notFound("file", url)
	}
	if err != nil {
		return nil, "", err
	}
	return data, mimetype.Detect(data).String(), nil
}

func (s *fileService) Delete(ctx context.Context, url string) error {
	if url == "" {
		return invalid("url is required")
	}
	err := s.blobs.Delete(ctx, url)
	if errors.Is(err, storage.ErrNotFound) {
		return notFound("file", url)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", url, err)
	}
	s.log.Info().Str("url", url).Msg("File deleted")
	return nil
}

// DeleteAll removes every url, logging failures, and returns how many were
// deleted
func (s *fileService) DeleteAll(ctx context.Context, urls []string) int {
	deleted := 0
	for _, url := range urls {
		if err := s.Delete(ctx, url); err != nil {
			s.log.Warn().Err(err).Str("url", url).Msg("Best-effort file delete failed")
			continue
		}
		deleted++
	}
	return deleted
}

// SetupFolders writes a placeholder object into every upload folder so
// stores that list by prefix show them
func (s *fileService) SetupFolders(ctx context.Context) ([]string, error) {
	kinds := []FileKind{KindIcon, KindScreenshot, KindImage, KindFile}
	for _, t := range models.GalleryTypes {
		kinds = append(kinds, GalleryKind(t))
	}

	var created []string
	for _, k := range kinds {
		key := k.Folder() + "/.keep"
		if _, err := s.blobs.Put(ctx, key, []byte{}, "text/plain"); err != nil {
			return created, fmt.Errorf("create folder %s: %w", k.Folder(), err)
		}
		created = append(created, k.Folder())
	}
	return created, nil
}
