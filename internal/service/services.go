package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/partition"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/storage"
	"github.com/appgallery-cms/internal/validation"
)

// AppService manages app listings
type AppService interface {
	List(ctx context.Context, filter models.AppFilter) []models.AppItem
	Get(ctx context.Context, id string) (*models.AppItem, error)
	Create(ctx context.Context, app models.AppItem) (*models.AppItem, models.StorageStatus, error)
	Update(ctx context.Context, id string, update models.AppUpdate) (*models.AppItem, models.StorageStatus, error)
	Delete(ctx context.Context, id string) (models.StorageStatus, error)
	RecordView(ctx context.Context, id string) (*models.AppItem, models.StorageStatus, error)
	RecordLike(ctx context.Context, id string) (*models.AppItem, models.StorageStatus, error)
	ListByType(ctx context.Context, typ string) ([]models.AppItem, storage.LoadResult)
	ReplaceByType(ctx context.Context, typ string, apps []models.AppItem) (ReplaceResult[models.AppItem], error)
	All(ctx context.Context) ([]models.AppItem, storage.LoadResult)
	ReplaceAll(ctx context.Context, apps []models.AppItem) models.StorageStatus
}

// ContentService manages App Story and News items
type ContentService interface {
	List(ctx context.Context, filter models.ContentFilter) []models.ContentItem
	Get(ctx context.Context, id string) (*models.ContentItem, error)
	Create(ctx context.Context, item models.ContentItem) (*models.ContentItem, models.StorageStatus, error)
	Update(ctx context.Context, id string, update models.ContentUpdate) (*models.ContentItem, models.StorageStatus, error)
	Delete(ctx context.Context, id string) (models.StorageStatus, error)
	SetPublished(ctx context.Context, id string, published bool) (*models.ContentItem, models.StorageStatus, error)
	ListByType(ctx context.Context, typ models.ContentType) ([]models.ContentItem, storage.LoadResult)
	ReplaceByType(ctx context.Context, typ models.ContentType, items []models.ContentItem) (ReplaceResult[models.ContentItem], error)
	All(ctx context.Context) ([]models.ContentItem, storage.LoadResult)
	ReplaceAll(ctx context.Context, items []models.ContentItem) models.StorageStatus
}

// MembershipService manages the featured and events lists
type MembershipService interface {
	Get(ctx context.Context) models.Membership
	List(ctx context.Context, list models.MembershipList) ([]string, storage.LoadResult)
	Apply(ctx context.Context, list models.MembershipList, appID string, action models.MembershipAction) (models.MembershipChange, models.StorageStatus, error)
	Replace(ctx context.Context, list models.MembershipList, ids []string) (kept, dropped []string, status models.StorageStatus, err error)
	Merge(ctx context.Context, list models.MembershipList, ids []string) ([]string, models.StorageStatus, error)
	RemoveApp(ctx context.Context, appID string) models.StorageStatus
	Annotate(apps []models.AppItem, m models.Membership) []models.AppItem
}

// FileService stores uploaded files in the blob store
type FileService interface {
	Upload(ctx context.Context, kind FileKind, filename string, data []byte) (models.UploadedFile, error)
	Open(ctx context.Context, url string) ([]byte, string, error)
	Delete(ctx context.Context, url string) error
	DeleteAll(ctx context.Context, urls []string) int
	SetupFolders(ctx context.Context) ([]string, error)
}

// GalleryService manages the gallery image buckets
type GalleryService interface {
	List(ctx context.Context, typ models.GalleryType) ([]models.GalleryImage, error)
	ListAll(ctx context.Context) map[models.GalleryType][]models.GalleryImage
	Add(ctx context.Context, img models.GalleryImage) (*models.GalleryImage, models.StorageStatus, error)
	Upload(ctx context.Context, typ models.GalleryType, filename string, data []byte, title, description string) (*models.GalleryImage, models.StorageStatus, error)
	Delete(ctx context.Context, typ models.GalleryType, id string) (models.StorageStatus, error)
	Setup(ctx context.Context) map[models.GalleryType]models.StorageStatus
}

// SyncService reconciles memory-only writes with the persistent tiers
type SyncService interface {
	Start(ctx context.Context) error
	Stop()
	RunOnce(ctx context.Context) models.SyncReport
	LastReport() *models.SyncReport
}

// SyncStore is the part of the tiered store the sync worker drives
type SyncStore interface {
	repository.Store
	Flush(ctx context.Context) storage.FlushResult
	Refresh(ctx context.Context, key string) storage.LoadResult
	Dirty() []string
	Tiers() []string
}

var _ SyncStore = (*storage.Tiered)(nil)

// ReplaceResult reports a partitioned replace
type ReplaceResult[T any] struct {
	Accepted []T
	Rejected []T
	Status   models.StorageStatus
}

// Services holds all service interfaces
type Services struct {
	App        AppService
	Content    ContentService
	Membership MembershipService
	File       FileService
	Gallery    GalleryService
	Sync       SyncService

	repos *repository.Repositories
	store SyncStore
}

// NewServices creates all services. Every read-modify-write of a collection
// runs under one process-wide lock.
func NewServices(repos *repository.Repositories, store SyncStore, blobs storage.BlobStore, cfg *config.Config, log zerolog.Logger) *Services {
	policy, err := partition.ParsePolicy(cfg.Validation.IDPolicy)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to lenient id policy")
		policy = partition.Lenient
	}
	parts := partition.New(nil, policy)
	validator := func() *validation.Validator { return validation.NewValidator(cfg.Upload.MaxScreenshots) }
	mu := &sync.Mutex{}

	fileSvc := newFileService(blobs, cfg.Upload.MaxUploadSize, log)
	membershipSvc := newMembershipService(repos, mu, log)
	appSvc := newAppService(repos, membershipSvc, fileSvc, parts, validator, mu, log)
	contentSvc := newContentService(repos, parts, validator, mu, log)
	gallerySvc := newGalleryService(repos, fileSvc, mu, log)
	syncSvc := newSyncService(store, repos, cfg.Sync, log)

	return &Services{
		App:        appSvc,
		Content:    contentSvc,
		Membership: membershipSvc,
		File:       fileSvc,
		Gallery:    gallerySvc,
		Sync:       syncSvc,
		repos:      repos,
		store:      store,
	}
}

// adHocID returns an id of the form <unixmillis>_<random>
func adHocID() string {
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
