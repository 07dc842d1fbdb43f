package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/partition"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/storage"
	"github.com/appgallery-cms/internal/validation"
)

type appService struct {
	repos      *repository.Repositories
	membership *membershipService
	files      FileService
	parts      *partition.Partitioner
	validator  func() *validation.Validator
	mu         *sync.Mutex
	log        zerolog.Logger
}

func newAppService(
	repos *repository.Repositories,
	membership *membershipService,
	files FileService,
	parts *partition.Partitioner,
	validator func() *validation.Validator,
	mu *sync.Mutex,
	log zerolog.Logger,
) *appService {
	return &appService{
		repos:      repos,
		membership: membership,
		files:      files,
		parts:      parts,
		validator:  validator,
		mu:         mu,
		log:        log.With().Str("service", "app").Logger(),
	}
}

// List returns apps with their derived membership flags. A query matches
// fuzzily against name, developer and tags; name matches rank first.
func (s *appService) List(ctx context.Context, filter models.AppFilter) []models.AppItem {
	apps := s.membership.Annotate(s.membership.snapshot(ctx))

	out := make([]models.AppItem, 0, len(apps))
	for _, a := range apps {
		if filter.Type != "" && a.AppType() != filter.Type {
			continue
		}
		if filter.Featured != nil && a.IsFeatured != *filter.Featured {
			continue
		}
		if filter.Event != nil && a.IsEvent != *filter.Event {
			continue
		}
		if filter.Query != "" && !matchesQuery(filter.Query, a) {
			continue
		}
		out = append(out, a)
	}

	if filter.Query != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return nameRank(filter.Query, out[i]) < nameRank(filter.Query, out[j])
		})
	}
	return out
}

func (s *appService) Get(ctx context.Context, id string) (*models.AppItem, error) {
	apps := s.membership.Annotate(s.membership.snapshot(ctx))
	for i := range apps {
		if apps[i].ID == id {
			return &apps[i], nil
		}
	}
	return nil, notFound("app", id)
}

// Create stores a new app. An empty id is allocated from the app type's
// range; IsFeatured and IsEvent on the input add the app to those lists.
func (s *appService) Create(ctx context.Context, app models.AppItem) (*models.AppItem, models.StorageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apps, _ := s.repos.Apps.Load(ctx)

	if app.Type == "" {
		app.Type = models.AppTypeGallery
	}
	if app.ID == "" {
		app.ID = s.allocateID(app.Type, apps)
	} else if !s.parts.Accept(app.Type, app.ID) {
		return nil, models.StorageStatus{}, invalid("id %s is outside the %s range", app.ID, app.Type)
	}
	if app.UploadDate == "" {
		app.UploadDate = today()
	}
	if app.Status == "" {
		app.Status = "published"
	}
	if app.Downloads == "" {
		app.Downloads = "0"
	}
	if app.Tags == nil {
		app.Tags = []string{}
	}
	if app.ScreenshotURLs == nil {
		app.ScreenshotURLs = []string{}
	}

	v := s.validator()
	for _, a := range apps {
		v.AddAppID(a.ID)
	}
	if err := validationFailed(v.ValidateApp(&app)); err != nil {
		return nil, models.StorageStatus{}, err
	}

	wantFeatured, wantEvent := app.IsFeatured, app.IsEvent
	status := s.repos.Apps.Save(ctx, append(apps, app.Stored()))

	for list, want := range map[models.MembershipList]bool{models.ListFeatured: wantFeatured, models.ListEvents: wantEvent} {
		if !want {
			continue
		}
		coll := s.repos.Membership(list)
		ids, _ := coll.Load(ctx)
		if !contains(ids, app.ID) {
			if st := coll.Save(ctx, append(ids, app.ID)); !st.Durable() {
				status = st
			}
		}
	}

	s.log.Info().Str("app_id", app.ID).Str("name", app.Name).Str("storage", status.Storage).Msg("App created")
	return &app, status, nil
}

func (s *appService) allocateID(typ string, apps []models.AppItem) string {
	existing := make([]string, 0, len(apps))
	for _, a := range apps {
		existing = append(existing, a.ID)
	}
	id, err := s.parts.NextID(typ, existing)
	if err != nil {
		return adHocID()
	}
	return id
}

// Update merges the non-nil fields of update into the app. Replaced icon and
// screenshot files are deleted from the blob store.
func (s *appService) Update(ctx context.Context, id string, update models.AppUpdate) (*models.AppItem, models.StorageStatus, error) {
	if err := validationFailed(s.validator().ValidateAppUpdate(&update)); err != nil {
		return nil, models.StorageStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	apps, _ := s.repos.Apps.Load(ctx)
	idx := indexOfApp(apps, id)
	if idx < 0 {
		return nil, models.StorageStatus{}, notFound("app", id)
	}

	before := apps[idx]
	after := applyAppUpdate(before, update)
	apps[idx] = after.Stored()
	status := s.repos.Apps.Save(ctx, apps)

	if removed := removedFiles(before.Files(), after.Files()); len(removed) > 0 {
		s.files.DeleteAll(ctx, removed)
	}

	s.log.Info().Str("app_id", id).Str("storage", status.Storage).Msg("App updated")
	return &after, status, nil
}

// Delete removes the app, its files and its membership entries. File and
// membership cleanup is best-effort.
func (s *appService) Delete(ctx context.Context, id string) (models.StorageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apps, _ := s.repos.Apps.Load(ctx)
	idx := indexOfApp(apps, id)
	if idx < 0 {
		return models.StorageStatus{}, notFound("app", id)
	}

	app := apps[idx]
	status := s.repos.Apps.Save(ctx, append(apps[:idx:idx], apps[idx+1:]...))

	deleted := s.files.DeleteAll(ctx, app.Files())
	if st := s.membership.RemoveApp(ctx, id); !st.Durable() {
		status = st
	}

	s.log.Info().Str("app_id", id).Int("files_deleted", deleted).Str("storage", status.Storage).Msg("App deleted")
	return status, nil
}

func (s *appService) RecordView(ctx context.Context, id string) (*models.AppItem, models.StorageStatus, error) {
	return s.bump(ctx, id, func(a *models.AppItem) { a.Views++ })
}

func (s *appService) RecordLike(ctx context.Context, id string) (*models.AppItem, models.StorageStatus, error) {
	return s.bump(ctx, id, func(a *models.AppItem) { a.Likes++ })
}

func (s *appService) bump(ctx context.Context, id string, fn func(*models.AppItem)) (*models.AppItem, models.StorageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apps, _ := s.repos.Apps.Load(ctx)
	idx := indexOfApp(apps, id)
	if idx < 0 {
		return nil, models.StorageStatus{}, notFound("app", id)
	}
	fn(&apps[idx])
	app := apps[idx]
	return &app, s.repos.Apps.Save(ctx, apps), nil
}

// ListByType returns the partition bucket for typ
func (s *appService) ListByType(ctx context.Context, typ string) ([]models.AppItem, storage.LoadResult) {
	apps, res := s.repos.Apps.Load(ctx)
	buckets := partition.Separate(s.parts, apps, appType, appID)
	out := buckets[typ]
	if out == nil {
		out = []models.AppItem{}
	}
	return out, res
}

// ReplaceByType swaps the typ bucket for apps, keeping every other type.
// Items without a type are assigned typ; items of another type or with an
// id outside the range are rejected.
func (s *appService) ReplaceByType(ctx context.Context, typ string, apps []models.AppItem) (ReplaceResult[models.AppItem], error) {
	if typ == "" {
		return ReplaceResult[models.AppItem]{}, invalid("type is required")
	}

	var candidates, rejected []models.AppItem
	for _, a := range apps {
		if a.Type == "" {
			a.Type = typ
		}
		if a.Type != typ {
			rejected = append(rejected, a)
			continue
		}
		candidates = append(candidates, a.Stored())
	}
	accepted, outOfRange := partition.Split(s.parts, typ, candidates, appID)
	rejected = append(rejected, outOfRange...)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, _ := s.repos.Apps.Load(ctx)
	merged := make([]models.AppItem, 0, len(current)+len(accepted))
	for _, a := range current {
		if a.AppType() != typ {
			merged = append(merged, a)
		}
	}
	merged = append(merged, accepted...)

	status := s.repos.Apps.Save(ctx, merged)
	if len(rejected) > 0 {
		s.log.Warn().Str("type", typ).Int("rejected", len(rejected)).Msg("Rejected apps outside the type range")
	}
	return ReplaceResult[models.AppItem]{Accepted: accepted, Rejected: rejected, Status: status}, nil
}

func (s *appService) All(ctx context.Context) ([]models.AppItem, storage.LoadResult) {
	return s.repos.Apps.Load(ctx)
}

// ReplaceAll stores apps as the whole collection. Derived flags are dropped.
func (s *appService) ReplaceAll(ctx context.Context, apps []models.AppItem) models.StorageStatus {
	stored := make([]models.AppItem, len(apps))
	for i, a := range apps {
		stored[i] = a.Stored()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos.Apps.Save(ctx, stored)
}

func applyAppUpdate(a models.AppItem, u models.AppUpdate) models.AppItem {
	setString(&a.Name, u.Name)
	setString(&a.Developer, u.Developer)
	setString(&a.Description, u.Description)
	setString(&a.IconURL, u.IconURL)
	setString(&a.Store, u.Store)
	setString(&a.Status, u.Status)
	setString(&a.Downloads, u.Downloads)
	setString(&a.StoreURL, u.StoreURL)
	setString(&a.Version, u.Version)
	setString(&a.Size, u.Size)
	setString(&a.Category, u.Category)
	if u.ScreenshotURLs != nil {
		a.ScreenshotURLs = *u.ScreenshotURLs
	}
	if u.Tags != nil {
		a.Tags = *u.Tags
	}
	if u.Rating != nil {
		a.Rating = *u.Rating
	}
	return a
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func removedFiles(before, after []string) []string {
	keep := toSet(after)
	var removed []string
	for _, u := range before {
		if !keep[u] {
			removed = append(removed, u)
		}
	}
	return removed
}

func indexOfApp(apps []models.AppItem, id string) int {
	for i, a := range apps {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func appType(a models.AppItem) string { return a.AppType() }
func appID(a models.AppItem) string   { return a.ID }

func matchesQuery(q string, a models.AppItem) bool {
	if fuzzy.MatchFold(q, a.Name) || fuzzy.MatchFold(q, a.Developer) {
		return true
	}
	for _, tag := range a.Tags {
		if fuzzy.MatchFold(q, tag) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(a.Description), strings.ToLower(q))
}

// nameRank orders name matches by edit distance, then everything else
func nameRank(q string, a models.AppItem) int {
	if d := fuzzy.RankMatchFold(q, a.Name); d >= 0 {
		return d
	}
	return 1 << 30
}
