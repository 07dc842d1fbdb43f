package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/storage"
)

// membershipService keeps the featured and events id lists. Lists have set
// semantics; an app may sit in both.
type membershipService struct {
	repos *repository.Repositories
	mu    *sync.Mutex
	log   zerolog.Logger
}

func newMembershipService(repos *repository.Repositories, mu *sync.Mutex, log zerolog.Logger) *membershipService {
	return &membershipService{
		repos: repos,
		mu:    mu,
		log:   log.With().Str("service", "membership").Logger(),
	}
}

// Get loads both lists and reports ids that no longer match an app
func (s *membershipService) Get(ctx context.Context) models.Membership {
	_, m := s.snapshot(ctx)
	return m
}

// snapshot loads the apps and both lists in parallel
func (s *membershipService) snapshot(ctx context.Context) ([]models.AppItem, models.Membership) {
	var (
		featured, events []string
		apps             []models.AppItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		featured, _ = s.repos.Featured.Load(gctx)
		return nil
	})
	g.Go(func() error {
		events, _ = s.repos.Events.Load(gctx)
		return nil
	})
	g.Go(func() error {
		apps, _ = s.repos.Apps.Load(gctx)
		return nil
	})
	_ = g.Wait()

	known := appIDs(apps)
	var dangling []string
	seen := make(map[string]bool)
	for _, id := range append(append([]string{}, featured...), events...) {
		if !known[id] && !seen[id] {
			seen[id] = true
			dangling = append(dangling, id)
		}
	}

	return apps, models.Membership{Featured: featured, Events: events, Dangling: dangling}
}

func (s *membershipService) List(ctx context.Context, list models.MembershipList) ([]string, storage.LoadResult) {
	return s.repos.Membership(list).Load(ctx)
}

// Apply performs a single add, remove or toggle. Repeating an add or a
// remove is a no-op and does not write.
func (s *membershipService) Apply(ctx context.Context, list models.MembershipList, appID string, action models.MembershipAction) (models.MembershipChange, models.StorageStatus, error) {
	if list != models.ListFeatured && list != models.ListEvents {
		return models.MembershipChange{}, models.StorageStatus{}, invalid("type must be featured or events")
	}
	if appID == "" {
		return models.MembershipChange{}, models.StorageStatus{}, invalid("appId is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.repos.Membership(list)
	ids, _ := coll.Load(ctx)
	member := contains(ids, appID)

	var want bool
	switch action {
	case models.ActionAdd:
		want = true
	case models.ActionRemove:
		want = false
	case models.ActionToggle:
		want = !member
	default:
		return models.MembershipChange{}, models.StorageStatus{}, invalid("action must be add, remove or toggle")
	}

	change := models.MembershipChange{List: list, AppID: appID, Member: want, IDs: ids}
	if want == member {
		return change, models.StorageStatus{Storage: "unchanged"}, nil
	}

	if want {
		ids = append(ids, appID)
	} else {
		ids = without(ids, appID)
	}
	status := coll.Save(ctx, ids)

	change.Changed = true
	change.IDs = ids
	s.log.Info().Str("list", string(list)).Str("app_id", appID).Bool("member", want).Str("storage", status.Storage).Msg("Membership updated")
	return change, status, nil
}

// Replace stores ids as the whole list, dropping ids that match no app
func (s *membershipService) Replace(ctx context.Context, list models.MembershipList, ids []string) ([]string, []string, models.StorageStatus, error) {
	if list != models.ListFeatured && list != models.ListEvents {
		return nil, nil, models.StorageStatus{}, invalid("type must be featured or events")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	apps, _ := s.repos.Apps.Load(ctx)
	known := appIDs(apps)

	kept := []string{}
	var dropped []string
	for _, id := range dedupe(ids) {
		if known[id] {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}

	status := s.repos.Membership(list).Save(ctx, kept)
	if len(dropped) > 0 {
		s.log.Warn().Str("list", string(list)).Strs("dropped", dropped).Msg("Dropped ids that match no app")
	}
	return kept, dropped, status, nil
}

// Merge unions ids into the stored list without validating them
func (s *membershipService) Merge(ctx context.Context, list models.MembershipList, ids []string) ([]string, models.StorageStatus, error) {
	if list != models.ListFeatured && list != models.ListEvents {
		return nil, models.StorageStatus{}, invalid("type must be featured or events")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.repos.Membership(list)
	current, _ := coll.Load(ctx)
	merged := dedupe(append(current, ids...))
	return merged, coll.Save(ctx, merged), nil
}

// RemoveApp drops appID from both lists, writing only lists that change.
// Callers hold the write lock.
func (s *membershipService) RemoveApp(ctx context.Context, appID string) models.StorageStatus {
	status := models.StorageStatus{Storage: "unchanged"}
	for _, list := range []models.MembershipList{models.ListFeatured, models.ListEvents} {
		coll := s.repos.Membership(list)
		ids, _ := coll.Load(ctx)
		if !contains(ids, appID) {
			continue
		}
		st := coll.Save(ctx, without(ids, appID))
		if status.Storage == "unchanged" || !st.Durable() {
			status = st
		}
	}
	return status
}

// Annotate sets the derived IsFeatured and IsEvent flags
func (s *membershipService) Annotate(apps []models.AppItem, m models.Membership) []models.AppItem {
	featured := toSet(m.Featured)
	events := toSet(m.Events)

	out := make([]models.AppItem, len(apps))
	for i, a := range apps {
		a.IsFeatured = featured[a.ID]
		a.IsEvent = events[a.ID]
		out[i] = a
	}
	return out
}

func appIDs(apps []models.AppItem) map[string]bool {
	ids := make(map[string]bool, len(apps))
	for _, a := range apps {
		ids[a.ID] = true
	}
	return ids
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
