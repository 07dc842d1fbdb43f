package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/api"
	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/mocks"
	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/service"
	"github.com/appgallery-cms/internal/storage"
	"github.com/appgallery-cms/pkg/client"
)

func newTestServer(t *testing.T) (*client.Client, *mocks.MockBackend) {
	t.Helper()
	cfg := &config.Config{
		Upload:     config.UploadConfig{MaxUploadSize: 1 << 20, MaxScreenshots: 5},
		Validation: config.ValidationConfig{IDPolicy: "lenient"},
		Sync:       config.SyncConfig{Schedule: "@every 1h", Workers: 1},
	}
	backend := mocks.NewMockBackend("file")
	store := storage.NewTiered(storage.TieredConfig{
		Backends: []storage.Backend{backend},
		Retry:    storage.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	}, zerolog.Nop())
	services := service.NewServices(repository.New(store), store, mocks.NewMockBlobStore(), cfg, zerolog.Nop())

	srv := httptest.NewServer(api.NewRouter(services, cfg, zerolog.Nop()))
	t.Cleanup(srv.Close)

	return client.New(client.Options{BaseURL: srv.URL, Logger: zerolog.Nop()}), backend
}

func TestClient_AppsRoundTrip(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	res := c.SaveApps(ctx, []models.AppItem{{ID: "20001", Name: "Notes", Developer: "Acme"}})
	if !res.Success || res.Storage != "file" || res.Count != 1 {
		t.Fatalf("Unexpected save result: %+v", res)
	}

	apps := c.LoadApps(ctx)
	if len(apps) != 1 || apps[0].Name != "Notes" {
		t.Errorf("Unexpected apps: %+v", apps)
	}

	byType := c.LoadAppsByType(ctx, "gallery")
	if len(byType) != 1 {
		t.Errorf("Expected one gallery app, got %d", len(byType))
	}

	if res := c.DeleteApp(ctx, "20001"); !res.Success {
		t.Errorf("DeleteApp failed: %+v", res)
	}
	if res := c.DeleteApp(ctx, "20001"); res.Success || res.Error == "" {
		t.Errorf("Expected failed result for missing app, got %+v", res)
	}
}

func TestClient_Membership(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	c.SaveFeaturedIDs(ctx, []string{"x"})
	c.SaveFeaturedIDs(ctx, []string{"x", "y"})
	if ids := c.LoadFeaturedIDs(ctx); len(ids) != 2 {
		t.Errorf("Expected union of two ids, got %v", ids)
	}

	res := c.UpdateMembership(ctx, models.ListEvents, "z", models.ActionToggle)
	if !res.Success || !res.Member || !res.Changed {
		t.Errorf("Unexpected toggle result: %+v", res)
	}
	if ids := c.LoadEventIDs(ctx); len(ids) != 1 || ids[0] != "z" {
		t.Errorf("Unexpected events: %v", ids)
	}
	c.SaveEventIDs(ctx, []string{"z"})
	if ids := c.LoadEventIDs(ctx); len(ids) != 1 {
		t.Errorf("Merge must not duplicate, got %v", ids)
	}
}

func TestClient_ContentsByType(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	res := c.SaveContentsByType(ctx, models.ContentTypeNews, []models.ContentItem{
		{ID: "10001", Title: "In range"},
		{ID: "3", Title: "Out of range"},
	})
	if !res.Success || res.Count != 1 || res.Rejected != 1 {
		t.Fatalf("Unexpected replace result: %+v", res)
	}

	if res := c.SetPublished(ctx, "10001", true); !res.Success {
		t.Errorf("SetPublished failed: %+v", res)
	}
	items := c.LoadContentsByType(ctx, models.ContentTypeNews)
	if len(items) != 1 || !items[0].IsPublished {
		t.Errorf("Unexpected news items: %+v", items)
	}

	if all := c.LoadContents(ctx); len(all) != 1 {
		t.Errorf("Expected one content item, got %d", len(all))
	}
	if res := c.SaveContents(ctx, nil); !res.Success {
		t.Errorf("SaveContents failed: %+v", res)
	}
}

func TestClient_DegradedWriteCarriesWarning(t *testing.T) {
	c, backend := newTestServer(t)
	backend.SetErrors(mocks.ErrUnavailable, mocks.ErrUnavailable)

	res := c.SaveFeaturedIDs(context.Background(), []string{"a"})
	if !res.Success || res.Storage != "memory" || res.Warning == "" {
		t.Errorf("Expected memory-only success, got %+v", res)
	}

	report := c.Sync(context.Background())
	if report.Remaining != 1 {
		t.Errorf("Expected dirty entry to remain, got %+v", report)
	}
}

func TestClient_SafeDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream down"}`))
	}))
	defer srv.Close()

	c := client.New(client.Options{BaseURL: srv.URL, Logger: zerolog.Nop()})
	ctx := context.Background()

	if apps := c.LoadApps(ctx); apps == nil || len(apps) != 0 {
		t.Errorf("Expected empty slice, got %v", apps)
	}
	if ids := c.LoadFeaturedIDs(ctx); ids == nil || len(ids) != 0 {
		t.Errorf("Expected empty slice, got %v", ids)
	}
	if items := c.LoadContentsByType(ctx, models.ContentTypeAppStory); items == nil || len(items) != 0 {
		t.Errorf("Expected empty slice, got %v", items)
	}
	if res := c.SaveApps(ctx, nil); res.Success || res.Error == "" {
		t.Errorf("Expected failed result, got %+v", res)
	}
	if res := c.UpdateMembership(ctx, models.ListFeatured, "1", models.ActionAdd); res.Success || res.IDs == nil {
		t.Errorf("Expected failed result with empty ids, got %+v", res)
	}

	unreachable := client.New(client.Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second, Logger: zerolog.Nop()})
	if apps := unreachable.LoadApps(ctx); len(apps) != 0 {
		t.Errorf("Expected empty slice, got %v", apps)
	}
}
