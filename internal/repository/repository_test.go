package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/mocks"
	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/storage"
)

func newRepos(backends ...storage.Backend) *repository.Repositories {
	st := storage.NewTiered(storage.TieredConfig{
		Backends: backends,
		Retry:    storage.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	}, zerolog.Nop())
	return repository.New(st)
}

func TestCollection_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(mocks.NewMockBackend("file"))

	apps := []models.AppItem{{ID: "20001", Name: "Tasks", Type: "gallery", Tags: []string{"todo"}}}
	status := repos.Apps.Save(ctx, apps)
	if status.Storage != "file" {
		t.Fatalf("expected file storage, got %+v", status)
	}

	got, res := repos.Apps.Load(ctx)
	if res.Source != "file" {
		t.Errorf("expected source file, got %s", res.Source)
	}
	if diff := cmp.Diff(apps, got); diff != "" {
		t.Errorf("apps mismatch (-want +got):\n%s", diff)
	}
}

func TestCollection_EmptyWhenNothingStored(t *testing.T) {
	repos := newRepos(mocks.NewFailingBackend("file", mocks.ErrUnavailable))

	apps, res := repos.Apps.Load(context.Background())
	if apps == nil || len(apps) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", apps)
	}
	if res.Source != storage.SourceEmpty {
		t.Errorf("expected empty source, got %s", res.Source)
	}
}

func TestCollection_WrappedDocument(t *testing.T) {
	file := mocks.NewMockBackend("file")
	file.Data[repository.KeyContents] = []byte(`{"contents":[{"id":"1","title":"Hello","type":"appstory"}]}`)
	repos := newRepos(file)

	contents, _ := repos.Contents.Load(context.Background())
	if len(contents) != 1 || contents[0].Title != "Hello" {
		t.Errorf("unexpected contents: %+v", contents)
	}
}

func TestCollection_CorruptTierFallsThrough(t *testing.T) {
	file := mocks.NewMockBackend("file")
	blob := mocks.NewMockBackend("blob")
	file.Data[repository.KeyApps] = []byte(`{"apps": "oops"}`)
	blob.Data[repository.KeyApps] = []byte(`[{"id":"1"}]`)
	repos := newRepos(file, blob)

	apps, res := repos.Apps.Load(context.Background())
	if res.Source != "blob" || len(apps) != 1 {
		t.Errorf("expected blob copy, got %s %+v", res.Source, apps)
	}
}

func TestDecodeIDs(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    []string
		wantErr bool
	}{
		{"string array", `["1","2"]`, []string{"1", "2"}, false},
		{"numeric array", `[20001, 20002]`, []string{"20001", "20002"}, false},
		{"wrapped object", `{"featured":["a","b"]}`, []string{"a", "b"}, false},
		{"duplicates collapsed", `["a","a","b",""]`, []string{"a", "b"}, false},
		{"empty array", `[]`, []string{}, false},
		{"wrong field", `{"events":["a"]}`, nil, true},
		{"scalar", `"a"`, nil, true},
		{"invalid", `[`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repository.DecodeIDs([]byte(tt.doc), "featured")
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeIDs error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRepositories_GalleryAndMembership(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(mocks.NewMockBackend("file"))

	if repos.Gallery("unknown") != nil {
		t.Error("expected nil collection for unknown gallery type")
	}
	for _, g := range models.GalleryTypes {
		if got := repos.Gallery(g).Key(); got != "gallery/"+string(g)+"/meta" {
			t.Errorf("unexpected key %s", got)
		}
	}

	repos.Membership(models.ListEvents).Save(ctx, []string{"e1"})
	events, _ := repos.Events.Load(ctx)
	if diff := cmp.Diff([]string{"e1"}, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if len(repos.Keys()) != 4+len(models.GalleryTypes) {
		t.Errorf("unexpected keys %v", repos.Keys())
	}
}
