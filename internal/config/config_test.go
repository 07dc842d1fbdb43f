package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Storage.RetryAttempts != 3 {
		t.Errorf("Expected 3 retry attempts, got %d", cfg.Storage.RetryAttempts)
	}
	if cfg.Storage.BlobBackend != "memory" {
		t.Errorf("Expected memory blob backend, got %s", cfg.Storage.BlobBackend)
	}
	if cfg.Validation.IDPolicy != "lenient" {
		t.Errorf("Expected lenient id policy, got %s", cfg.Validation.IDPolicy)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_RETRY_BACKOFF", "1s")
	t.Setenv("HOSTED", "true")
	t.Setenv("DISK_BACKEND", "bolt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Storage.RetryBackoff != time.Second {
		t.Errorf("Expected 1s backoff, got %v", cfg.Storage.RetryBackoff)
	}
	if !cfg.Storage.Hosted {
		t.Error("Expected hosted mode")
	}
	if cfg.Storage.DiskBackend != "bolt" {
		t.Errorf("Expected bolt disk backend, got %s", cfg.Storage.DiskBackend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "defaults are valid"},
		{name: "unknown blob backend", env: map[string]string{"BLOB_BACKEND": "s3"}, wantErr: true},
		{name: "http backend without url", env: map[string]string{"BLOB_BACKEND": "http"}, wantErr: true},
		{name: "http backend with url", env: map[string]string{"BLOB_BACKEND": "http", "BLOB_URL": "https://blob.example.com"}},
		{name: "azure without credentials", env: map[string]string{"BLOB_BACKEND": "azure"}, wantErr: true},
		{name: "hosted without blob", env: map[string]string{"HOSTED": "true", "BLOB_BACKEND": "none"}, wantErr: true},
		{name: "zero retry attempts", env: map[string]string{"STORAGE_RETRY_ATTEMPTS": "0"}, wantErr: true},
		{name: "unknown id policy", env: map[string]string{"ID_VALIDATION": "sometimes"}, wantErr: true},
		{name: "unknown cache", env: map[string]string{"CACHE_BACKEND": "memcached"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: "1", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "host=h port=1 user=u password=p dbname=n sslmode=disable"
	if got := db.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
