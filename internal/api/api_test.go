package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/api"
	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/mocks"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/service"
	"github.com/appgallery-cms/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Port: "8080"},
		Upload:     config.UploadConfig{MaxUploadSize: 1 << 20, MaxScreenshots: 5},
		Validation: config.ValidationConfig{IDPolicy: "lenient"},
		Sync:       config.SyncConfig{Schedule: "@every 1h", Workers: 2},
	}
}

func setupTestRouter(cfg *config.Config) (*gin.Engine, *mocks.MockBackend, *mocks.MockBlobStore) {
	gin.SetMode(gin.TestMode)

	backend := mocks.NewMockBackend("file")
	blobs := mocks.NewMockBlobStore()
	store := storage.NewTiered(storage.TieredConfig{
		Backends: []storage.Backend{backend},
		Retry:    storage.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	}, zerolog.Nop())

	log := zerolog.Nop()
	services := service.NewServices(repository.New(store), store, blobs, cfg, log)
	router := api.NewRouter(services, cfg, log)

	return router, backend, blobs
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	response := decode(t, w)
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "appgallery-cms" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())
	doJSON(router, "GET", "/api/data/apps", nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "appgallery_http_requests_total") {
		t.Error("Expected request counter in metrics output")
	}
}

func TestDataApps_SaveThenLoad(t *testing.T) {
	router, backend, _ := setupTestRouter(testConfig())

	w := doJSON(router, "POST", "/api/data/apps", []map[string]interface{}{
		{"id": "20001", "name": "Notes", "developer": "Acme", "isFeatured": true},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["storage"] != "file" {
		t.Errorf("Expected file storage, got %v", resp["storage"])
	}
	if strings.Contains(string(backend.Data[repository.KeyApps]), `"isFeatured":true`) {
		t.Error("Derived flags must not be stored")
	}

	w = doJSON(router, "GET", "/api/data/apps", nil)
	resp := decode(t, w)
	if resp["count"].(float64) != 1 || resp["source"] != "file" {
		t.Errorf("Unexpected load response: %v", resp)
	}
}

func TestDataFeatured_MergeIsUnion(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	for i := 0; i < 2; i++ {
		w := doJSON(router, "POST", "/api/data/featured", map[string]interface{}{"featured": []string{"x"}})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(router, "GET", "/api/data/featured", nil)
	ids := decode(t, w)["featured"].([]interface{})
	if len(ids) != 1 || ids[0] != "x" {
		t.Errorf("Expected [x], got %v", ids)
	}

	if w := doJSON(router, "POST", "/api/data/events", map[string]interface{}{"other": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing events array, got %d", w.Code)
	}
}

func TestAppsByType_Scenario(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	w := doJSON(router, "POST", "/api/apps/type?type=gallery", map[string]interface{}{
		"apps": []map[string]interface{}{{"id": "20001", "name": "Gallery app", "developer": "Acme"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(router, "GET", "/api/apps/type?type=gallery", nil)
	resp := decode(t, w)
	if resp["count"].(float64) != 1 {
		t.Fatalf("Expected count 1, got %v", resp["count"])
	}
	apps := resp["apps"].([]interface{})
	if apps[0].(map[string]interface{})["id"] != "20001" {
		t.Errorf("Expected app 20001, got %v", apps[0])
	}
}

func TestContentReplace_ExcludesOutOfRange(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	w := doJSON(router, "POST", "/api/content?type=appstory", map[string]interface{}{
		"contents": []map[string]interface{}{
			{"id": "12", "title": "In range"},
			{"id": "15000", "title": "Out of range"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	valid := resp["validContents"].([]interface{})
	if len(valid) != 1 || valid[0].(map[string]interface{})["id"] != "12" {
		t.Errorf("Expected only id 12 in validContents, got %v", valid)
	}
	if resp["count"].(float64) != 1 {
		t.Errorf("Expected count 1, got %v", resp["count"])
	}

	w = doJSON(router, "GET", "/api/content/type?type=appstory", nil)
	if decode(t, w)["count"].(float64) != 1 {
		t.Error("Expected one stored story")
	}
}

func TestMembershipUpdate_AddTwiceIsNoop(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())
	body := map[string]interface{}{"appId": "20001", "type": "featured", "action": "add"}

	first := decode(t, doJSON(router, "PUT", "/api/apps/featured", body))
	second := decode(t, doJSON(router, "PUT", "/api/apps/featured", body))

	if first["changed"] != true || second["changed"] != false {
		t.Errorf("Expected first add to change and second not: %v / %v", first["changed"], second["changed"])
	}
	if len(second["ids"].([]interface{})) != 1 {
		t.Errorf("Expected list length 1, got %v", second["ids"])
	}

	w := doJSON(router, "PUT", "/api/apps/featured", map[string]interface{}{"appId": "1", "type": "popular"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown list, got %d", w.Code)
	}
}

func TestMembershipReplace_DropsUnknownIDs(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())
	doJSON(router, "POST", "/api/data/apps", []map[string]interface{}{{"id": "20001", "name": "A", "developer": "B"}})

	w := doJSON(router, "POST", "/api/apps/featured", map[string]interface{}{"featured": []string{"20001", "ghost"}})
	resp := decode(t, w)
	if len(resp["featured"].([]interface{})) != 1 || len(resp["dropped"].([]interface{})) != 1 {
		t.Errorf("Unexpected replace response: %v", resp)
	}

	w = doJSON(router, "GET", "/api/apps/20001", nil)
	app := decode(t, w)["app"].(map[string]interface{})
	if app["isFeatured"] != true {
		t.Error("Expected app to be annotated as featured")
	}
}

func TestStorageOutage_ReadsDegradeToEmpty(t *testing.T) {
	router, backend, _ := setupTestRouter(testConfig())
	backend.SetErrors(mocks.ErrUnavailable, mocks.ErrUnavailable)

	paths := []string{
		"/api/data/apps",
		"/api/data/contents",
		"/api/data/featured",
		"/api/data/events",
		"/api/apps",
		"/api/apps/featured",
		"/api/apps/type?type=gallery",
		"/api/content",
		"/api/content/type?type=news",
		"/api/gallery",
		"/stats",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := doJSON(router, "GET", path, nil)
			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	resp := decode(t, doJSON(router, "GET", "/api/data/apps", nil))
	if resp["count"].(float64) != 0 || resp["source"] != "empty" {
		t.Errorf("Expected empty result, got %v", resp)
	}
}

func TestStorageOutage_WritesReportMemory(t *testing.T) {
	router, backend, _ := setupTestRouter(testConfig())
	backend.SetErrors(mocks.ErrUnavailable, mocks.ErrUnavailable)

	w := doJSON(router, "POST", "/api/content", map[string]interface{}{"title": "Offline", "type": "news"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["success"] != true || resp["storage"] != "memory" || resp["warning"] == nil {
		t.Errorf("Expected degraded success, got %v", resp)
	}

	w = doJSON(router, "GET", "/api/content?type=news", nil)
	if decode(t, w)["count"].(float64) != 1 {
		t.Error("Expected memory-held item to be readable")
	}

	backend.SetErrors(nil, nil)
	w = doJSON(router, "POST", "/api/sync", nil)
	report := decode(t, w)["report"].(map[string]interface{})
	if report["flushed"].(float64) != 1 {
		t.Errorf("Expected one flushed collection, got %v", report)
	}
}

func TestContentLifecycle(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	w := doJSON(router, "POST", "/api/content", map[string]interface{}{"title": "Launch", "type": "news"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["content"].(map[string]interface{})["id"].(string)
	if id != "10000" {
		t.Errorf("Expected id 10000, got %s", id)
	}

	w = doJSON(router, "PUT", "/api/content", map[string]interface{}{"id": id, "author": "Lee"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(router, "PUT", "/api/content/"+id+"/publish", nil)
	item := decode(t, w)["content"].(map[string]interface{})
	if item["isPublished"] != true || item["author"] != "Lee" {
		t.Errorf("Unexpected published item: %v", item)
	}

	if w := doJSON(router, "DELETE", "/api/content?id="+id, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := doJSON(router, "GET", "/api/content/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestContentCreate_Validation(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	w := doJSON(router, "POST", "/api/content", map[string]interface{}{"type": "news"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp["error"] != "validation failed" || resp["details"] == nil {
		t.Errorf("Expected validation details, got %v", resp)
	}

	req := httptest.NewRequest("POST", "/api/content", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", rec.Code)
	}
}

func TestAppNotFound(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	tests := []struct {
		method string
		path   string
		body   interface{}
	}{
		{"GET", "/api/apps/missing", nil},
		{"PUT", "/api/apps/missing", map[string]string{"name": "x"}},
		{"POST", "/api/apps/missing/like", nil},
		{"DELETE", "/api/delete-app?id=missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if w := doJSON(router, tt.method, tt.path, tt.body); w.Code != http.StatusNotFound {
				t.Errorf("Expected status 404, got %d", w.Code)
			}
		})
	}
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	for name, data := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(data)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestUploadApp(t *testing.T) {
	router, _, blobs := setupTestRouter(testConfig())

	body, contentType := multipartBody(t,
		map[string]string{"name": "Camera", "developer": "Acme", "tags": "photo, tools", "isEvent": "true"},
		map[string][]byte{"icon": pngHeader, "screenshots": pngHeader},
	)
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	app := decode(t, w)["app"].(map[string]interface{})
	if app["id"] != "20000" || app["iconUrl"] == "" || len(app["tags"].([]interface{})) != 2 {
		t.Errorf("Unexpected app: %v", app)
	}
	if blobs.Len() != 2 {
		t.Errorf("Expected icon and screenshot to be stored, got %d objects", blobs.Len())
	}

	events := decode(t, doJSON(router, "GET", "/api/data/events", nil))["events"].([]interface{})
	if len(events) != 1 {
		t.Errorf("Expected app in events list, got %v", events)
	}

	// A rejected listing leaves no files behind
	body, contentType = multipartBody(t, map[string]string{"developer": "Acme"}, map[string][]byte{"icon": pngHeader})
	req = httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if blobs.Len() != 2 {
		t.Errorf("Expected rollback of the new icon, got %d objects", blobs.Len())
	}
}

func TestBlobUploadAndDelete(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	body, contentType := multipartBody(t, map[string]string{"kind": "image"}, map[string][]byte{"file": pngHeader})
	req := httptest.NewRequest("POST", "/api/blob/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	url := decode(t, w)["url"].(string)

	w = doJSON(router, "GET", "/api/files?url="+url, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Unexpected download: %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	if w := doJSON(router, "DELETE", "/api/delete-file?url="+url, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := doJSON(router, "DELETE", "/api/delete-file?url="+url, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := doJSON(router, "DELETE", "/api/delete-file", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGalleryRoutes(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	w := doJSON(router, "POST", "/api/gallery/setup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body, contentType := multipartBody(t, map[string]string{"title": "Banner"}, map[string][]byte{"file": pngHeader})
	req := httptest.NewRequest("POST", "/api/gallery/featured/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id := decode(t, rec)["image"].(map[string]interface{})["id"].(string)

	resp := decode(t, doJSON(router, "GET", "/api/gallery?type=featured", nil))
	if resp["count"].(float64) != 1 {
		t.Errorf("Expected one image, got %v", resp)
	}

	if w := doJSON(router, "DELETE", "/api/gallery?type=featured&id="+id, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := doJSON(router, "GET", "/api/gallery?type=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = doJSON(router, "POST", "/api/blob/setup-folders", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := doJSON(router, "GET", "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestRateLimit_MutatingRoutesOnly(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}
	router, _, _ := setupTestRouter(cfg)

	doJSON(router, "POST", "/api/data/featured", []string{"a"})
	if w := doJSON(router, "POST", "/api/data/featured", []string{"b"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
	if w := doJSON(router, "GET", "/api/data/featured", nil); w.Code != http.StatusOK {
		t.Errorf("Reads must not be limited, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	w := doJSON(router, "OPTIONS", "/api/data/apps", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestContentPublish_Bodies(t *testing.T) {
	router, _, _ := setupTestRouter(testConfig())

	w := doJSON(router, "POST", "/api/content", map[string]interface{}{"title": "Story", "type": "appstory"})
	id := decode(t, w)["content"].(map[string]interface{})["id"].(string)
	path := "/api/content/" + id + "/publish"

	// chunked request with nothing in it
	req := httptest.NewRequest("PUT", path, strings.NewReader(""))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for empty chunked body, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["content"].(map[string]interface{})["isPublished"] != true {
		t.Error("Expected empty body to publish")
	}

	w = doJSON(router, "PUT", path, map[string]interface{}{"isPublished": false})
	if decode(t, w)["content"].(map[string]interface{})["isPublished"] != false {
		t.Error("Expected explicit false to unpublish")
	}

	req = httptest.NewRequest("PUT", path, strings.NewReader("{broken"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", w.Code)
	}
}
