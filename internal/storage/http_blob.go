package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPBlobConfig holds the hosted blob service settings
type HTTPBlobConfig struct {
	BaseURL string
	// PublicURL is where the service serves stored objects when that differs
	// from BaseURL. The token is never sent there.
	PublicURL  string
	Token      string
	HTTPClient *http.Client
}

// HTTPBlobStore talks to a hosted blob service over its REST API:
//
//	PUT  {base}/{key}          upload, returns the stored object
//	GET  {base}?prefix=...     list, paginated with cursor
//	GET  {url}                 download (public URL)
//	POST {base}/delete         delete {"urls": [...]}
//
// Get and Delete only accept URLs under the base or public URL.
type HTTPBlobStore struct {
	baseURL    string
	base       *url.URL
	public     *url.URL
	token      string
	httpClient *http.Client
}

// HTTPError is returned for non-2xx responses
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("blob service: %s: %s", http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("blob service: %s", http.StatusText(e.StatusCode))
}

// NewHTTPBlobStore creates a hosted blob store client
func NewHTTPBlobStore(cfg HTTPBlobConfig) (*HTTPBlobStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	base, err := parseRoot(baseURL)
	if err != nil {
		return nil, fmt.Errorf("base URL: %w", err)
	}
	var public *url.URL
	if cfg.PublicURL != "" {
		if public, err = parseRoot(cfg.PublicURL); err != nil {
			return nil, fmt.Errorf("public URL: %w", err)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPBlobStore{
		baseURL:    baseURL,
		base:       base,
		public:     public,
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

func parseRoot(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// under reports whether u has root's scheme and host and sits below its path
func under(u, root *url.URL) bool {
	if root == nil || u.User != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, root.Scheme) || !strings.EqualFold(u.Host, root.Host) {
		return false
	}
	return root.Path == "" || u.Path == root.Path || strings.HasPrefix(u.Path, root.Path+"/")
}

// owned parses objURL and reports whether it points at the service API
// (private) or only at its public host. Foreign URLs are ErrNotFound.
func (s *HTTPBlobStore) owned(objURL string) (private bool, err error) {
	u, err := url.Parse(objURL)
	if err != nil {
		return false, fmt.Errorf("parse url %q: %w", objURL, ErrNotFound)
	}
	switch {
	case under(u, s.base):
		return true, nil
	case under(u, s.public):
		return false, nil
	}
	return false, fmt.Errorf("url %q is outside the blob service: %w", objURL, ErrNotFound)
}

type blobListResponse struct {
	Blobs   []Object `json:"blobs"`
	Cursor  string   `json:"cursor"`
	HasMore bool     `json:"hasMore"`
}

// Put uploads data under key without a random suffix, so the last put wins
func (s *HTTPBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	reqURL := s.baseURL + "/" + escapeKey(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(data))
	if err != nil {
		return Object{}, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("x-content-type", contentType)
	req.Header.Set("x-add-random-suffix", "0")

	body, err := s.do(req)
	if err != nil {
		return Object{}, err
	}

	var obj Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return Object{}, fmt.Errorf("decode upload response: %w", err)
	}
	if obj.Key == "" {
		obj.Key = key
	}
	if obj.Size == 0 {
		obj.Size = int64(len(data))
	}
	if obj.UploadedAt.IsZero() {
		obj.UploadedAt = time.Now().UTC()
	}
	return obj, nil
}

// List returns every object under prefix, following pagination cursors
func (s *HTTPBlobStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	cursor := ""
	for {
		q := url.Values{}
		q.Set("prefix", prefix)
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		s.setHeaders(req)

		body, err := s.do(req)
		if err != nil {
			return nil, err
		}

		var page blobListResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode list response: %w", err)
		}
		out = append(out, page.Blobs...)

		if !page.HasMore || page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// Get downloads the object at url
func (s *HTTPBlobStore) Get(ctx context.Context, objURL string) ([]byte, error) {
	private, err := s.owned(objURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if private {
		s.setHeaders(req)
	}
	// Bypass intermediary caches so a read right after a write sees it
	req.Header.Set("Cache-Control", "no-cache")
	return s.do(req)
}

// Delete removes the object at url
func (s *HTTPBlobStore) Delete(ctx context.Context, objURL string) error {
	if _, err := s.owned(objURL); err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string][]string{"urls": {objURL}})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/delete", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	_, err = s.do(req)
	return err
}

func (s *HTTPBlobStore) setHeaders(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (s *HTTPBlobStore) do(req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
