// Package client wraps the gallery HTTP API for admin tooling. Every call
// returns a usable value: failures are logged and turned into empty results
// so callers never have to handle transport errors.
package client

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

	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/models"
)

// Options configures a Client
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to one gallery server
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// Result is the outcome of a write
type Result struct {
	Success  bool   `json:"success"`
	Storage  string `json:"storage,omitempty"`
	Verified bool   `json:"verified,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Count    int    `json:"count,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MembershipResult is the outcome of a single-id membership edit
type MembershipResult struct {
	Result
	Member  bool     `json:"member"`
	Changed bool     `json:"changed"`
	IDs     []string `json:"ids"`
}

// ReplaceResult is the outcome of a partitioned replace
type ReplaceResult struct {
	Result
	Rejected int `json:"rejected"`
}

// New creates a client. BaseURL defaults to http://localhost:8080.
func New(opts Options) *Client {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		http:    httpClient,
		log:     opts.Logger.With().Str("component", "client").Logger(),
	}
}

// BaseURL returns the server the client talks to
func (c *Client) BaseURL() string { return c.baseURL }

// LoadApps returns the whole app collection
func (c *Client) LoadApps(ctx context.Context) []models.AppItem {
	var resp struct {
		Apps []models.AppItem `json:"apps"`
	}
	if !c.get(ctx, "/api/data/apps", nil, &resp) {
		return []models.AppItem{}
	}
	return nonNil(resp.Apps)
}

// SaveApps replaces the whole app collection
func (c *Client) SaveApps(ctx context.Context, apps []models.AppItem) Result {
	return c.write(ctx, http.MethodPost, "/api/data/apps", nil, map[string]interface{}{"apps": nonNil(apps)})
}

// LoadContents returns every App Story and News item
func (c *Client) LoadContents(ctx context.Context) []models.ContentItem {
	var resp struct {
		Contents []models.ContentItem `json:"contents"`
	}
	if !c.get(ctx, "/api/data/contents", nil, &resp) {
		return []models.ContentItem{}
	}
	return nonNil(resp.Contents)
}

// SaveContents replaces every content item
func (c *Client) SaveContents(ctx context.Context, items []models.ContentItem) Result {
	return c.write(ctx, http.MethodPost, "/api/data/contents", nil, map[string]interface{}{"contents": nonNil(items)})
}

// LoadFeaturedIDs returns the featured list
func (c *Client) LoadFeaturedIDs(ctx context.Context) []string {
	return c.loadIDs(ctx, models.ListFeatured)
}

// SaveFeaturedIDs merges ids into the featured list
func (c *Client) SaveFeaturedIDs(ctx context.Context, ids []string) Result {
	return c.saveIDs(ctx, models.ListFeatured, ids)
}

// LoadEventIDs returns the events list
func (c *Client) LoadEventIDs(ctx context.Context) []string {
	return c.loadIDs(ctx, models.ListEvents)
}

// SaveEventIDs merges ids into the events list
func (c *Client) SaveEventIDs(ctx context.Context, ids []string) Result {
	return c.saveIDs(ctx, models.ListEvents, ids)
}

func (c *Client) loadIDs(ctx context.Context, list models.MembershipList) []string {
	var resp map[string]json.RawMessage
	if !c.get(ctx, "/api/data/"+string(list), nil, &resp) {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal(resp[string(list)], &ids); err != nil {
		c.log.Warn().Err(err).Str("list", string(list)).Msg("Failed to decode id list")
		return []string{}
	}
	return nonNil(ids)
}

func (c *Client) saveIDs(ctx context.Context, list models.MembershipList, ids []string) Result {
	return c.write(ctx, http.MethodPost, "/api/data/"+string(list), nil, map[string]interface{}{string(list): nonNil(ids)})
}

// UpdateMembership adds, removes or toggles one app in a list
func (c *Client) UpdateMembership(ctx context.Context, list models.MembershipList, appID string, action models.MembershipAction) MembershipResult {
	var out MembershipResult
	body := map[string]interface{}{"appId": appID, "type": list, "action": action}
	if err := c.do(ctx, http.MethodPut, "/api/apps/featured", nil, body, &out); err != nil {
		c.fail("UpdateMembership", err)
		return MembershipResult{Result: Result{Error: err.Error()}, IDs: []string{}}
	}
	return out
}

// LoadAppsByType returns the apps in one type partition
func (c *Client) LoadAppsByType(ctx context.Context, typ string) []models.AppItem {
	var resp struct {
		Apps []models.AppItem `json:"apps"`
	}
	if !c.get(ctx, "/api/apps/type", url.Values{"type": {typ}}, &resp) {
		return []models.AppItem{}
	}
	return nonNil(resp.Apps)
}

// SaveAppsByType replaces one type partition
func (c *Client) SaveAppsByType(ctx context.Context, typ string, apps []models.AppItem) ReplaceResult {
	return c.replace(ctx, "/api/apps/type", typ, map[string]interface{}{"apps": nonNil(apps)})
}

// LoadContentsByType returns the items of one content type
func (c *Client) LoadContentsByType(ctx context.Context, typ models.ContentType) []models.ContentItem {
	var resp struct {
		Contents []models.ContentItem `json:"contents"`
	}
	if !c.get(ctx, "/api/content/type", url.Values{"type": {string(typ)}}, &resp) {
		return []models.ContentItem{}
	}
	return nonNil(resp.Contents)
}

// SaveContentsByType replaces the items of one content type
func (c *Client) SaveContentsByType(ctx context.Context, typ models.ContentType, items []models.ContentItem) ReplaceResult {
	return c.replace(ctx, "/api/content/type", string(typ), map[string]interface{}{"contents": nonNil(items)})
}

func (c *Client) replace(ctx context.Context, path, typ string, body interface{}) ReplaceResult {
	var out ReplaceResult
	if err := c.do(ctx, http.MethodPost, path, url.Values{"type": {typ}}, body, &out); err != nil {
		c.fail("replace "+path, err)
		return ReplaceResult{Result: Result{Error: err.Error()}}
	}
	return out
}

// SetPublished publishes or unpublishes a content item
func (c *Client) SetPublished(ctx context.Context, id string, published bool) Result {
	return c.write(ctx, http.MethodPut, "/api/content/"+url.PathEscape(id)+"/publish", nil, map[string]bool{"isPublished": published})
}

// DeleteApp removes an app with its files and membership
func (c *Client) DeleteApp(ctx context.Context, id string) Result {
	return c.write(ctx, http.MethodDelete, "/api/delete-app", url.Values{"id": {id}}, nil)
}

// Stats returns the server's collection overview
func (c *Client) Stats(ctx context.Context) models.Stats {
	var resp struct {
		Stats models.Stats `json:"stats"`
	}
	c.get(ctx, "/stats", nil, &resp)
	return resp.Stats
}

// Sync triggers a reconciliation run
func (c *Client) Sync(ctx context.Context) models.SyncReport {
	var resp struct {
		Report models.SyncReport `json:"report"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sync", nil, nil, &resp); err != nil {
		c.fail("Sync", err)
	}
	return resp.Report
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) bool {
	if err := c.do(ctx, http.MethodGet, path, query, nil, out); err != nil {
		c.fail("GET "+path, err)
		return false
	}
	return true
}

func (c *Client) write(ctx context.Context, method, path string, query url.Values, body interface{}) Result {
	var out Result
	if err := c.do(ctx, method, path, query, body, &out); err != nil {
		c.fail(method+" "+path, err)
		return Result{Error: err.Error()}
	}
	if out.Warning != "" {
		c.log.Warn().Str("path", path).Str("storage", out.Storage).Msg(out.Warning)
	}
	return out
}

func (c *Client) fail(op string, err error) {
	c.log.Error().Err(err).Str("op", op).Msg("Gallery API call failed")
}

// apiError is a non-2xx response
type apiError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *apiError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string          `json:"error"`
			Details json.RawMessage `json:"details"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Details = payload.Details
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
