package models

import "time"

// StorageStatus is reported by every write so callers can tell a durable
// write from one that only reached process memory
type StorageStatus struct {
	Storage  string `json:"storage"`
	Verified bool   `json:"verified,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// Durable reports whether the write reached a persistent tier
func (s StorageStatus) Durable() bool {
	return s.Storage != "" && s.Storage != "memory"
}

// UploadedFile describes a stored upload
type UploadedFile struct {
	URL         string `json:"url"`
	Key         string `json:"pathname"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// SyncReport summarises one reconciliation run
type SyncReport struct {
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
	Flushed    int       `json:"flushed"`
	CaughtUp   int       `json:"caughtUp"`
	Remaining  int       `json:"remaining"`
	Refreshed  int       `json:"refreshed"`
	Dirty      []string  `json:"dirty"`
}

// Stats is the collection overview served by /stats
type Stats struct {
	Apps       int            `json:"apps"`
	AppsByType map[string]int `json:"appsByType"`
	Contents   map[string]int `json:"contents"`
	Published  int            `json:"published"`
	Featured   int            `json:"featured"`
	Events     int            `json:"events"`
	Dangling   int            `json:"dangling"`
	Gallery    map[string]int `json:"gallery"`
	Tiers      []string       `json:"tiers"`
	Dirty      []string       `json:"dirty"`
}
