package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/storage"
)

// Collection is one JSON document in the store, decoded as T
type Collection[T any] struct {
	store  Store
	key    string
	decode func([]byte) (T, error)
	encode func(T) ([]byte, error)
	empty  func() T
}

// NewListCollection stores a JSON array of E. Documents wrapped in an
// object ({"<field>": [...]}) are also accepted on read.
func NewListCollection[E any](store Store, key, field string) *Collection[[]E] {
	return &Collection[[]E]{
		store: store,
		key:   key,
		decode: func(data []byte) ([]E, error) {
			raw, err := unwrapList(data, field)
			if err != nil {
				return nil, err
			}
			var out []E
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
		encode: func(v []E) ([]byte, error) {
			if v == nil {
				v = []E{}
			}
			return json.Marshal(v)
		},
		empty: func() []E { return []E{} },
	}
}

// NewIDListCollection stores a membership list. Reads accept a bare array
// or an object keyed by field; numeric entries are read as strings.
func NewIDListCollection(store Store, key, field string) *Collection[[]string] {
	return &Collection[[]string]{
		store:  store,
		key:    key,
		decode: func(data []byte) ([]string, error) { return DecodeIDs(data, field) },
		encode: func(v []string) ([]byte, error) {
			if v == nil {
				v = []string{}
			}
			return json.Marshal(v)
		},
		empty: func() []string { return []string{} },
	}
}

// Key returns the document key
func (c *Collection[T]) Key() string { return c.key }

// Load returns the stored document, or an empty value when no tier has a
// usable copy
func (c *Collection[T]) Load(ctx context.Context) (T, storage.LoadResult) {
	var out T
	decoded := false
	_, res := c.store.Load(ctx, c.key, func(data []byte) error {
		v, err := c.decode(data)
		if err != nil {
			return err
		}
		out = v
		decoded = true
		return nil
	})
	if !decoded {
		return c.empty(), res
	}
	return out, res
}

// Save encodes and persists v. Encoding failures are reported the same way
// as a storage outage so callers have one status to check.
func (c *Collection[T]) Save(ctx context.Context, v T) models.StorageStatus {
	data, err := c.encode(v)
	if err != nil {
		return models.StorageStatus{Storage: storage.SourceMemory, Warning: fmt.Sprintf("encode %s: %v", c.key, err)}
	}
	return c.store.Save(ctx, c.key, data)
}

// DecodeIDs reads a membership document: ["1","2"], [1,2] or
// {"<field>": [...]}. Empty entries are skipped and duplicates collapsed.
func DecodeIDs(data []byte, field string) ([]string, error) {
	raw, err := unwrapList(data, field)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	seen := make(map[string]bool)
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		id := v.String()
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		return true
	})
	return ids, nil
}

func unwrapList(data []byte, field string) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON document")
	}
	doc := gjson.ParseBytes(data)
	switch {
	case doc.IsArray():
		return data, nil
	case doc.IsObject():
		inner := doc.Get(field)
		if !inner.IsArray() {
			return nil, fmt.Errorf("object has no %q array", field)
		}
		return []byte(inner.Raw), nil
	default:
		return nil, fmt.Errorf("expected an array, got %s", doc.Type)
	}
}
