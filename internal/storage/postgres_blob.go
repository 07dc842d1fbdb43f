package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const postgresScheme = "pg://blobs/"

// PostgresBlobStore keeps blobs in the blobs table. It gives self-hosted
// deployments a blob tier without an external object store.
type PostgresBlobStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresBlobStore creates a blob store on an open connection. The schema
// comes from the migrations directory.
func NewPostgresBlobStore(db *sql.DB) *PostgresBlobStore {
	return &PostgresBlobStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Put upserts data under key
func (s *PostgresBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	uploadedAt := s.now()
	query := `
		INSERT INTO blobs (key, content_type, data, size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			uploaded_at = EXCLUDED.uploaded_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, contentType, data, len(data), uploadedAt); err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Object{
		Key:        key,
		URL:        postgresScheme + key,
		Size:       int64(len(data)),
		UploadedAt: uploadedAt,
	}, nil
}

// List returns every blob whose key starts with prefix, newest first
func (s *PostgresBlobStore) List(ctx context.Context, prefix string) ([]Object, error) {
	query := `
		SELECT key, size, uploaded_at FROM blobs
		WHERE key LIKE $1 ESCAPE '\'
		ORDER BY uploaded_at DESC, key DESC
	`
	rows, err := s.db.QueryContext(ctx, query, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		var obj Object
		if err := rows.Scan(&obj.Key, &obj.Size, &obj.UploadedAt); err != nil {
			return nil, err
		}
		obj.URL = postgresScheme + obj.Key
		out = append(out, obj)
	}
	return out, rows.Err()
}

// Get returns the data stored at url
func (s *PostgresBlobStore) Get(ctx context.Context, objURL string) ([]byte, error) {
	key := strings.TrimPrefix(objURL, postgresScheme)

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM blobs WHERE key = $1", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob at url
func (s *PostgresBlobStore) Delete(ctx context.Context, objURL string) error {
	key := strings.TrimPrefix(objURL, postgresScheme)

	result, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// likePrefix escapes LIKE wildcards so keys such as "data/apps_v2" match literally
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
