package store

import (
	"context"
	"database/sql"
	"time"

	"skiff/internal/core"
)

// Meta keys used by the sync engines
const (
	MetaKeyCloudCursor = "cloud_sync_cursor"
	MetaKeyFeverMaxID  = "fever_max_item_id"
	MetaKeyDeviceID    = "device_id"
)

// MetaStore is a small key/value table for sync bookkeeping
type MetaStore struct {
	db *core.Database
}

// NewMetaStore creates a new meta store
func NewMetaStore(db *core.Database) *MetaStore {
	return &MetaStore{db: db}
}

// Get returns the value for key, or "" when unset
func (s *MetaStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowWithTimeout(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", core.NewDatabaseError("failed to read sync meta", err)
	}
	return value, nil
}

// Set stores the value for key
func (s *MetaStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecWithTimeout(ctx, query, key, value); err != nil {
		return core.NewDatabaseError("failed to write sync meta", err)
	}
	return nil
}

// GetTime returns the value for key parsed as RFC3339, or the zero time
func (s *MetaStore) GetTime(ctx context.Context, key string) (time.Time, error) {
	value, err := s.Get(ctx, key)
	if err != nil || value == "" {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetTime stores a timestamp under key in RFC3339 form
func (s *MetaStore) SetTime(ctx context.Context, key string, t time.Time) error {
	return s.Set(ctx, key, t.Format(time.RFC3339Nano))
}
