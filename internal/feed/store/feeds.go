package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"skiff/internal/core"
	"skiff/internal/feed/models"
)

// FeedStore handles feed persistence
type FeedStore struct {
	db     *core.Database
	logger *core.Logger
}

// NewFeedStore creates a new feed store
func NewFeedStore(db *core.Database, logger *core.Logger) *FeedStore {
	return &FeedStore{
		db:     db,
		logger: logger.ForComponent("feeds"),
	}
}

const feedColumns = `id, title, url, site_url, kind, folder_id, icon_url, etag, last_modified,
	last_fetched, failure_count, last_error, paused, sort_order, created_at, updated_at`

// Create creates a new feed with a generated id
func (s *FeedStore) Create(ctx context.Context, create *models.FeedCreate) (*models.Feed, error) {
	return s.CreateWithID(ctx, uuid.NewString(), create)
}

// CreateWithID creates a new feed under an externally assigned id. Sync
// paths use this to keep remote ids stable locally.
func (s *FeedStore) CreateWithID(ctx context.Context, id string, create *models.FeedCreate) (*models.Feed, error) {
	if create.URL == "" {
		return nil, core.NewValidationError("feed url is required", nil)
	}

	kind := create.Kind
	if kind == "" {
		kind = models.FeedKindRSS
	}

	now := time.Now()
	query := `
		INSERT INTO feeds (id, title, url, site_url, kind, folder_id, icon_url, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecWithTimeout(ctx, query,
		id, create.Title, create.URL, create.SiteURL, string(kind),
		create.FolderID, create.IconURL, create.SortOrder, now, now)
	if err != nil {
		return nil, core.NewDatabaseError("failed to create feed", err)
	}

	s.logger.Info("Created feed", "id", id, "url", create.URL)
	return s.GetByID(ctx, id)
}

// GetByID retrieves a feed by id
func (s *FeedStore) GetByID(ctx context.Context, id string) (*models.Feed, error) {
	row := s.db.QueryRowWithTimeout(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	return scanFeed(row)
}

// GetByURL retrieves a feed by its canonical URL
func (s *FeedStore) GetByURL(ctx context.Context, url string) (*models.Feed, error) {
	row := s.db.QueryRowWithTimeout(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)
	return scanFeed(row)
}

// List retrieves all feeds ordered by sort order then title
func (s *FeedStore) List(ctx context.Context) ([]models.Feed, error) {
	rows, err := s.db.QueryWithTimeout(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY sort_order, title`)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query feeds", err)
	}
	defer rows.Close()

	var feeds []models.Feed
	for rows.Next() {
		feed, err := scanFeedRows(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *feed)
	}

	return feeds, rows.Err()
}

// ListRefreshable retrieves feeds eligible for a refresh cycle (not paused)
func (s *FeedStore) ListRefreshable(ctx context.Context) ([]models.Feed, error) {
	rows, err := s.db.QueryWithTimeout(ctx, `SELECT `+feedColumns+` FROM feeds WHERE paused = 0 ORDER BY sort_order, title`)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query refreshable feeds", err)
	}
	defer rows.Close()

	var feeds []models.Feed
	for rows.Next() {
		feed, err := scanFeedRows(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *feed)
	}

	return feeds, rows.Err()
}

// Update applies a partial update to a feed
func (s *FeedStore) Update(ctx context.Context, id string, update *models.FeedUpdate) (*models.Feed, error) {
	setClauses := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}

	if update.Title != nil {
		setClauses = append(setClauses, "title = ?")
		args = append(args, *update.Title)
	}
	if update.SiteURL != nil {
		setClauses = append(setClauses, "site_url = ?")
		args = append(args, *update.SiteURL)
	}
	if update.FolderID != nil {
		setClauses = append(setClauses, "folder_id = ?")
		if *update.FolderID == "" {
			args = append(args, nil)
		} else {
			args = append(args, *update.FolderID)
		}
	}
	if update.IconURL != nil {
		setClauses = append(setClauses, "icon_url = ?")
		args = append(args, *update.IconURL)
	}
	if update.ETag != nil {
		setClauses = append(setClauses, "etag = ?")
		args = append(args, *update.ETag)
	}
	if update.LastModified != nil {
		setClauses = append(setClauses, "last_modified = ?")
		args = append(args, *update.LastModified)
	}
	if update.LastFetched != nil {
		setClauses = append(setClauses, "last_fetched = ?")
		args = append(args, *update.LastFetched)
	}
	if update.Paused != nil {
		setClauses = append(setClauses, "paused = ?")
		args = append(args, *update.Paused)
	}
	if update.SortOrder != nil {
		setClauses = append(setClauses, "sort_order = ?")
		args = append(args, *update.SortOrder)
	}

	args = append(args, id)
	query := "UPDATE feeds SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"

	if _, err := s.db.ExecWithTimeout(ctx, query, args...); err != nil {
		return nil, core.NewDatabaseError("failed to update feed", err)
	}

	return s.GetByID(ctx, id)
}

// Delete removes a feed; its articles cascade
func (s *FeedStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecWithTimeout(ctx, `DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return core.NewDatabaseError("failed to delete feed", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("feed not found: %s", id), nil)
	}

	s.logger.Info("Deleted feed", "id", id)
	return nil
}

// RecordFailure increments the consecutive failure counter and records the
// last error in place. Feeds are never deleted for failing.
func (s *FeedStore) RecordFailure(ctx context.Context, id string, fetchErr error) error {
	query := `UPDATE feeds SET failure_count = failure_count + 1, last_error = ?, updated_at = ? WHERE id = ?`
	_, err := s.db.ExecWithTimeout(ctx, query, fetchErr.Error(), time.Now(), id)
	if err != nil {
		return core.NewDatabaseError("failed to record feed failure", err)
	}
	return nil
}

// RecordSuccess clears failure state and stores conditional-GET validators
func (s *FeedStore) RecordSuccess(ctx context.Context, id string, etag, lastModified string) error {
	now := time.Now()
	query := `
		UPDATE feeds
		SET failure_count = 0, last_error = '', etag = ?, last_modified = ?, last_fetched = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecWithTimeout(ctx, query, etag, lastModified, now, now, id)
	if err != nil {
		return core.NewDatabaseError("failed to record feed success", err)
	}
	return nil
}

// MigrateID re-keys a feed to a new id, carrying its articles along, and
// removes the stale record. Used when a sync path assigns an authoritative
// id to a feed that already exists locally under a different one.
func (s *FeedStore) MigrateID(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var oldURL string
		if err := tx.QueryRowContext(ctx, `SELECT url FROM feeds WHERE id = ?`, oldID).Scan(&oldURL); err != nil {
			if err == sql.ErrNoRows {
				return core.NewNotFoundError(fmt.Sprintf("feed not found: %s", oldID), err)
			}
			return fmt.Errorf("failed to load feed %s: %w", oldID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO feeds (id, title, url, site_url, kind, folder_id, icon_url, etag, last_modified,
				last_fetched, failure_count, last_error, paused, sort_order, created_at, updated_at)
			SELECT ?, title, url || '#migrating', site_url, kind, folder_id, icon_url, etag, last_modified,
				last_fetched, failure_count, last_error, paused, sort_order, created_at, ?
			FROM feeds WHERE id = ?`, newID, time.Now(), oldID); err != nil {
			return fmt.Errorf("failed to copy feed %s to %s: %w", oldID, newID, err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE articles SET feed_id = ? WHERE feed_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("failed to migrate articles from %s to %s: %w", oldID, newID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("failed to delete stale feed %s: %w", oldID, err)
		}

		// Restore the canonical URL now that the unique constraint is free
		if _, err := tx.ExecContext(ctx, `UPDATE feeds SET url = ? WHERE id = ?`, oldURL, newID); err != nil {
			return fmt.Errorf("failed to restore feed url for %s: %w", newID, err)
		}

		s.logger.Info("Migrated feed id", "old_id", oldID, "new_id", newID, "url", oldURL)
		return nil
	})
}

func scanFeed(row *sql.Row) (*models.Feed, error) {
	var feed models.Feed
	var folderID sql.NullString
	var lastFetched sql.NullTime
	var kind string

	err := row.Scan(
		&feed.ID, &feed.Title, &feed.URL, &feed.SiteURL, &kind, &folderID,
		&feed.IconURL, &feed.ETag, &feed.LastModified, &lastFetched,
		&feed.FailureCount, &feed.LastError, &feed.Paused, &feed.SortOrder,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError("feed not found", err)
		}
		return nil, core.NewDatabaseError("failed to scan feed", err)
	}

	feed.Kind = models.FeedKind(kind)
	if folderID.Valid {
		feed.FolderID = &folderID.String
	}
	if lastFetched.Valid {
		feed.LastFetched = &lastFetched.Time
	}

	return &feed, nil
}

func scanFeedRows(rows *sql.Rows) (*models.Feed, error) {
	var feed models.Feed
	var folderID sql.NullString
	var lastFetched sql.NullTime
	var kind string

	err := rows.Scan(
		&feed.ID, &feed.Title, &feed.URL, &feed.SiteURL, &kind, &folderID,
		&feed.IconURL, &feed.ETag, &feed.LastModified, &lastFetched,
		&feed.FailureCount, &feed.LastError, &feed.Paused, &feed.SortOrder,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, core.NewDatabaseError("failed to scan feed", err)
	}

	feed.Kind = models.FeedKind(kind)
	if folderID.Valid {
		feed.FolderID = &folderID.String
	}
	if lastFetched.Valid {
		feed.LastFetched = &lastFetched.Time
	}

	return &feed, nil
}
