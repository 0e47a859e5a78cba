package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"skiff/internal/core"
	"skiff/internal/feed/models"
)

// ArticleStore handles article persistence
type ArticleStore struct {
	db     *core.Database
	logger *core.Logger
}

// NewArticleStore creates a new article store
func NewArticleStore(db *core.Database, logger *core.Logger) *ArticleStore {
	return &ArticleStore{
		db:     db,
		logger: logger.ForComponent("articles"),
	}
}

const articleColumns = `id, feed_id, title, link, summary, content, reader_content, author,
	published_at, fetched_at, is_read, is_starred, media_kind, enclosure_url, enclosure_type,
	thumbnail_url, playback_position, is_downloaded, has_reader_content, content_hash, remote_id`

// GetByID retrieves an article by id
func (s *ArticleStore) GetByID(ctx context.Context, id string) (*models.Article, error) {
	row := s.db.QueryRowWithTimeout(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)

	article, err := scanArticleRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError(fmt.Sprintf("article not found: %s", id), err)
		}
		return nil, core.NewDatabaseError("failed to get article", err)
	}

	return article, nil
}

// GetByLink retrieves an article by canonical link, or nil when none
// exists. Cloud sync matches article state this way because ids are
// locally generated per device.
func (s *ArticleStore) GetByLink(ctx context.Context, link string) (*models.Article, error) {
	if link == "" {
		return nil, nil
	}

	row := s.db.QueryRowWithTimeout(ctx, `SELECT `+articleColumns+` FROM articles WHERE link = ? LIMIT 1`, link)

	article, err := scanArticleRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, core.NewDatabaseError("failed to get article by link", err)
	}

	return article, nil
}

// GetByIDsTx batch-fetches existing articles whose ids appear in ids,
// inside the caller's transaction
func (s *ArticleStore) GetByIDsTx(ctx context.Context, tx *sql.Tx, ids []string) (map[string]*models.Article, error) {
	result := make(map[string]*models.Article, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + articleColumns + ` FROM articles WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to batch-fetch articles", err)
	}
	defer rows.Close()

	for rows.Next() {
		article, err := scanArticleRow(rows.Scan)
		if err != nil {
			return nil, core.NewDatabaseError("failed to scan article", err)
		}
		result[article.ID] = article
	}

	return result, rows.Err()
}

// InsertTx inserts a new article inside the caller's transaction
func (s *ArticleStore) InsertTx(ctx context.Context, tx *sql.Tx, article *models.Article) error {
	query := `
		INSERT INTO articles (` + articleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	fetchedAt := article.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	_, err := tx.ExecContext(ctx, query,
		article.ID, article.FeedID, article.Title, article.Link, article.Summary,
		article.Content, article.ReaderContent, article.Author, article.PublishedAt,
		fetchedAt, article.IsRead, article.IsStarred, string(article.MediaKind),
		article.EnclosureURL, article.EnclosureType, article.ThumbnailURL,
		article.PlaybackPosition, article.IsDownloaded, article.HasReaderContent,
		article.ContentHash, article.RemoteID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert article %s: %w", article.ID, err)
	}

	return nil
}

// UpdateContentTx rewrites the mutable content fields of an existing
// article inside the caller's transaction. The caller is responsible for
// having carried user-intent fields forward; this writes them verbatim.
func (s *ArticleStore) UpdateContentTx(ctx context.Context, tx *sql.Tx, article *models.Article) error {
	query := `
		UPDATE articles
		SET title = ?, link = ?, summary = ?, content = ?, author = ?, published_at = ?,
			is_read = ?, is_starred = ?, media_kind = ?, enclosure_url = ?, enclosure_type = ?,
			thumbnail_url = ?, content_hash = ?, remote_id = ?
		WHERE id = ?
	`

	_, err := tx.ExecContext(ctx, query,
		article.Title, article.Link, article.Summary, article.Content, article.Author,
		article.PublishedAt, article.IsRead, article.IsStarred, string(article.MediaKind),
		article.EnclosureURL, article.EnclosureType, article.ThumbnailURL,
		article.ContentHash, article.RemoteID, article.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", article.ID, err)
	}

	return nil
}

// AddTagTx attaches a tag to an article inside the caller's transaction
func (s *ArticleStore) AddTagTx(ctx context.Context, tx *sql.Tx, articleID, tag string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO article_tags (article_id, tag) VALUES (?, ?)`, articleID, tag)
	if err != nil {
		return fmt.Errorf("failed to tag article %s: %w", articleID, err)
	}
	return nil
}

// List retrieves articles with filtering and pagination
func (s *ArticleStore) List(ctx context.Context, params *models.ArticleListParams) ([]models.Article, error) {
	query := `
		SELECT ` + prefixColumns("a", articleColumns) + `
		FROM articles a
		LEFT JOIN feeds f ON a.feed_id = f.id
	`

	args := make([]interface{}, 0)
	whereClauses := []string{}

	if params.FeedID != nil {
		whereClauses = append(whereClauses, "a.feed_id = ?")
		args = append(args, *params.FeedID)
	}
	if params.FolderID != nil {
		whereClauses = append(whereClauses, "f.folder_id = ?")
		args = append(args, *params.FolderID)
	}
	if params.IsRead != nil {
		whereClauses = append(whereClauses, "a.is_read = ?")
		args = append(args, *params.IsRead)
	}
	if params.IsStarred != nil {
		whereClauses = append(whereClauses, "a.is_starred = ?")
		args = append(args, *params.IsStarred)
	}
	if params.Search != "" {
		whereClauses = append(whereClauses, "(a.title LIKE ? OR a.summary LIKE ? OR a.content LIKE ?)")
		searchTerm := "%" + params.Search + "%"
		args = append(args, searchTerm, searchTerm, searchTerm)
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY a.published_at DESC, a.fetched_at DESC"

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, params.Offset)

	rows, err := s.db.QueryWithTimeout(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query articles", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		article, err := scanArticleRow(rows.Scan)
		if err != nil {
			return nil, core.NewDatabaseError("failed to scan article", err)
		}
		articles = append(articles, *article)
	}

	return articles, rows.Err()
}

// SetRead sets the read flag. This is the explicit user action path; it is
// the only way a read article returns to unread.
func (s *ArticleStore) SetRead(ctx context.Context, id string, read bool) error {
	result, err := s.db.ExecWithTimeout(ctx, `UPDATE articles SET is_read = ? WHERE id = ?`, read, id)
	if err != nil {
		return core.NewDatabaseError("failed to set article read state", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("article not found: %s", id), nil)
	}

	return nil
}

// SetStarred sets the starred flag. Explicit user action path, see SetRead.
func (s *ArticleStore) SetStarred(ctx context.Context, id string, starred bool) error {
	result, err := s.db.ExecWithTimeout(ctx, `UPDATE articles SET is_starred = ? WHERE id = ?`, starred, id)
	if err != nil {
		return core.NewDatabaseError("failed to set article starred state", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("article not found: %s", id), nil)
	}

	return nil
}

// AdvancePlayback moves the playback position forward. Positions never
// regress: a smaller value than the stored one is a no-op.
func (s *ArticleStore) AdvancePlayback(ctx context.Context, id string, position int) error {
	query := `UPDATE articles SET playback_position = MAX(playback_position, ?) WHERE id = ?`
	if _, err := s.db.ExecWithTimeout(ctx, query, position, id); err != nil {
		return core.NewDatabaseError("failed to advance playback position", err)
	}
	return nil
}

// SetReaderContent stores the reader-extracted content variant and marks
// the article as pre-fetched
func (s *ArticleStore) SetReaderContent(ctx context.Context, id string, content string) error {
	query := `UPDATE articles SET reader_content = ?, has_reader_content = 1 WHERE id = ?`
	if _, err := s.db.ExecWithTimeout(ctx, query, content, id); err != nil {
		return core.NewDatabaseError("failed to store reader content", err)
	}
	return nil
}

// ApplyRemoteState merges a remote article state into the local record
// matched by canonical link: read/starred by logical OR, playback by
// maximum. Absent local articles are ignored.
func (s *ArticleStore) ApplyRemoteState(ctx context.Context, state *models.ArticleState) error {
	query := `
		UPDATE articles
		SET is_read = is_read OR ?,
			is_starred = is_starred OR ?,
			playback_position = MAX(playback_position, ?)
		WHERE link = ?
	`
	_, err := s.db.ExecWithTimeout(ctx, query, state.IsRead, state.IsStarred, state.PlaybackPosition, state.Link)
	if err != nil {
		return core.NewDatabaseError("failed to apply remote article state", err)
	}
	return nil
}

// ListStates returns the sync-portable state of every article carrying a
// non-default value
func (s *ArticleStore) ListStates(ctx context.Context) ([]models.ArticleState, error) {
	query := `
		SELECT link, is_read, is_starred, playback_position
		FROM articles
		WHERE link != '' AND (is_read = 1 OR is_starred = 1 OR playback_position > 0)
	`

	rows, err := s.db.QueryWithTimeout(ctx, query)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query article states", err)
	}
	defer rows.Close()

	var states []models.ArticleState
	for rows.Next() {
		var state models.ArticleState
		if err := rows.Scan(&state.Link, &state.IsRead, &state.IsStarred, &state.PlaybackPosition); err != nil {
			return nil, core.NewDatabaseError("failed to scan article state", err)
		}
		states = append(states, state)
	}

	return states, rows.Err()
}

// OverlayReadByRemoteIDs marks the given remote-identified articles read.
// This is a set-true overlay: ids absent from the list are left untouched.
func (s *ArticleStore) OverlayReadByRemoteIDs(ctx context.Context, remoteIDs []string) error {
	return s.overlayByRemoteIDs(ctx, "is_read", remoteIDs)
}

// OverlayStarredByRemoteIDs marks the given remote-identified articles
// starred, same overlay semantics as OverlayReadByRemoteIDs
func (s *ArticleStore) OverlayStarredByRemoteIDs(ctx context.Context, remoteIDs []string) error {
	return s.overlayByRemoteIDs(ctx, "is_starred", remoteIDs)
}

// ListUnreadRemoteIDs returns the remote ids of locally unread articles
// that came from a remote-id based sync path
func (s *ArticleStore) ListUnreadRemoteIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryWithTimeout(ctx,
		`SELECT remote_id FROM articles WHERE remote_id != '' AND is_read = 0`)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query unread remote ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, core.NewDatabaseError("failed to scan remote id", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *ArticleStore) overlayByRemoteIDs(ctx context.Context, column string, remoteIDs []string) error {
	const chunkSize = 500

	for start := 0; start < len(remoteIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(remoteIDs) {
			end = len(remoteIDs)
		}
		chunk := remoteIDs[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			placeholders[i] = "?"
			args[i] = id
		}

		query := `UPDATE articles SET ` + column + ` = 1 WHERE remote_id IN (` + strings.Join(placeholders, ",") + `)`
		if _, err := s.db.ExecWithTimeout(ctx, query, args...); err != nil {
			return core.NewDatabaseError("failed to apply remote id overlay", err)
		}
	}

	return nil
}

// scanArticleRow scans one article row via the given scan function so the
// same column handling serves sql.Row and sql.Rows
func scanArticleRow(scan func(dest ...interface{}) error) (*models.Article, error) {
	var article models.Article
	var publishedAt sql.NullTime
	var mediaKind string

	err := scan(
		&article.ID, &article.FeedID, &article.Title, &article.Link, &article.Summary,
		&article.Content, &article.ReaderContent, &article.Author, &publishedAt,
		&article.FetchedAt, &article.IsRead, &article.IsStarred, &mediaKind,
		&article.EnclosureURL, &article.EnclosureType, &article.ThumbnailURL,
		&article.PlaybackPosition, &article.IsDownloaded, &article.HasReaderContent,
		&article.ContentHash, &article.RemoteID,
	)
	if err != nil {
		return nil, err
	}

	article.MediaKind = models.MediaKind(mediaKind)
	if publishedAt.Valid {
		article.PublishedAt = &publishedAt.Time
	}

	return &article, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
