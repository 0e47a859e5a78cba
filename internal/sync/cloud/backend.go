package cloud

import (
	"context"
	"time"
)

// FolderRecord is the cloud representation of a folder
type FolderRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Position  int        `json:"position"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// FeedRecord is the cloud representation of a feed subscription
type FeedRecord struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	SiteURL   string     `json:"site_url"`
	Kind      string     `json:"kind"`
	FolderID  *string    `json:"folder_id,omitempty"`
	SortOrder int        `json:"sort_order"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ArticleStateRecord is the cloud representation of article user state.
// Records are keyed by canonical link because article ids are derived per
// device and do not travel.
type ArticleStateRecord struct {
	Link             string     `json:"link"`
	IsRead           bool       `json:"is_read"`
	IsStarred        bool       `json:"is_starred"`
	PlaybackPosition int        `json:"playback_position"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// Backend is the cloud storage contract: per-table upsert and
// modified-since listing. Deletes travel as tombstones (a set deleted-at
// timestamp), never as physical removals.
type Backend interface {
	UpsertFolder(ctx context.Context, record FolderRecord) error
	FoldersSince(ctx context.Context, since time.Time) ([]FolderRecord, error)

	UpsertFeed(ctx context.Context, record FeedRecord) error
	FeedsSince(ctx context.Context, since time.Time) ([]FeedRecord, error)

	UpsertArticleState(ctx context.Context, record ArticleStateRecord) error
	ArticleStatesSince(ctx context.Context, since time.Time) ([]ArticleStateRecord, error)
}
