package models

import (
	"time"
)

// MediaKind classifies the primary media attached to an article
type MediaKind string

const (
	MediaKindNone    MediaKind = "none"
	MediaKindVideo   MediaKind = "video"
	MediaKindAudio   MediaKind = "audio"
	MediaKindYouTube MediaKind = "youtube"
	MediaKindPodcast MediaKind = "podcast"
)

// Article represents a canonical article. The ID is a stable hash of
// (feed URL, entry identifier); once an id exists the row is only ever
// updated, never re-created.
type Article struct {
	ID               string     `json:"id"`
	FeedID           string     `json:"feed_id"`
	Title            string     `json:"title"`
	Link             string     `json:"link"`
	Summary          string     `json:"summary"`
	Content          string     `json:"content"`
	ReaderContent    string     `json:"reader_content"`
	Author           string     `json:"author"`
	PublishedAt      *time.Time `json:"published_at"`
	FetchedAt        time.Time  `json:"fetched_at"`
	IsRead           bool       `json:"is_read"`
	IsStarred        bool       `json:"is_starred"`
	MediaKind        MediaKind  `json:"media_kind"`
	EnclosureURL     string     `json:"enclosure_url"`
	EnclosureType    string     `json:"enclosure_type"`
	ThumbnailURL     string     `json:"thumbnail_url"`
	PlaybackPosition int        `json:"playback_position"`
	IsDownloaded     bool       `json:"is_downloaded"`
	HasReaderContent bool       `json:"has_reader_content"`
	ContentHash      string     `json:"content_hash"`
	RemoteID         string     `json:"remote_id,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
}

// ArticleListParams represents parameters for listing articles
type ArticleListParams struct {
	FeedID    *string `json:"feed_id"`
	FolderID  *string `json:"folder_id"`
	IsRead    *bool   `json:"is_read"`
	IsStarred *bool   `json:"is_starred"`
	Search    string  `json:"search"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
}

// ArticleState is the sync-portable slice of an article: the user-intent
// fields matched across devices by canonical link rather than by id
type ArticleState struct {
	Link             string `json:"link"`
	IsRead           bool   `json:"is_read"`
	IsStarred        bool   `json:"is_starred"`
	PlaybackPosition int    `json:"playback_position"`
}

// HasNonDefaultState reports whether the article carries any user state
// worth pushing to a sync backend
func (a *Article) HasNonDefaultState() bool {
	return a.IsRead || a.IsStarred || a.PlaybackPosition > 0
}
