package models

import (
	"time"
)

// ParsedFeed represents a normalized feed of any source format. All shape
// ambiguity from the wire formats is resolved before this struct is built;
// nothing downstream inspects raw parse trees.
type ParsedFeed struct {
	Title    string          `json:"title"`
	SiteURL  string          `json:"site_url"`
	IconURL  string          `json:"icon_url"`
	Kind     FeedKind        `json:"kind"`
	Articles []ParsedArticle `json:"articles"`
}

// ParsedArticle represents a normalized entry before merge. ID is the
// stable article id; GUID is the entry identifier it was derived from.
type ParsedArticle struct {
	ID            string     `json:"id"`
	GUID          string     `json:"guid"`
	Title         string     `json:"title"`
	Link          string     `json:"link"`
	Summary       string     `json:"summary"`
	Content       string     `json:"content"`
	Author        string     `json:"author"`
	PublishedAt   *time.Time `json:"published_at"`
	MediaKind     MediaKind  `json:"media_kind"`
	VideoID       string     `json:"video_id"`
	EnclosureURL  string     `json:"enclosure_url"`
	EnclosureType string     `json:"enclosure_type"`
	ThumbnailURL  string     `json:"thumbnail_url"`
	ContentHash   string     `json:"content_hash"`
	RemoteID      string     `json:"remote_id,omitempty"`
	IsRead        bool       `json:"is_read"`
	IsStarred     bool       `json:"is_starred"`
	Tags          []string   `json:"tags,omitempty"`
}
