package models

import (
	"time"
)

// FeedKind identifies the source format family of a feed
type FeedKind string

const (
	FeedKindRSS     FeedKind = "rss"
	FeedKindAtom    FeedKind = "atom"
	FeedKindJSON    FeedKind = "json"
	FeedKindYouTube FeedKind = "youtube"
	FeedKindReddit  FeedKind = "reddit"
	FeedKindPodcast FeedKind = "podcast"
)

// Feed represents a subscribed feed
type Feed struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	SiteURL      string     `json:"site_url"`
	Kind         FeedKind   `json:"kind"`
	FolderID     *string    `json:"folder_id"`
	IconURL      string     `json:"icon_url"`
	ETag         string     `json:"etag"`
	LastModified string     `json:"last_modified"`
	LastFetched  *time.Time `json:"last_fetched"`
	FailureCount int        `json:"failure_count"`
	LastError    string     `json:"last_error"`
	Paused       bool       `json:"paused"`
	SortOrder    int        `json:"sort_order"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FeedCreate represents the data needed to create a new feed
type FeedCreate struct {
	Title     string   `json:"title"`
	URL       string   `json:"url" validate:"required,url"`
	SiteURL   string   `json:"site_url"`
	Kind      FeedKind `json:"kind"`
	FolderID  *string  `json:"folder_id"`
	IconURL   string   `json:"icon_url"`
	SortOrder int      `json:"sort_order"`
}

// FeedUpdate represents the data needed to update a feed
type FeedUpdate struct {
	Title        *string    `json:"title"`
	SiteURL      *string    `json:"site_url"`
	FolderID     *string    `json:"folder_id"`
	IconURL      *string    `json:"icon_url"`
	ETag         *string    `json:"etag"`
	LastModified *string    `json:"last_modified"`
	LastFetched  *time.Time `json:"last_fetched"`
	Paused       *bool      `json:"paused"`
	SortOrder    *int       `json:"sort_order"`
}

// Folder groups feeds for display ordering
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
