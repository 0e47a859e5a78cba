package fever

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"skiff/internal/core"
	"skiff/internal/feed/merge"
	"skiff/internal/feed/models"
	"skiff/internal/feed/normalize"
	"skiff/internal/feed/store"
)

// itemPageCap bounds the item pagination loop against a server that keeps
// answering with the same page
const itemPageCap = 200

// Engine reconciles local state against a Fever endpoint. The pipeline
// runs sequentially: groups, feeds, unread ids, saved ids, items. There is
// no rollback across steps; a failure keeps everything already applied.
type Engine struct {
	client   *Client
	feeds    *store.FeedStore
	folders  *store.FolderStore
	articles *store.ArticleStore
	merger   *merge.Engine
	meta     *store.MetaStore
	logger   *core.Logger
}

// NewEngine creates a new Fever sync engine
func NewEngine(
	client *Client,
	feeds *store.FeedStore,
	folders *store.FolderStore,
	articles *store.ArticleStore,
	merger *merge.Engine,
	meta *store.MetaStore,
	logger *core.Logger,
) *Engine {
	return &Engine{
		client:   client,
		feeds:    feeds,
		folders:  folders,
		articles: articles,
		merger:   merger,
		meta:     meta,
		logger:   logger.ForComponent("fever"),
	}
}

// Sync runs the full pipeline once
func (e *Engine) Sync(ctx context.Context) error {
	groups, feedsGroups, err := e.client.Groups(ctx)
	if err != nil {
		return err
	}

	if err := e.applyGroups(ctx, groups); err != nil {
		return err
	}

	feedFolder := feedToGroupMapping(feedsGroups)

	remoteFeeds, err := e.client.Feeds(ctx)
	if err != nil {
		return err
	}

	feedURLs := e.applyFeeds(ctx, remoteFeeds, feedFolder)

	if err := e.applyReadSavedOverlays(ctx); err != nil {
		return err
	}

	if err := e.ingestItems(ctx, feedURLs); err != nil {
		return err
	}

	e.logger.Info("Fever sync completed", "groups", len(groups), "feeds", len(remoteFeeds))
	return nil
}

// MarkRead pushes a read-state mutation for a remote item id
func (e *Engine) MarkRead(ctx context.Context, remoteID string, read bool) error {
	id, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return core.NewValidationError(fmt.Sprintf("not a fever item id: %s", remoteID), err)
	}

	as := "read"
	if !read {
		as = "unread"
	}
	return e.client.MarkItem(ctx, id, as)
}

// MarkSaved pushes a saved-state mutation for a remote item id
func (e *Engine) MarkSaved(ctx context.Context, remoteID string, saved bool) error {
	id, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return core.NewValidationError(fmt.Sprintf("not a fever item id: %s", remoteID), err)
	}

	as := "saved"
	if !saved {
		as = "unsaved"
	}
	return e.client.MarkItem(ctx, id, as)
}

// applyGroups mirrors remote groups as folders under deterministic ids so
// repeated syncs stay idempotent
func (e *Engine) applyGroups(ctx context.Context, groups []Group) error {
	for i, group := range groups {
		folderID := feverFolderID(group.ID)
		if err := e.folders.ReconcileRemote(ctx, folderID, group.Title, i); err != nil {
			return err
		}
	}
	return nil
}

// applyFeeds reconciles remote feeds and returns a remote-feed-id to
// feed-URL map for item identity derivation. Per-feed failures are logged
// and do not abort the remaining feeds.
func (e *Engine) applyFeeds(ctx context.Context, remoteFeeds []Feed, feedFolder map[int64]int64) map[int64]string {
	feedURLs := make(map[int64]string, len(remoteFeeds))

	for _, remote := range remoteFeeds {
		feedURLs[remote.ID] = remote.URL

		if err := e.applyFeed(ctx, remote, feedFolder); err != nil {
			e.logger.Error("Failed to reconcile fever feed", "remote_id", remote.ID, "url", remote.URL, "error", err)
		}
	}

	return feedURLs
}

func (e *Engine) applyFeed(ctx context.Context, remote Feed, feedFolder map[int64]int64) error {
	localID := strconv.FormatInt(remote.ID, 10)

	var folderID *string
	if groupID, ok := feedFolder[remote.ID]; ok {
		id := feverFolderID(groupID)
		folderID = &id
	}

	if _, err := e.feeds.GetByID(ctx, localID); err == nil {
		update := &models.FeedUpdate{Title: &remote.Title, SiteURL: &remote.SiteURL}
		if folderID != nil {
			update.FolderID = folderID
		}
		_, err := e.feeds.Update(ctx, localID, update)
		return err
	}

	// A feed with the same canonical URL may already exist locally under a
	// different id; its articles move to the remote id and the stale
	// record goes away, keeping the URL unique
	if existing, err := e.feeds.GetByURL(ctx, remote.URL); err == nil {
		if err := e.feeds.MigrateID(ctx, existing.ID, localID); err != nil {
			return err
		}
		update := &models.FeedUpdate{Title: &remote.Title, SiteURL: &remote.SiteURL}
		if folderID != nil {
			update.FolderID = folderID
		}
		_, err := e.feeds.Update(ctx, localID, update)
		return err
	}

	_, err := e.feeds.CreateWithID(ctx, localID, &models.FeedCreate{
		Title:    remote.Title,
		URL:      remote.URL,
		SiteURL:  remote.SiteURL,
		Kind:     models.FeedKindRSS,
		FolderID: folderID,
	})
	return err
}

// applyReadSavedOverlays applies the unread and saved id lists. Both are
// one-directional: flags are only ever set true, never cleared. Saved ids
// mark their articles starred; articles missing from the unread list are
// marked read.
func (e *Engine) applyReadSavedOverlays(ctx context.Context) error {
	unreadIDs, err := e.client.UnreadItemIDs(ctx)
	if err != nil {
		return err
	}

	savedIDs, err := e.client.SavedItemIDs(ctx)
	if err != nil {
		return err
	}

	remoteUnread := make(map[string]bool, len(unreadIDs))
	for _, id := range unreadIDs {
		remoteUnread[id] = true
	}

	localUnread, err := e.articles.ListUnreadRemoteIDs(ctx)
	if err != nil {
		return err
	}

	var markRead []string
	for _, id := range localUnread {
		if !remoteUnread[id] {
			markRead = append(markRead, id)
		}
	}

	if err := e.articles.OverlayReadByRemoteIDs(ctx, markRead); err != nil {
		return err
	}

	return e.articles.OverlayStarredByRemoteIDs(ctx, savedIDs)
}

// ingestItems pages through remote items newer than the stored cursor and
// merges them per feed
func (e *Engine) ingestItems(ctx context.Context, feedURLs map[int64]string) error {
	sinceRaw, err := e.meta.Get(ctx, store.MetaKeyFeverMaxID)
	if err != nil {
		return err
	}
	sinceID, _ := strconv.ParseInt(sinceRaw, 10, 64)

	for page := 0; page < itemPageCap; page++ {
		items, _, err := e.client.Items(ctx, sinceID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		batches := make(map[int64][]models.ParsedArticle)
		maxID := sinceID

		for _, item := range items {
			if item.ID > maxID {
				maxID = item.ID
			}

			feedURL, known := feedURLs[item.FeedID]
			if !known {
				e.logger.Warn("Skipping item for unknown feed", "item_id", item.ID, "feed_id", item.FeedID)
				continue
			}

			batches[item.FeedID] = append(batches[item.FeedID], itemToParsed(item, feedURL))
		}

		for feedID, batch := range batches {
			if _, err := e.merger.Merge(ctx, strconv.FormatInt(feedID, 10), batch); err != nil {
				e.logger.Error("Failed to merge fever items", "feed_id", feedID, "error", err)
			}
		}

		if maxID == sinceID {
			// Server is not advancing; bail rather than loop
			return nil
		}
		sinceID = maxID

		if err := e.meta.Set(ctx, store.MetaKeyFeverMaxID, strconv.FormatInt(sinceID, 10)); err != nil {
			return err
		}
	}

	return nil
}

// itemToParsed converts a protocol item into the canonical parsed form,
// reusing the normalizer's media heuristics on the item link
func itemToParsed(item Item, feedURL string) models.ParsedArticle {
	kind, videoID := normalize.ClassifyURL(item.URL)

	content := item.HTML
	thumbnail := ""
	if videoID != "" {
		content, thumbnail = normalize.VideoEmbed(videoID)
	}

	var published *time.Time
	if item.CreatedOnTime > 0 {
		t := time.Unix(item.CreatedOnTime, 0)
		published = &t
	}

	parsed := models.ParsedArticle{
		ID:           normalize.ArticleID(feedURL, "", item.URL, item.Title),
		Title:        item.Title,
		Link:         item.URL,
		Content:      content,
		Author:       item.Author,
		PublishedAt:  published,
		MediaKind:    kind,
		VideoID:      videoID,
		ThumbnailURL: thumbnail,
		RemoteID:     strconv.FormatInt(item.ID, 10),
		IsRead:       item.IsRead == 1,
		IsStarred:    item.IsSaved == 1,
	}
	parsed.ContentHash = normalize.ContentHash(parsed.Title, parsed.Link, parsed.Summary, parsed.Content)

	return parsed
}

// feedToGroupMapping builds the feed-to-group lookup from the delimited
// feed id lists. A feed named by more than one group keeps the first
// mapping encountered.
func feedToGroupMapping(feedsGroups []FeedsGroup) map[int64]int64 {
	mapping := make(map[int64]int64)

	for _, fg := range feedsGroups {
		for _, raw := range strings.Split(fg.FeedIDs, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			feedID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			if _, exists := mapping[feedID]; !exists {
				mapping[feedID] = fg.GroupID
			}
		}
	}

	return mapping
}

func feverFolderID(groupID int64) string {
	return fmt.Sprintf("fever-%d", groupID)
}
