package store

import (
	"context"
	"testing"

	"skiff/internal/core"
	"skiff/internal/feed/models"
)

func TestFeedCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	feeds := NewFeedStore(db, core.NewTestLogger())

	feed, err := feeds.Create(ctx, &models.FeedCreate{
		Title: "Example",
		URL:   "https://example.com/rss",
		Kind:  models.FeedKindRSS,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if feed.ID == "" {
		t.Fatal("Expected a generated feed id")
	}

	// URL uniqueness
	if _, err := feeds.Create(ctx, &models.FeedCreate{URL: "https://example.com/rss"}); err == nil {
		t.Error("Expected duplicate URL to fail")
	}

	byURL, err := feeds.GetByURL(ctx, "https://example.com/rss")
	if err != nil {
		t.Fatalf("GetByURL failed: %v", err)
	}
	if byURL.ID != feed.ID {
		t.Error("Expected GetByURL to find the created feed")
	}

	newTitle := "Renamed"
	paused := true
	updated, err := feeds.Update(ctx, feed.ID, &models.FeedUpdate{Title: &newTitle, Paused: &paused})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "Renamed" || !updated.Paused {
		t.Errorf("Expected partial update to apply, got %+v", updated)
	}

	// Paused feeds are excluded from refresh cycles
	refreshable, err := feeds.ListRefreshable(ctx)
	if err != nil {
		t.Fatalf("ListRefreshable failed: %v", err)
	}
	if len(refreshable) != 0 {
		t.Errorf("Expected no refreshable feeds, got %d", len(refreshable))
	}

	if err := feeds.Delete(ctx, feed.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := feeds.GetByID(ctx, feed.ID); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Error("Expected deleted feed to be gone")
	}
}

func TestFeedFailureBookkeeping(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	feeds := NewFeedStore(db, core.NewTestLogger())

	feed, err := feeds.Create(ctx, &models.FeedCreate{URL: "https://example.com/rss"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := feeds.RecordFailure(ctx, feed.ID, core.NewNetworkError("connection refused", nil)); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := feeds.RecordFailure(ctx, feed.ID, core.NewNetworkError("connection refused", nil)); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	feed, _ = feeds.GetByID(ctx, feed.ID)
	if feed.FailureCount != 2 {
		t.Errorf("Expected failure count 2, got %d", feed.FailureCount)
	}
	if feed.LastError == "" {
		t.Error("Expected last error to be recorded")
	}

	if err := feeds.RecordSuccess(ctx, feed.ID, `"etag-1"`, "Mon, 02 Jan 2006 15:04:05 GMT"); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	feed, _ = feeds.GetByID(ctx, feed.ID)
	if feed.FailureCount != 0 || feed.LastError != "" {
		t.Error("Expected success to clear the failure bookkeeping")
	}
	if feed.ETag != `"etag-1"` {
		t.Errorf("Expected etag to be stored, got %q", feed.ETag)
	}
	if feed.LastFetched == nil {
		t.Error("Expected last fetched to be set")
	}
}

func TestMigrateIDMovesArticles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	logger := core.NewTestLogger()
	feeds := NewFeedStore(db, logger)
	articles := NewArticleStore(db, logger)

	feed, err := feeds.Create(ctx, &models.FeedCreate{
		Title: "Example",
		URL:   "https://example.com/rss",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	insertTestArticle(t, db, articles, &models.Article{
		ID: "a1", FeedID: feed.ID, Link: "https://example.com/a1", IsStarred: true,
	})

	if err := feeds.MigrateID(ctx, feed.ID, "remote-77"); err != nil {
		t.Fatalf("MigrateID failed: %v", err)
	}

	if _, err := feeds.GetByID(ctx, feed.ID); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Error("Expected the old feed id to be gone")
	}

	migrated, err := feeds.GetByID(ctx, "remote-77")
	if err != nil {
		t.Fatalf("Expected migrated feed: %v", err)
	}
	if migrated.URL != "https://example.com/rss" {
		t.Errorf("Expected URL preserved, got %q", migrated.URL)
	}
	if migrated.Title != "Example" {
		t.Errorf("Expected title preserved, got %q", migrated.Title)
	}

	article, err := articles.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if article.FeedID != "remote-77" {
		t.Errorf("Expected article re-pointed to the new feed id, got %q", article.FeedID)
	}
	if !article.IsStarred {
		t.Error("Expected article state to survive the migration")
	}
}
