package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"skiff/internal/core"
	"skiff/internal/feed/merge"
	"skiff/internal/feed/migrations"
	"skiff/internal/feed/models"
	"skiff/internal/feed/normalize"
	"skiff/internal/feed/store"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>https://example.com</link>
    <item>
      <title>First</title>
      <link>https://example.com/1</link>
      <guid>post-1</guid>
    </item>
  </channel>
</rss>`

// feedServer serves a feed with ETag-based conditional GET and counts
// full responses
type feedServer struct {
	etag     string
	body     string
	fullHits int64
	status   int
}

func (s *feedServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.status != 0 {
			w.WriteHeader(s.status)
			return
		}
		if s.etag != "" && r.Header.Get("If-None-Match") == s.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		atomic.AddInt64(&s.fullHits, 1)
		if s.etag != "" {
			w.Header().Set("ETag", s.etag)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(s.body))
	}
}

type refreshEnv struct {
	service  *RefreshService
	feeds    *store.FeedStore
	articles *store.ArticleStore
}

func newRefreshEnv(t *testing.T) *refreshEnv {
	t.Helper()

	logger := core.NewTestLogger()
	db, err := core.OpenDatabase(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := core.NewMigrationService(db, logger).Migrate(context.Background(), migrations.All()); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	config := &core.FetcherConfig{
		UserAgent:       "skiff-test/1.0",
		Timeout:         5 * time.Second,
		RefreshInterval: time.Hour,
		MaxWorkers:      2,
	}

	feeds := store.NewFeedStore(db, logger)
	articles := store.NewArticleStore(db, logger)
	rules := store.NewRuleStore(db, logger)
	merger := merge.NewEngine(db, articles, rules, logger)
	fetcher := NewFetcher(logger, config)
	normalizer := normalize.NewNormalizer(logger)

	return &refreshEnv{
		service:  NewRefreshService(fetcher, normalizer, merger, feeds, logger, config),
		feeds:    feeds,
		articles: articles,
	}
}

func TestSubscribeIngestsInitialBatch(t *testing.T) {
	srv := &feedServer{body: testFeed, etag: `"v1"`}
	server := httptest.NewServer(srv.handler())
	defer server.Close()

	env := newRefreshEnv(t)
	ctx := context.Background()

	feed, err := env.service.Subscribe(ctx, server.URL, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if feed.Title != "Example Blog" {
		t.Errorf("Expected discovered title, got %q", feed.Title)
	}
	if feed.ETag != `"v1"` {
		t.Errorf("Expected stored etag, got %q", feed.ETag)
	}

	articles, err := env.articles.List(ctx, &models.ArticleListParams{Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(articles) != 1 {
		t.Errorf("Expected 1 ingested article, got %d", len(articles))
	}

	// Subscribing to the same URL again returns the existing feed
	again, err := env.service.Subscribe(ctx, server.URL, nil)
	if err != nil {
		t.Fatalf("Re-subscribe failed: %v", err)
	}
	if again.ID != feed.ID {
		t.Error("Expected re-subscription to return the existing feed")
	}
}

func TestRefreshUsesConditionalGet(t *testing.T) {
	srv := &feedServer{body: testFeed, etag: `"v1"`}
	server := httptest.NewServer(srv.handler())
	defer server.Close()

	env := newRefreshEnv(t)
	ctx := context.Background()

	feed, err := env.service.Subscribe(ctx, server.URL, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// The stored etag matches, so the refresh gets a 304 and merges nothing
	added, err := env.service.RefreshFeedByID(ctx, feed.ID)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if added != 0 {
		t.Errorf("Expected no new articles on 304, got %d", added)
	}
	if hits := atomic.LoadInt64(&srv.fullHits); hits != 1 {
		t.Errorf("Expected exactly one full fetch, got %d", hits)
	}

	// A not-modified refresh still counts as success
	feed, _ = env.feeds.GetByID(ctx, feed.ID)
	if feed.FailureCount != 0 {
		t.Errorf("Expected no failures, got %d", feed.FailureCount)
	}
}

func TestRefreshRecordsFailure(t *testing.T) {
	srv := &feedServer{body: testFeed}
	server := httptest.NewServer(srv.handler())
	defer server.Close()

	env := newRefreshEnv(t)
	ctx := context.Background()

	feed, err := env.service.Subscribe(ctx, server.URL, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// The server starts failing; the feed records it and survives
	srv.status = http.StatusInternalServerError

	if _, err := env.service.RefreshFeedByID(ctx, feed.ID); err == nil {
		t.Fatal("Expected refresh to fail")
	}

	feed, err = env.feeds.GetByID(ctx, feed.ID)
	if err != nil {
		t.Fatalf("Expected feed to survive the failure: %v", err)
	}
	if feed.FailureCount != 1 {
		t.Errorf("Expected failure count 1, got %d", feed.FailureCount)
	}
	if feed.LastError == "" {
		t.Error("Expected last error recorded")
	}

	// Recovery clears the bookkeeping
	srv.status = 0
	if _, err := env.service.RefreshFeedByID(ctx, feed.ID); err != nil {
		t.Fatalf("Refresh after recovery failed: %v", err)
	}
	feed, _ = env.feeds.GetByID(ctx, feed.ID)
	if feed.FailureCount != 0 {
		t.Errorf("Expected failures cleared, got %d", feed.FailureCount)
	}
}

func TestRefreshAllIsolatesFailures(t *testing.T) {
	good := &feedServer{body: testFeed}
	goodServer := httptest.NewServer(good.handler())
	defer goodServer.Close()

	bad := &feedServer{status: http.StatusNotFound}
	badServer := httptest.NewServer(bad.handler())
	defer badServer.Close()

	env := newRefreshEnv(t)
	ctx := context.Background()

	if _, err := env.service.Subscribe(ctx, goodServer.URL, nil); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// The failing feed is created directly; subscription would reject it
	badFeed, err := env.feeds.Create(ctx, &models.FeedCreate{URL: badServer.URL})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	env.service.RefreshAll(ctx)

	badFeed, err = env.feeds.GetByID(ctx, badFeed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if badFeed.FailureCount == 0 {
		t.Error("Expected the failing feed to record its failure")
	}

	// The healthy feed refreshed normally in the same cycle
	goodFeed, err := env.feeds.GetByURL(ctx, goodServer.URL)
	if err != nil {
		t.Fatalf("GetByURL failed: %v", err)
	}
	if goodFeed.FailureCount != 0 {
		t.Errorf("Expected the healthy feed untouched by the failure, got %d failures", goodFeed.FailureCount)
	}
}
