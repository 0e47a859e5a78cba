package merge

import (
	"context"
	"testing"

	"skiff/internal/core"
	"skiff/internal/feed/migrations"
	"skiff/internal/feed/models"
	"skiff/internal/feed/normalize"
	"skiff/internal/feed/store"
)

type testEnv struct {
	db       *core.Database
	articles *store.ArticleStore
	rules    *store.RuleStore
	engine   *Engine
	feedID   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := core.NewTestLogger()
	db, err := core.OpenDatabase(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := core.NewMigrationService(db, logger).Migrate(ctx, migrations.All()); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	feeds := store.NewFeedStore(db, logger)
	feed, err := feeds.Create(ctx, &models.FeedCreate{
		Title: "Test Feed",
		URL:   "https://example.com/rss",
		Kind:  models.FeedKindRSS,
	})
	if err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	articles := store.NewArticleStore(db, logger)
	rules := store.NewRuleStore(db, logger)

	return &testEnv{
		db:       db,
		articles: articles,
		rules:    rules,
		engine:   NewEngine(db, articles, rules, logger),
		feedID:   feed.ID,
	}
}

func parsedArticle(guid, title, content string) models.ParsedArticle {
	link := "https://example.com/" + guid
	article := models.ParsedArticle{
		ID:      normalize.ArticleID("https://example.com/rss", guid, link, title),
		GUID:    guid,
		Title:   title,
		Link:    link,
		Summary: title,
		Content: content,
	}
	article.ContentHash = normalize.ContentHash(article.Title, article.Link, article.Summary, article.Content)
	return article
}

func TestMergeInsertsNewArticles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	batch := []models.ParsedArticle{
		parsedArticle("a1", "First", "body one"),
		parsedArticle("a2", "Second", "body two"),
	}

	inserted, err := env.engine.Merge(ctx, env.feedID, batch)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}

	// A second pass over the identical batch inserts nothing
	inserted, err = env.engine.Merge(ctx, env.feedID, batch)
	if err != nil {
		t.Fatalf("Re-merge failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted on re-merge, got %d", inserted)
	}
}

func TestMergePreservesUserState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original := parsedArticle("a1", "First", "body")
	if _, err := env.engine.Merge(ctx, env.feedID, []models.ParsedArticle{original}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	// The user reads, stars and listens to the article
	if err := env.articles.SetRead(ctx, original.ID, true); err != nil {
		t.Fatalf("SetRead failed: %v", err)
	}
	if err := env.articles.SetStarred(ctx, original.ID, true); err != nil {
		t.Fatalf("SetStarred failed: %v", err)
	}
	if err := env.articles.AdvancePlayback(ctx, original.ID, 120); err != nil {
		t.Fatalf("AdvancePlayback failed: %v", err)
	}

	// The publisher edits the entry; the id is unchanged because the guid
	// is unchanged
	edited := parsedArticle("a1", "First (updated)", "body edited")

	if _, err := env.engine.Merge(ctx, env.feedID, []models.ParsedArticle{edited}); err != nil {
		t.Fatalf("Merge of edited entry failed: %v", err)
	}

	article, err := env.articles.GetByID(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if article.Title != "First (updated)" {
		t.Errorf("Expected updated title, got %q", article.Title)
	}
	if !article.IsRead {
		t.Error("Expected read flag to survive a content update")
	}
	if !article.IsStarred {
		t.Error("Expected starred flag to survive a content update")
	}
	if article.PlaybackPosition != 120 {
		t.Errorf("Expected playback position to survive, got %d", article.PlaybackPosition)
	}
}

func TestMergeNeverClearsFlags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Incoming entry arrives already read (a sync backend said so)
	incoming := parsedArticle("a1", "First", "body")
	incoming.IsRead = true

	if _, err := env.engine.Merge(ctx, env.feedID, []models.ParsedArticle{incoming}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	// A later fetch of the same entry carries no read flag and changed
	// content; the stored flag must not flip back
	later := parsedArticle("a1", "First", "body changed")

	if _, err := env.engine.Merge(ctx, env.feedID, []models.ParsedArticle{later}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	article, err := env.articles.GetByID(ctx, incoming.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !article.IsRead {
		t.Error("Expected read flag to only move towards read during merge")
	}
}

func TestMergeUnchangedContentSkipsWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original := parsedArticle("a1", "First", "body")
	if _, err := env.engine.Merge(ctx, env.feedID, []models.ParsedArticle{original}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	before, err := env.articles.GetByID(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	// Same content with a different remote id must not clobber anything
	same := parsedArticle("a1", "First", "body")
	same.RemoteID = "42"
	if _, err := env.engine.Merge(ctx, env.feedID, []models.ParsedArticle{same}); err != nil {
		t.Fatalf("Re-merge failed: %v", err)
	}

	after, err := env.articles.GetByID(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.ContentHash != before.ContentHash {
		t.Error("Expected unchanged content to leave the record alone")
	}
}

func TestMergeDedupesBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dup := parsedArticle("a1", "First", "body")
	batch := []models.ParsedArticle{dup, dup, parsedArticle("a2", "Second", "body")}

	inserted, err := env.engine.Merge(ctx, env.feedID, batch)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected in-batch duplicate to be dropped, got %d inserted", inserted)
	}
}

func TestMergeEmptyBatchIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	inserted, err := env.engine.Merge(context.Background(), env.feedID, nil)
	if err != nil {
		t.Fatalf("Merge of empty batch failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted, got %d", inserted)
	}
}

func TestRuleActions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.rules.Create(ctx, &models.FilterRule{
		Condition: models.RuleConditionTitleContains,
		Value:     "sponsored",
		Action:    models.RuleActionDelete,
		Enabled:   true,
	}); err != nil {
		t.Fatalf("Failed to create delete rule: %v", err)
	}
	if _, err := env.rules.Create(ctx, &models.FilterRule{
		Condition: models.RuleConditionTitleContains,
		Value:     "release",
		Action:    models.RuleActionStar,
		Enabled:   true,
	}); err != nil {
		t.Fatalf("Failed to create star rule: %v", err)
	}

	batch := []models.ParsedArticle{
		parsedArticle("a1", "Sponsored: buy now", "ad"),
		parsedArticle("a2", "Release notes 1.0", "changes"),
		parsedArticle("a3", "Plain news", "body"),
	}

	inserted, err := env.engine.Merge(ctx, env.feedID, batch)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected deleted article to be dropped before storage, got %d inserted", inserted)
	}

	starred, err := env.articles.GetByID(ctx, batch[1].ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !starred.IsStarred {
		t.Error("Expected star rule to apply")
	}

	if _, err := env.articles.GetByID(ctx, batch[0].ID); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Error("Expected deleted article to be absent")
	}
}
