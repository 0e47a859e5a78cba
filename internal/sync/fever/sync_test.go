package fever

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"skiff/internal/core"
	"skiff/internal/feed/merge"
	"skiff/internal/feed/migrations"
	"skiff/internal/feed/models"
	"skiff/internal/feed/store"
)

// fakeFever is a minimal in-memory Fever endpoint
type fakeFever struct {
	apiKey      string
	groups      []Group
	feedsGroups []FeedsGroup
	feeds       []Feed
	items       []Item
	unreadIDs   string
	savedIDs    string
	marks       []string
}

func (f *fakeFever) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{"api_version": 3, "auth": 0}
		if r.PostFormValue("api_key") == f.apiKey {
			resp["auth"] = 1

			query := r.URL.Query()
			if query.Has("groups") {
				resp["groups"] = f.groups
				resp["feeds_groups"] = f.feedsGroups
			}
			if query.Has("feeds") {
				resp["feeds"] = f.feeds
			}
			if query.Has("unread_item_ids") {
				resp["unread_item_ids"] = f.unreadIDs
			}
			if query.Has("saved_item_ids") {
				resp["saved_item_ids"] = f.savedIDs
			}
			if query.Has("items") {
				sinceID, _ := strconv.ParseInt(query.Get("since_id"), 10, 64)
				var page []Item
				for _, item := range f.items {
					if item.ID > sinceID {
						page = append(page, item)
					}
				}
				resp["items"] = page
				resp["total_items"] = len(f.items)
			}
			if query.Get("mark") == "item" {
				f.marks = append(f.marks, query.Get("as")+":"+query.Get("id"))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type feverEnv struct {
	engine   *Engine
	feeds    *store.FeedStore
	folders  *store.FolderStore
	articles *store.ArticleStore
	meta     *store.MetaStore
	fake     *fakeFever
}

func newFeverEnv(t *testing.T, fake *fakeFever) *feverEnv {
	t.Helper()

	sum := md5.Sum([]byte("user:pass"))
	fake.apiKey = hex.EncodeToString(sum[:])

	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	logger := core.NewTestLogger()
	db, err := core.OpenDatabase(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := core.NewMigrationService(db, logger).Migrate(context.Background(), migrations.All()); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	feeds := store.NewFeedStore(db, logger)
	folders := store.NewFolderStore(db, logger)
	articles := store.NewArticleStore(db, logger)
	rules := store.NewRuleStore(db, logger)
	meta := store.NewMetaStore(db)
	merger := merge.NewEngine(db, articles, rules, logger)

	client := NewClient(&core.FeverConfig{
		Endpoint: server.URL,
		Username: "user",
		Password: "pass",
	}, logger)

	return &feverEnv{
		engine:   NewEngine(client, feeds, folders, articles, merger, meta, logger),
		feeds:    feeds,
		folders:  folders,
		articles: articles,
		meta:     meta,
		fake:     fake,
	}
}

func TestSyncPipeline(t *testing.T) {
	fake := &fakeFever{
		groups:      []Group{{ID: 5, Title: "Tech"}},
		feedsGroups: []FeedsGroup{{GroupID: 5, FeedIDs: "7"}},
		feeds:       []Feed{{ID: 7, Title: "Example", URL: "https://example.com/rss", SiteURL: "https://example.com"}},
		items: []Item{
			{ID: 1, FeedID: 7, Title: "First", URL: "https://example.com/1", HTML: "<p>one</p>", IsRead: 1, CreatedOnTime: 1700000000},
			{ID: 2, FeedID: 7, Title: "Second", URL: "https://example.com/2", HTML: "<p>two</p>", CreatedOnTime: 1700000100},
		},
		unreadIDs: "2",
		savedIDs:  "1",
	}
	env := newFeverEnv(t, fake)
	ctx := context.Background()

	if err := env.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// The group arrives as a folder under its deterministic id
	folder, err := env.folders.GetByID(ctx, "fever-5")
	if err != nil {
		t.Fatalf("Expected group folder: %v", err)
	}
	if folder.Name != "Tech" {
		t.Errorf("Expected folder name Tech, got %q", folder.Name)
	}

	// The remote feed arrives under its remote id, filed into the folder
	feed, err := env.feeds.GetByID(ctx, "7")
	if err != nil {
		t.Fatalf("Expected remote feed: %v", err)
	}
	if feed.FolderID == nil || *feed.FolderID != "fever-5" {
		t.Error("Expected feed filed into the group folder")
	}

	// Both items were ingested with their remote identity
	list, err := env.articles.List(ctx, &models.ArticleListParams{Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(list))
	}
	for _, article := range list {
		if article.RemoteID == "" {
			t.Error("Expected remote id on ingested article")
		}
	}

	// Item flags carried over from the payload
	byRemote := map[string]models.Article{}
	for _, article := range list {
		byRemote[article.RemoteID] = article
	}
	if !byRemote["1"].IsRead {
		t.Error("Expected item 1 ingested read")
	}
	if byRemote["2"].IsRead {
		t.Error("Expected item 2 ingested unread")
	}

	// The item cursor advanced to the newest id
	cursor, err := env.meta.Get(ctx, store.MetaKeyFeverMaxID)
	if err != nil {
		t.Fatalf("Failed to read cursor: %v", err)
	}
	if cursor != "2" {
		t.Errorf("Expected cursor 2, got %q", cursor)
	}

	// A second pass is idempotent
	if err := env.engine.Sync(ctx); err != nil {
		t.Fatalf("Re-sync failed: %v", err)
	}
	list, _ = env.articles.List(ctx, &models.ArticleListParams{Limit: 10})
	if len(list) != 2 {
		t.Errorf("Expected no duplicates after re-sync, got %d articles", len(list))
	}
}

func TestReadOverlayOnLaterSync(t *testing.T) {
	fake := &fakeFever{
		feeds: []Feed{{ID: 7, Title: "Example", URL: "https://example.com/rss"}},
		items: []Item{
			{ID: 1, FeedID: 7, Title: "First", URL: "https://example.com/1", CreatedOnTime: 1700000000},
			{ID: 2, FeedID: 7, Title: "Second", URL: "https://example.com/2", CreatedOnTime: 1700000100},
		},
		unreadIDs: "1,2",
		savedIDs:  "",
	}
	env := newFeverEnv(t, fake)
	ctx := context.Background()

	if err := env.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// The article was read on another device: it disappears from the
	// remote unread list and gains a saved mark
	fake.unreadIDs = "2"
	fake.savedIDs = "1"

	if err := env.engine.Sync(ctx); err != nil {
		t.Fatalf("Re-sync failed: %v", err)
	}

	list, err := env.articles.List(ctx, &models.ArticleListParams{Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	byRemote := map[string]models.Article{}
	for _, article := range list {
		byRemote[article.RemoteID] = article
	}

	if !byRemote["1"].IsRead {
		t.Error("Expected item absent from the unread list to be marked read")
	}
	if !byRemote["1"].IsStarred {
		t.Error("Expected saved item to be marked starred")
	}
	if byRemote["2"].IsRead {
		t.Error("Expected item still on the unread list to stay unread")
	}
}

func TestURLCollisionMigratesFeed(t *testing.T) {
	fake := &fakeFever{
		feeds: []Feed{{ID: 7, Title: "Example", URL: "https://example.com/rss"}},
	}
	env := newFeverEnv(t, fake)
	ctx := context.Background()

	// The user already subscribed to the same URL locally
	local, err := env.feeds.Create(ctx, &models.FeedCreate{
		Title: "Local copy",
		URL:   "https://example.com/rss",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := env.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if _, err := env.feeds.GetByID(ctx, local.ID); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Error("Expected the local id to be migrated away")
	}

	migrated, err := env.feeds.GetByID(ctx, "7")
	if err != nil {
		t.Fatalf("Expected feed under the remote id: %v", err)
	}
	if migrated.URL != "https://example.com/rss" {
		t.Errorf("Expected URL preserved, got %q", migrated.URL)
	}
	if migrated.Title != "Example" {
		t.Errorf("Expected remote title applied, got %q", migrated.Title)
	}
}

func TestMarkMutations(t *testing.T) {
	fake := &fakeFever{}
	env := newFeverEnv(t, fake)
	ctx := context.Background()

	if err := env.engine.MarkRead(ctx, "42", true); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if err := env.engine.MarkSaved(ctx, "42", true); err != nil {
		t.Fatalf("MarkSaved failed: %v", err)
	}
	if err := env.engine.MarkRead(ctx, "42", false); err != nil {
		t.Fatalf("MarkRead(false) failed: %v", err)
	}

	expected := []string{"read:42", "saved:42", "unread:42"}
	if len(fake.marks) != len(expected) {
		t.Fatalf("Expected %d marks, got %v", len(expected), fake.marks)
	}
	for i, mark := range expected {
		if fake.marks[i] != mark {
			t.Errorf("Expected mark %q, got %q", mark, fake.marks[i])
		}
	}

	if err := env.engine.MarkRead(ctx, "not-a-number", true); !core.IsCode(err, core.ErrCodeValidation) {
		t.Error("Expected a validation error for a non-numeric id")
	}
}

func TestAuthRejection(t *testing.T) {
	fake := &fakeFever{}
	env := newFeverEnv(t, fake)

	// Break the key after construction so every call is rejected
	fake.apiKey = "different"

	err := env.engine.Sync(context.Background())
	if !core.IsCode(err, core.ErrCodeAuth) {
		t.Errorf("Expected auth error, got %v", err)
	}
}

func TestFeedToGroupMappingFirstWins(t *testing.T) {
	mapping := feedToGroupMapping([]FeedsGroup{
		{GroupID: 1, FeedIDs: "10,11"},
		{GroupID: 2, FeedIDs: "11, 12, junk"},
	})

	if mapping[10] != 1 || mapping[12] != 2 {
		t.Errorf("Unexpected mapping %v", mapping)
	}
	if mapping[11] != 1 {
		t.Errorf("Expected the first group to win for feed 11, got %d", mapping[11])
	}
	if _, ok := mapping[0]; ok {
		t.Error("Expected unparseable ids to be skipped")
	}
}
