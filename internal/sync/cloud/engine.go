package cloud

import (
	"context"
	"sync"
	"time"

	"skiff/internal/core"
	"skiff/internal/feed/models"
	"skiff/internal/feed/store"
)

// Engine synchronizes subscriptions, folders and article state with a
// cloud backend. Local mutations are enqueued and drained; remote changes
// are pulled from a modified-since cursor and merged under the read and
// playback monotonicity rules.
type Engine struct {
	config      *core.CloudSyncConfig
	backend     Backend
	coordinator *Coordinator
	queue       *QueueStore
	feeds       *store.FeedStore
	folders     *store.FolderStore
	articles    *store.ArticleStore
	meta        *store.MetaStore
	logger      *core.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEngine creates a cloud sync engine
func NewEngine(
	config *core.CloudSyncConfig,
	backend Backend,
	coordinator *Coordinator,
	queue *QueueStore,
	feeds *store.FeedStore,
	folders *store.FolderStore,
	articles *store.ArticleStore,
	meta *store.MetaStore,
	logger *core.Logger,
) *Engine {
	return &Engine{
		config:      config,
		backend:     backend,
		coordinator: coordinator,
		queue:       queue,
		feeds:       feeds,
		folders:     folders,
		articles:    articles,
		meta:        meta,
		logger:      logger.ForComponent("cloud-sync"),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the periodic incremental sync loop
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting cloud sync loop", "interval", e.config.Interval)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if e.config.SyncOnStartup {
			if err := e.FullSync(ctx); err != nil {
				e.logger.Error("Startup sync failed", "error", err)
			}
		}

		ticker := time.NewTicker(e.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := e.IncrementalSync(ctx); err != nil {
					e.logger.Error("Incremental sync failed", "error", err)
				}
			case <-e.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the sync loop and waits for an in-flight pass to finish
func (e *Engine) Stop() {
	close(e.stopChan)
	e.wg.Wait()
	e.logger.Info("Cloud sync loop stopped")
}

// FullSync pushes a complete local snapshot, drains the queue and pulls
// every remote record. Used on first connect and for manual resyncs. A
// concurrent trigger is absorbed by the in-flight pass.
func (e *Engine) FullSync(ctx context.Context) error {
	if !e.coordinator.TryBegin() {
		e.logger.Debug("Sync already in flight, trigger absorbed")
		return nil
	}

	err := e.runFull(ctx)
	e.coordinator.Finish(err)
	return err
}

// IncrementalSync drains the outbound queue and pulls remote changes newer
// than the stored cursor. A concurrent trigger is absorbed by the
// in-flight pass.
func (e *Engine) IncrementalSync(ctx context.Context) error {
	if !e.coordinator.TryBegin() {
		e.logger.Debug("Sync already in flight, trigger absorbed")
		return nil
	}

	err := e.runIncremental(ctx)
	e.coordinator.Finish(err)
	return err
}

func (e *Engine) runFull(ctx context.Context) error {
	start := time.Now()

	if err := e.pushSnapshot(ctx); err != nil {
		return err
	}
	if err := e.drainQueue(ctx); err != nil {
		return err
	}
	if err := e.pull(ctx, time.Time{}); err != nil {
		return err
	}

	e.logger.Info("Full sync completed", "duration", time.Since(start))
	return nil
}

func (e *Engine) runIncremental(ctx context.Context) error {
	since, err := e.meta.GetTime(ctx, store.MetaKeyCloudCursor)
	if err != nil {
		return err
	}

	if err := e.drainQueue(ctx); err != nil {
		return err
	}
	return e.pull(ctx, since)
}

// pushSnapshot uploads every folder, feed and non-default article state
func (e *Engine) pushSnapshot(ctx context.Context) error {
	folders, err := e.folders.List(ctx)
	if err != nil {
		return err
	}
	for _, folder := range folders {
		if err := e.backend.UpsertFolder(ctx, folderToRecord(&folder)); err != nil {
			return err
		}
	}

	feeds, err := e.feeds.List(ctx)
	if err != nil {
		return err
	}
	for _, feed := range feeds {
		if err := e.backend.UpsertFeed(ctx, feedToRecord(&feed)); err != nil {
			return err
		}
	}

	states, err := e.articles.ListStates(ctx)
	if err != nil {
		return err
	}
	for _, state := range states {
		if err := e.backend.UpsertArticleState(ctx, stateToRecord(&state)); err != nil {
			return err
		}
	}

	e.logger.Info("Pushed local snapshot",
		"folders", len(folders), "feeds", len(feeds), "article_states", len(states))
	return nil
}

// drainQueue delivers pending ops in enqueue order. Delivery stops at the
// first failure so later ops never overtake earlier ones; the failed item
// stays queued with a bumped attempt counter.
func (e *Engine) drainQueue(ctx context.Context) error {
	for {
		items, err := e.queue.NextBatch(ctx, e.config.QueueBatch)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		for _, item := range items {
			if err := e.deliver(ctx, item.Op); err != nil {
				if markErr := e.queue.MarkFailed(ctx, item); markErr != nil {
					e.logger.Error("Failed to record queue failure", "error", markErr)
				}
				return err
			}
			if err := e.queue.Delete(ctx, item.ID); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) deliver(ctx context.Context, op QueueOp) error {
	switch op := op.(type) {
	case FolderOp:
		return e.backend.UpsertFolder(ctx, op.Record)
	case FeedOp:
		return e.backend.UpsertFeed(ctx, op.Record)
	case ArticleStateOp:
		return e.backend.UpsertArticleState(ctx, op.Record)
	default:
		return core.NewInternalError("unknown queue op type", nil)
	}
}

// pull fetches remote records changed after since and merges them. The
// cursor advances to the newest record seen only after every table merged
// cleanly.
func (e *Engine) pull(ctx context.Context, since time.Time) error {
	cursor := since

	remoteFolders, err := e.backend.FoldersSince(ctx, since)
	if err != nil {
		return err
	}
	for _, record := range remoteFolders {
		if err := e.mergeFolder(ctx, record); err != nil {
			return err
		}
		cursor = laterOf(cursor, record.UpdatedAt)
	}

	remoteFeeds, err := e.backend.FeedsSince(ctx, since)
	if err != nil {
		return err
	}
	for _, record := range remoteFeeds {
		if err := e.mergeFeed(ctx, record); err != nil {
			return err
		}
		cursor = laterOf(cursor, record.UpdatedAt)
	}

	remoteStates, err := e.backend.ArticleStatesSince(ctx, since)
	if err != nil {
		return err
	}
	for _, record := range remoteStates {
		if record.DeletedAt != nil {
			continue
		}
		state := &models.ArticleState{
			Link:             record.Link,
			IsRead:           record.IsRead,
			IsStarred:        record.IsStarred,
			PlaybackPosition: record.PlaybackPosition,
		}
		if err := e.articles.ApplyRemoteState(ctx, state); err != nil {
			return err
		}
		cursor = laterOf(cursor, record.UpdatedAt)
	}

	if cursor.After(since) {
		if err := e.meta.SetTime(ctx, store.MetaKeyCloudCursor, cursor); err != nil {
			return err
		}
	}

	e.logger.Info("Pulled remote changes",
		"folders", len(remoteFolders), "feeds", len(remoteFeeds), "article_states", len(remoteStates))
	return nil
}

func (e *Engine) mergeFolder(ctx context.Context, record FolderRecord) error {
	if record.DeletedAt != nil {
		if err := e.folders.Delete(ctx, record.ID); err != nil && !core.IsCode(err, core.ErrCodeNotFound) {
			return err
		}
		return nil
	}
	return e.folders.ReconcileRemote(ctx, record.ID, record.Name, record.Position)
}

// mergeFeed applies a remote feed record. A URL match with a different id
// keeps the local id so two devices that subscribed independently do not
// migrate ids back and forth on every pass.
func (e *Engine) mergeFeed(ctx context.Context, record FeedRecord) error {
	if record.DeletedAt != nil {
		if err := e.feeds.Delete(ctx, record.ID); err != nil && !core.IsCode(err, core.ErrCodeNotFound) {
			return err
		}
		return nil
	}

	update := &models.FeedUpdate{
		Title:     &record.Title,
		SiteURL:   &record.SiteURL,
		SortOrder: &record.SortOrder,
	}
	if record.FolderID != nil {
		update.FolderID = record.FolderID
	} else {
		empty := ""
		update.FolderID = &empty
	}

	existing, err := e.feeds.GetByID(ctx, record.ID)
	if err != nil && !core.IsCode(err, core.ErrCodeNotFound) {
		return err
	}
	if existing == nil {
		existing, err = e.feeds.GetByURL(ctx, record.URL)
		if err != nil && !core.IsCode(err, core.ErrCodeNotFound) {
			return err
		}
	}
	if existing != nil {
		_, err := e.feeds.Update(ctx, existing.ID, update)
		return err
	}

	_, err = e.feeds.CreateWithID(ctx, record.ID, &models.FeedCreate{
		Title:     record.Title,
		URL:       record.URL,
		SiteURL:   record.SiteURL,
		Kind:      models.FeedKind(record.Kind),
		FolderID:  record.FolderID,
		SortOrder: record.SortOrder,
	})
	return err
}

// NoteFolderChanged enqueues a folder upsert for the next drain
func (e *Engine) NoteFolderChanged(ctx context.Context, folder *models.Folder) error {
	return e.queue.Enqueue(ctx, FolderOp{Record: folderToRecord(folder)})
}

// NoteFolderDeleted enqueues a folder tombstone
func (e *Engine) NoteFolderDeleted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return e.queue.Enqueue(ctx, FolderOp{Record: FolderRecord{
		ID:        id,
		UpdatedAt: now,
		DeletedAt: &now,
	}})
}

// NoteFeedChanged enqueues a feed upsert for the next drain
func (e *Engine) NoteFeedChanged(ctx context.Context, feed *models.Feed) error {
	return e.queue.Enqueue(ctx, FeedOp{Record: feedToRecord(feed)})
}

// NoteFeedDeleted enqueues a feed tombstone
func (e *Engine) NoteFeedDeleted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return e.queue.Enqueue(ctx, FeedOp{Record: FeedRecord{
		ID:        id,
		UpdatedAt: now,
		DeletedAt: &now,
	}})
}

// NoteArticleState enqueues the article's current user state. Articles
// with only default state are skipped; there is nothing to reconcile.
func (e *Engine) NoteArticleState(ctx context.Context, article *models.Article) error {
	if !article.HasNonDefaultState() {
		return nil
	}
	state := models.ArticleState{
		Link:             article.Link,
		IsRead:           article.IsRead,
		IsStarred:        article.IsStarred,
		PlaybackPosition: article.PlaybackPosition,
	}
	return e.queue.Enqueue(ctx, ArticleStateOp{Record: stateToRecord(&state)})
}

func folderToRecord(folder *models.Folder) FolderRecord {
	return FolderRecord{
		ID:        folder.ID,
		Name:      folder.Name,
		Position:  folder.Position,
		UpdatedAt: time.Now().UTC(),
	}
}

func feedToRecord(feed *models.Feed) FeedRecord {
	return FeedRecord{
		ID:        feed.ID,
		Title:     feed.Title,
		URL:       feed.URL,
		SiteURL:   feed.SiteURL,
		Kind:      string(feed.Kind),
		FolderID:  feed.FolderID,
		SortOrder: feed.SortOrder,
		UpdatedAt: time.Now().UTC(),
	}
}

func stateToRecord(state *models.ArticleState) ArticleStateRecord {
	return ArticleStateRecord{
		Link:             state.Link,
		IsRead:           state.IsRead,
		IsStarred:        state.IsStarred,
		PlaybackPosition: state.PlaybackPosition,
		UpdatedAt:        time.Now().UTC(),
	}
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
