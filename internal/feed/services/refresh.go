package services

import (
	"context"
	"sync"
	"time"

	"skiff/internal/core"
	"skiff/internal/feed/merge"
	"skiff/internal/feed/models"
	"skiff/internal/feed/normalize"
	"skiff/internal/feed/store"
)

// RefreshService runs the per-feed ingestion pipeline: fetch, normalize,
// merge. The same pipeline serves first subscription and periodic refresh.
type RefreshService struct {
	fetcher    *Fetcher
	normalizer *normalize.Normalizer
	engine     *merge.Engine
	feeds      *store.FeedStore
	logger     *core.Logger
	config     *core.FetcherConfig

	// Refreshes of the same feed are serialized so no two merges race on
	// shared article ids
	locksMu   sync.Mutex
	feedLocks map[string]*sync.Mutex

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	fetcher *Fetcher,
	normalizer *normalize.Normalizer,
	engine *merge.Engine,
	feeds *store.FeedStore,
	logger *core.Logger,
	config *core.FetcherConfig,
) *RefreshService {
	return &RefreshService{
		fetcher:    fetcher,
		normalizer: normalizer,
		engine:     engine,
		feeds:      feeds,
		logger:     logger.ForComponent("refresh"),
		config:     config,
		feedLocks:  make(map[string]*sync.Mutex),
		stopChan:   make(chan struct{}),
	}
}

// Subscribe adds a new feed and runs the ingestion pipeline once to fill
// in discovered metadata and the initial article batch
func (s *RefreshService) Subscribe(ctx context.Context, url string, folderID *string) (*models.Feed, error) {
	if existing, err := s.feeds.GetByURL(ctx, url); err == nil {
		return existing, nil
	}

	result, err := s.fetcher.Fetch(ctx, url, "", "")
	if err != nil {
		return nil, err
	}

	parsed, err := s.normalizer.Parse(result.Body, url)
	if err != nil {
		return nil, err
	}

	feed, err := s.feeds.Create(ctx, &models.FeedCreate{
		Title:    parsed.Title,
		URL:      url,
		SiteURL:  parsed.SiteURL,
		Kind:     parsed.Kind,
		FolderID: folderID,
		IconURL:  parsed.IconURL,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.Merge(ctx, feed.ID, parsed.Articles); err != nil {
		return nil, err
	}

	if err := s.feeds.RecordSuccess(ctx, feed.ID, result.ETag, result.LastModified); err != nil {
		s.logger.Error("Failed to record initial fetch", "feed_id", feed.ID, "error", err)
	}

	return s.feeds.GetByID(ctx, feed.ID)
}

// RefreshFeed fetches and merges a single feed. Returns the count of new
// articles. Fetch and parse failures are recorded on the feed in place;
// the feed itself is never removed because of them.
func (s *RefreshService) RefreshFeed(ctx context.Context, feed *models.Feed) (int, error) {
	lock := s.lockFor(feed.ID)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.fetcher.Fetch(ctx, feed.URL, feed.ETag, feed.LastModified)
	if err != nil {
		if recordErr := s.feeds.RecordFailure(ctx, feed.ID, err); recordErr != nil {
			s.logger.Error("Failed to record fetch failure", "feed_id", feed.ID, "error", recordErr)
		}
		return 0, err
	}

	if result.NotModified {
		if err := s.feeds.RecordSuccess(ctx, feed.ID, result.ETag, result.LastModified); err != nil {
			s.logger.Error("Failed to record fetch success", "feed_id", feed.ID, "error", err)
		}
		return 0, nil
	}

	parsed, err := s.normalizer.Parse(result.Body, feed.URL)
	if err != nil {
		if recordErr := s.feeds.RecordFailure(ctx, feed.ID, err); recordErr != nil {
			s.logger.Error("Failed to record parse failure", "feed_id", feed.ID, "error", recordErr)
		}
		return 0, err
	}

	added, err := s.engine.Merge(ctx, feed.ID, parsed.Articles)
	if err != nil {
		return 0, err
	}

	s.updateDiscoveredMetadata(ctx, feed, parsed)

	if err := s.feeds.RecordSuccess(ctx, feed.ID, result.ETag, result.LastModified); err != nil {
		s.logger.Error("Failed to record fetch success", "feed_id", feed.ID, "error", err)
	}

	return added, nil
}

// RefreshFeedByID fetches and merges a single feed by id
func (s *RefreshService) RefreshFeedByID(ctx context.Context, feedID string) (int, error) {
	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return 0, err
	}
	return s.RefreshFeed(ctx, feed)
}

// RefreshAll refreshes every non-paused feed through a bounded worker
// pool. One failing feed never aborts the cycle.
func (s *RefreshService) RefreshAll(ctx context.Context) {
	feeds, err := s.feeds.ListRefreshable(ctx)
	if err != nil {
		s.logger.Error("Failed to list feeds for refresh", "error", err)
		return
	}

	if len(feeds) == 0 {
		return
	}

	s.logger.Info("Starting refresh cycle", "feeds", len(feeds))

	feedChan := make(chan *models.Feed, len(feeds))
	var wg sync.WaitGroup

	for i := 0; i < s.config.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range feedChan {
				if _, err := s.RefreshFeed(ctx, feed); err != nil {
					s.logger.Error("Feed refresh failed", "feed_id", feed.ID, "url", feed.URL, "error", err)
				}
			}
		}()
	}

	for i := range feeds {
		feedChan <- &feeds[i]
	}
	close(feedChan)

	wg.Wait()
	s.logger.Info("Refresh cycle completed")
}

// Start begins the periodic refresh loop
func (s *RefreshService) Start(ctx context.Context) {
	s.logger.Info("Starting refresh scheduler", "interval", s.config.RefreshInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.RefreshInterval)
		defer ticker.Stop()

		s.RefreshAll(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.RefreshAll(ctx)
			}
		}
	}()
}

// Stop gracefully stops the refresh loop
func (s *RefreshService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// updateDiscoveredMetadata fills in feed fields learned from the payload
func (s *RefreshService) updateDiscoveredMetadata(ctx context.Context, feed *models.Feed, parsed *models.ParsedFeed) {
	update := &models.FeedUpdate{}
	dirty := false

	if parsed.Title != "" && feed.Title == "" {
		update.Title = &parsed.Title
		dirty = true
	}
	if parsed.SiteURL != "" && feed.SiteURL == "" {
		update.SiteURL = &parsed.SiteURL
		dirty = true
	}
	if parsed.IconURL != "" && feed.IconURL == "" {
		update.IconURL = &parsed.IconURL
		dirty = true
	}

	if !dirty {
		return
	}

	if _, err := s.feeds.Update(ctx, feed.ID, update); err != nil {
		s.logger.Error("Failed to update feed metadata", "feed_id", feed.ID, "error", err)
	}
}

func (s *RefreshService) lockFor(feedID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.feedLocks[feedID]
	if !ok {
		lock = &sync.Mutex{}
		s.feedLocks[feedID] = lock
	}
	return lock
}
