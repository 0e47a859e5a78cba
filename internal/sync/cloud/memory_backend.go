package cloud

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps sync records in process memory. It backs tests and
// local development where no sync server is available.
type MemoryBackend struct {
	mu            sync.Mutex
	folders       map[string]FolderRecord
	feeds         map[string]FeedRecord
	articleStates map[string]ArticleStateRecord
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		folders:       make(map[string]FolderRecord),
		feeds:         make(map[string]FeedRecord),
		articleStates: make(map[string]ArticleStateRecord),
	}
}

// UpsertFolder implements Backend
func (b *MemoryBackend) UpsertFolder(ctx context.Context, record FolderRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	record.UpdatedAt = time.Now().UTC()
	b.folders[record.ID] = record
	return nil
}

// FoldersSince implements Backend
func (b *MemoryBackend) FoldersSince(ctx context.Context, since time.Time) ([]FolderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var records []FolderRecord
	for _, record := range b.folders {
		if record.UpdatedAt.After(since) {
			records = append(records, record)
		}
	}
	return records, nil
}

// UpsertFeed implements Backend
func (b *MemoryBackend) UpsertFeed(ctx context.Context, record FeedRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	record.UpdatedAt = time.Now().UTC()
	b.feeds[record.ID] = record
	return nil
}

// FeedsSince implements Backend
func (b *MemoryBackend) FeedsSince(ctx context.Context, since time.Time) ([]FeedRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var records []FeedRecord
	for _, record := range b.feeds {
		if record.UpdatedAt.After(since) {
			records = append(records, record)
		}
	}
	return records, nil
}

// UpsertArticleState implements Backend. States are keyed by article link
// because article ids are derived from the subscription URL and do not
// travel across devices.
func (b *MemoryBackend) UpsertArticleState(ctx context.Context, record ArticleStateRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.articleStates[record.Link]; ok {
		record.IsRead = record.IsRead || existing.IsRead
		record.IsStarred = record.IsStarred || existing.IsStarred
		if existing.PlaybackPosition > record.PlaybackPosition {
			record.PlaybackPosition = existing.PlaybackPosition
		}
	}
	record.UpdatedAt = time.Now().UTC()
	b.articleStates[record.Link] = record
	return nil
}

// ArticleStatesSince implements Backend
func (b *MemoryBackend) ArticleStatesSince(ctx context.Context, since time.Time) ([]ArticleStateRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var records []ArticleStateRecord
	for _, record := range b.articleStates {
		if record.UpdatedAt.After(since) {
			records = append(records, record)
		}
	}
	return records, nil
}
