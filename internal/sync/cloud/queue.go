package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"skiff/internal/core"
)

// Op kinds stored in the sync_queue table
const (
	OpKindFolder       = "folder"
	OpKindFeed         = "feed"
	OpKindArticleState = "article_state"
)

// stallThreshold is the attempt count past which a queue item is flagged
// as stalled in the log. Items are never dropped; they stay queued until
// the backend accepts them.
const stallThreshold = 5

// QueueOp is a pending outbound mutation. The concrete types are closed:
// FolderOp, FeedOp and ArticleStateOp are the only implementations.
type QueueOp interface {
	opKind() string
}

// FolderOp carries a folder upsert or tombstone
type FolderOp struct {
	Record FolderRecord `json:"record"`
}

func (FolderOp) opKind() string { return OpKindFolder }

// FeedOp carries a feed upsert or tombstone
type FeedOp struct {
	Record FeedRecord `json:"record"`
}

func (FeedOp) opKind() string { return OpKindFeed }

// ArticleStateOp carries an article state upsert
type ArticleStateOp struct {
	Record ArticleStateRecord `json:"record"`
}

func (ArticleStateOp) opKind() string { return OpKindArticleState }

// QueueItem is a persisted op together with its delivery bookkeeping
type QueueItem struct {
	ID        string
	Op        QueueOp
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueStore persists outbound sync ops so mutations made while offline
// survive restarts and are replayed in order
type QueueStore struct {
	db     *core.Database
	logger *core.Logger
}

// NewQueueStore creates a queue store
func NewQueueStore(db *core.Database, logger *core.Logger) *QueueStore {
	return &QueueStore{
		db:     db,
		logger: logger.ForComponent("sync-queue"),
	}
}

// Enqueue appends an op to the queue
func (s *QueueStore) Enqueue(ctx context.Context, op QueueOp) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return core.NewInternalError("failed to encode queue op", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecWithTimeout(ctx, `
		INSERT INTO sync_queue (id, op_kind, payload, attempts, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, uuid.NewString(), op.opKind(), string(payload), now, now)
	if err != nil {
		return core.NewDatabaseError("failed to enqueue sync op", err)
	}
	return nil
}

// NextBatch returns up to limit items in enqueue order
func (s *QueueStore) NextBatch(ctx context.Context, limit int) ([]QueueItem, error) {
	rows, err := s.db.QueryWithTimeout(ctx, `
		SELECT id, op_kind, payload, attempts, created_at, updated_at
		FROM sync_queue
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, core.NewDatabaseError("failed to read sync queue", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var item QueueItem
		var opKind, payload string
		if err := rows.Scan(&item.ID, &opKind, &payload, &item.Attempts, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, core.NewDatabaseError("failed to scan queue item", err)
		}

		op, err := decodeOp(opKind, payload)
		if err != nil {
			return nil, err
		}
		item.Op = op
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewDatabaseError("failed to iterate sync queue", err)
	}
	return items, nil
}

// Delete removes a delivered item
func (s *QueueStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecWithTimeout(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return core.NewDatabaseError("failed to delete queue item", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter after a failed delivery. The item
// stays queued for the next drain.
func (s *QueueStore) MarkFailed(ctx context.Context, item QueueItem) error {
	attempts := item.Attempts + 1
	_, err := s.db.ExecWithTimeout(ctx, `
		UPDATE sync_queue SET attempts = ?, updated_at = ? WHERE id = ?
	`, attempts, time.Now().UTC(), item.ID)
	if err != nil {
		return core.NewDatabaseError("failed to update queue item", err)
	}

	if attempts >= stallThreshold {
		s.logger.Warn("sync queue item is stalled",
			"item_id", item.ID,
			"op_kind", item.Op.opKind(),
			"attempts", attempts,
			"queued_at", item.CreatedAt,
			"error_code", core.ErrCodeQueueStall)
	}
	return nil
}

// Len returns the number of pending items
func (s *QueueStore) Len(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowWithTimeout(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&count)
	if err != nil {
		return 0, core.NewDatabaseError("failed to count sync queue", err)
	}
	return count, nil
}

func decodeOp(opKind, payload string) (QueueOp, error) {
	switch opKind {
	case OpKindFolder:
		var op FolderOp
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			return nil, core.NewInternalError("failed to decode folder op", err)
		}
		return op, nil
	case OpKindFeed:
		var op FeedOp
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			return nil, core.NewInternalError("failed to decode feed op", err)
		}
		return op, nil
	case OpKindArticleState:
		var op ArticleStateOp
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			return nil, core.NewInternalError("failed to decode article state op", err)
		}
		return op, nil
	default:
		return nil, core.NewInternalError(fmt.Sprintf("unknown queue op kind: %s", opKind), nil)
	}
}
