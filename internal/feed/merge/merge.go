// Package merge reconciles freshly normalized article batches against
// stored state. Ingestion may add information but never regress user
// intent: read/starred flags only move false to true here, and playback,
// download and pre-fetch markers are carried forward verbatim.
package merge

import (
	"context"
	"database/sql"
	"time"

	"skiff/internal/core"
	"skiff/internal/feed/models"
	"skiff/internal/feed/store"
)

// Engine is the article merge engine
type Engine struct {
	db       *core.Database
	articles *store.ArticleStore
	rules    *store.RuleStore
	logger   *core.Logger
}

// NewEngine creates a new merge engine
func NewEngine(db *core.Database, articles *store.ArticleStore, rules *store.RuleStore, logger *core.Logger) *Engine {
	return &Engine{
		db:       db,
		articles: articles,
		rules:    rules,
		logger:   logger.ForComponent("merge"),
	}
}

// Merge reconciles a normalized batch for one feed and returns the count
// of genuinely new articles. The whole batch is applied in one
// transaction; on failure the prior state is left fully intact.
func (e *Engine) Merge(ctx context.Context, feedID string, batch []models.ParsedArticle) (int, error) {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return 0, err
	}

	batch = applyRules(rules, feedID, batch)
	batch = dedupeBatch(batch)

	// An empty post-rule batch is a valid no-op
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}

	inserted := 0
	updated := 0

	err = e.db.Transaction(ctx, func(tx *sql.Tx) error {
		existing, err := e.articles.GetByIDsTx(ctx, tx, ids)
		if err != nil {
			return err
		}

		for i := range batch {
			incoming := &batch[i]

			current, found := existing[incoming.ID]
			if !found {
				article := articleFromParsed(feedID, incoming)
				if err := e.articles.InsertTx(ctx, tx, article); err != nil {
					return err
				}
				for _, tag := range incoming.Tags {
					if err := e.articles.AddTagTx(ctx, tx, article.ID, tag); err != nil {
						return err
					}
				}
				inserted++
				continue
			}

			if !contentChanged(current, incoming) {
				continue
			}

			merged := mergeInto(current, incoming)
			if err := e.articles.UpdateContentTx(ctx, tx, merged); err != nil {
				return err
			}
			for _, tag := range incoming.Tags {
				if err := e.articles.AddTagTx(ctx, tx, merged.ID, tag); err != nil {
					return err
				}
			}
			updated++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if inserted > 0 || updated > 0 {
		e.logger.Info("Merged article batch", "feed_id", feedID,
			"batch", len(batch), "inserted", inserted, "updated", updated)
	}

	return inserted, nil
}

// applyRules runs the active automation rules over a batch. Each article
// is evaluated independently; delete drops the article before storage.
func applyRules(rules []models.FilterRule, feedID string, batch []models.ParsedArticle) []models.ParsedArticle {
	if len(rules) == 0 {
		return batch
	}

	kept := make([]models.ParsedArticle, 0, len(batch))

	for i := range batch {
		article := batch[i]
		deleted := false

		for j := range rules {
			rule := &rules[j]
			if !rule.Matches(&article, feedID) {
				continue
			}

			switch rule.Action {
			case models.RuleActionMarkRead:
				article.IsRead = true
			case models.RuleActionStar:
				article.IsStarred = true
			case models.RuleActionDelete:
				deleted = true
			case models.RuleActionTag:
				article.Tags = append(article.Tags, rule.TagValue)
			}

			if deleted {
				break
			}
		}

		if !deleted {
			kept = append(kept, article)
		}
	}

	return kept
}

// dedupeBatch drops in-batch duplicates by id, keeping the first
// occurrence. Feeds occasionally repeat an entry within one payload.
func dedupeBatch(batch []models.ParsedArticle) []models.ParsedArticle {
	seen := make(map[string]bool, len(batch))
	result := batch[:0]

	for i := range batch {
		if seen[batch[i].ID] {
			continue
		}
		seen[batch[i].ID] = true
		result = append(result, batch[i])
	}

	return result
}

// contentChanged reports whether any of the re-fetched mutable fields
// differ from the stored record
func contentChanged(current *models.Article, incoming *models.ParsedArticle) bool {
	return current.Title != incoming.Title ||
		current.Summary != incoming.Summary ||
		current.Content != incoming.Content ||
		current.Link != incoming.Link
}

// mergeInto builds the update row for an existing article. Read and
// starred flags merge by logical OR; playback position, download state and
// the pre-fetch marker keep their stored values untouched.
func mergeInto(current *models.Article, incoming *models.ParsedArticle) *models.Article {
	merged := *current
	merged.Title = incoming.Title
	merged.Link = incoming.Link
	merged.Summary = incoming.Summary
	merged.Content = incoming.Content
	merged.Author = incoming.Author
	merged.PublishedAt = incoming.PublishedAt
	merged.IsRead = current.IsRead || incoming.IsRead
	merged.IsStarred = current.IsStarred || incoming.IsStarred
	merged.MediaKind = incoming.MediaKind
	merged.EnclosureURL = incoming.EnclosureURL
	merged.EnclosureType = incoming.EnclosureType
	merged.ThumbnailURL = incoming.ThumbnailURL
	merged.ContentHash = incoming.ContentHash
	if incoming.RemoteID != "" {
		merged.RemoteID = incoming.RemoteID
	}
	return &merged
}

// articleFromParsed converts a normalized article into a storable record
func articleFromParsed(feedID string, parsed *models.ParsedArticle) *models.Article {
	return &models.Article{
		ID:            parsed.ID,
		FeedID:        feedID,
		Title:         parsed.Title,
		Link:          parsed.Link,
		Summary:       parsed.Summary,
		Content:       parsed.Content,
		Author:        parsed.Author,
		PublishedAt:   parsed.PublishedAt,
		FetchedAt:     time.Now(),
		IsRead:        parsed.IsRead,
		IsStarred:     parsed.IsStarred,
		MediaKind:     parsed.MediaKind,
		EnclosureURL:  parsed.EnclosureURL,
		EnclosureType: parsed.EnclosureType,
		ThumbnailURL:  parsed.ThumbnailURL,
		ContentHash:   parsed.ContentHash,
		RemoteID:      parsed.RemoteID,
	}
}
