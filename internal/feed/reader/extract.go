// Package reader pre-fetches article pages and extracts a reader-friendly
// content variant. The extracted copy is user-local state: merge never
// overwrites it on re-ingestion.
package reader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	readability "github.com/go-shiori/go-readability"

	"skiff/internal/core"
	"skiff/internal/feed/models"
	"skiff/internal/feed/store"
)

// Extractor fetches article pages and stores readability output
type Extractor struct {
	client   *http.Client
	articles *store.ArticleStore
	logger   *core.Logger
	config   *core.FetcherConfig
}

// NewExtractor creates a new extractor
func NewExtractor(articles *store.ArticleStore, logger *core.Logger, config *core.FetcherConfig) *Extractor {
	return &Extractor{
		client:   &http.Client{Timeout: config.Timeout},
		articles: articles,
		logger:   logger.ForComponent("reader"),
		config:   config,
	}
}

// Prefetch retrieves the article page and stores the extracted content,
// marking the article as pre-fetched
func (e *Extractor) Prefetch(ctx context.Context, article *models.Article) error {
	if article.Link == "" {
		return core.NewValidationError("article has no link to extract from", nil)
	}

	pageURL, err := url.Parse(article.Link)
	if err != nil {
		return core.NewValidationError("article link is not a valid url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, article.Link, nil)
	if err != nil {
		return core.NewNetworkError("failed to create request", err)
	}
	req.Header.Set("User-Agent", e.config.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return core.NewNetworkError("failed to fetch article page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.NewNetworkError(fmt.Sprintf("article page returned status %d", resp.StatusCode), nil)
	}

	extracted, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return core.NewParseError("failed to extract readable content", err)
	}

	if err := e.articles.SetReaderContent(ctx, article.ID, extracted.Content); err != nil {
		return err
	}

	e.logger.Info("Extracted reader content", "article_id", article.ID, "length", len(extracted.Content))
	return nil
}
