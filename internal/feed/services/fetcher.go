package services

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"skiff/internal/core"
)

// Fetcher retrieves raw feed payloads over HTTP with conditional GET
// support. Parsing is the normalizer's job; this only moves bytes.
type Fetcher struct {
	client *http.Client
	logger *core.Logger
	config *core.FetcherConfig
}

// FetchResult is the outcome of one feed fetch
type FetchResult struct {
	Body         []byte
	NotModified  bool
	ETag         string
	LastModified string
}

// NewFetcher creates a new fetcher
func NewFetcher(logger *core.Logger, config *core.FetcherConfig) *Fetcher {
	client := &http.Client{
		Timeout: config.Timeout,
	}

	return &Fetcher{
		client: client,
		logger: logger.ForComponent("fetcher"),
		config: config,
	}
}

// Fetch retrieves feedURL, sending the stored validators so unchanged
// feeds answer 304 without a body
func (f *Fetcher) Fetch(ctx context.Context, feedURL, etag, lastModified string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, core.NewNetworkError("failed to create request", err)
	}

	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, core.NewNetworkError("failed to fetch feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true, ETag: etag, LastModified: lastModified}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, core.NewNetworkError(fmt.Sprintf("feed returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewNetworkError("failed to read response body", err)
	}

	return &FetchResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
