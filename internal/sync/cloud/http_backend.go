package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"skiff/internal/core"
)

// HTTPBackend talks to a cloud sync server over JSON. Each table exposes
// PUT /<table> for upserts and GET /<table>?since=<rfc3339> for listing.
type HTTPBackend struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *core.Logger
}

// NewHTTPBackend creates a backend client from config
func NewHTTPBackend(config *core.CloudSyncConfig, logger *core.Logger) *HTTPBackend {
	return &HTTPBackend{
		endpoint:   strings.TrimSuffix(config.Endpoint, "/"),
		token:      config.Token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.ForComponent("cloud-http"),
	}
}

// UpsertFolder implements Backend
func (b *HTTPBackend) UpsertFolder(ctx context.Context, record FolderRecord) error {
	return b.put(ctx, "folders", record)
}

// FoldersSince implements Backend
func (b *HTTPBackend) FoldersSince(ctx context.Context, since time.Time) ([]FolderRecord, error) {
	var records []FolderRecord
	if err := b.list(ctx, "folders", since, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// UpsertFeed implements Backend
func (b *HTTPBackend) UpsertFeed(ctx context.Context, record FeedRecord) error {
	return b.put(ctx, "feeds", record)
}

// FeedsSince implements Backend
func (b *HTTPBackend) FeedsSince(ctx context.Context, since time.Time) ([]FeedRecord, error) {
	var records []FeedRecord
	if err := b.list(ctx, "feeds", since, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// UpsertArticleState implements Backend
func (b *HTTPBackend) UpsertArticleState(ctx context.Context, record ArticleStateRecord) error {
	return b.put(ctx, "article-states", record)
}

// ArticleStatesSince implements Backend
func (b *HTTPBackend) ArticleStatesSince(ctx context.Context, since time.Time) ([]ArticleStateRecord, error) {
	var records []ArticleStateRecord
	if err := b.list(ctx, "article-states", since, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *HTTPBackend) put(ctx context.Context, table string, record interface{}) error {
	body, err := json.Marshal(record)
	if err != nil {
		return core.NewInternalError("failed to encode sync record", err)
	}

	return b.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.endpoint+"/"+table, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(core.NewNetworkError("failed to create request", err))
		}
		b.setHeaders(req)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return core.NewNetworkError("sync upsert failed", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		return b.checkStatus(resp)
	})
}

func (b *HTTPBackend) list(ctx context.Context, table string, since time.Time, out interface{}) error {
	requestURL := b.endpoint + "/" + table
	if !since.IsZero() {
		requestURL += "?since=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	}

	return b.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(core.NewNetworkError("failed to create request", err))
		}
		b.setHeaders(req)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return core.NewNetworkError("sync list failed", err)
		}
		defer resp.Body.Close()

		if err := b.checkStatus(resp); err != nil {
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(core.NewParseError("malformed sync response", err))
		}
		return nil
	})
}

func (b *HTTPBackend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
}

func (b *HTTPBackend) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(core.NewAuthError("sync backend rejected credentials", nil))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(core.NewNetworkError(fmt.Sprintf("sync backend returned status %d", resp.StatusCode), nil))
	case resp.StatusCode >= 500:
		return core.NewNetworkError(fmt.Sprintf("sync backend returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// withRetry applies bounded exponential backoff with jitter to transient
// failures
func (b *HTTPBackend) withRetry(ctx context.Context, operation func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(operation, policy)
}
