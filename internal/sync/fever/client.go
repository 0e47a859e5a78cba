// Package fever implements the legacy Fever-style polling sync path.
package fever

import (
	"context"
	"crypto/md5"
	"encoding/hex"
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

// Group is a Fever group (folder)
type Group struct {
	ID    int64  `json:"group_id"`
	Title string `json:"title"`
}

// FeedsGroup maps a group to its member feeds as a comma-delimited id list
type FeedsGroup struct {
	GroupID int64  `json:"group_id"`
	FeedIDs string `json:"feed_ids"`
}

// Feed is a Fever feed record
type Feed struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	SiteURL string `json:"site_url"`
}

// Item is a Fever item record
type Item struct {
	ID            int64  `json:"id"`
	FeedID        int64  `json:"feed_id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	HTML          string `json:"html"`
	URL           string `json:"url"`
	IsSaved       int    `json:"is_saved"`
	IsRead        int    `json:"is_read"`
	CreatedOnTime int64  `json:"created_on_time"`
}

// apiResponse is the envelope every Fever endpoint answers with; only the
// fields named in the request query are populated
type apiResponse struct {
	APIVersion    int          `json:"api_version"`
	Auth          int          `json:"auth"`
	Groups        []Group      `json:"groups"`
	Feeds         []Feed       `json:"feeds"`
	FeedsGroups   []FeedsGroup `json:"feeds_groups"`
	Items         []Item       `json:"items"`
	TotalItems    int          `json:"total_items"`
	UnreadItemIDs string       `json:"unread_item_ids"`
	SavedItemIDs  string       `json:"saved_item_ids"`
}

// Client talks the Fever protocol. Authentication is a digest over
// username and shared secret sent as api_key with every request.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *core.Logger
}

// NewClient creates a Fever client from config
func NewClient(config *core.FeverConfig, logger *core.Logger) *Client {
	sum := md5.Sum([]byte(config.Username + ":" + config.Password))

	return &Client{
		endpoint:   strings.TrimSuffix(config.Endpoint, "/"),
		apiKey:     hex.EncodeToString(sum[:]),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.ForComponent("fever"),
	}
}

// call posts one API request. Network failures retry with exponential
// backoff and jitter; an auth rejection aborts immediately.
func (c *Client) call(ctx context.Context, query url.Values) (*apiResponse, error) {
	requestURL := c.endpoint + "?api"
	if encoded := query.Encode(); encoded != "" {
		requestURL += "&" + encoded
	}

	form := url.Values{"api_key": {c.apiKey}}

	var response *apiResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(core.NewNetworkError("failed to create request", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return core.NewNetworkError("fever request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return core.NewNetworkError(fmt.Sprintf("fever endpoint returned status %d", resp.StatusCode), nil)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return core.NewNetworkError("failed to read fever response", err)
		}

		var decoded apiResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return backoff.Permanent(core.NewParseError("malformed fever response", err))
		}

		if decoded.Auth != 1 {
			return backoff.Permanent(core.NewAuthError("fever authentication rejected", nil))
		}

		response = &decoded
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return response, nil
}

// Groups fetches groups along with the feed-to-group mapping
func (c *Client) Groups(ctx context.Context) ([]Group, []FeedsGroup, error) {
	resp, err := c.call(ctx, url.Values{"groups": {""}})
	if err != nil {
		return nil, nil, err
	}
	return resp.Groups, resp.FeedsGroups, nil
}

// Feeds fetches all remote feeds
func (c *Client) Feeds(ctx context.Context) ([]Feed, error) {
	resp, err := c.call(ctx, url.Values{"feeds": {""}})
	if err != nil {
		return nil, err
	}
	return resp.Feeds, nil
}

// UnreadItemIDs fetches the ids of all remotely unread items
func (c *Client) UnreadItemIDs(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, url.Values{"unread_item_ids": {""}})
	if err != nil {
		return nil, err
	}
	return splitIDList(resp.UnreadItemIDs), nil
}

// SavedItemIDs fetches the ids of all remotely saved items
func (c *Client) SavedItemIDs(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, url.Values{"saved_item_ids": {""}})
	if err != nil {
		return nil, err
	}
	return splitIDList(resp.SavedItemIDs), nil
}

// Items fetches a page of items with ids greater than sinceID, oldest
// first, along with the remote total
func (c *Client) Items(ctx context.Context, sinceID int64) ([]Item, int, error) {
	resp, err := c.call(ctx, url.Values{
		"items":    {""},
		"since_id": {fmt.Sprintf("%d", sinceID)},
	})
	if err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.TotalItems, nil
}

// MarkItem applies a mutation to a remote item. as is one of read,
// unread, saved, unsaved.
func (c *Client) MarkItem(ctx context.Context, itemID int64, as string) error {
	_, err := c.call(ctx, url.Values{
		"mark": {"item"},
		"as":   {as},
		"id":   {fmt.Sprintf("%d", itemID)},
	})
	return err
}

func splitIDList(list string) []string {
	if list == "" {
		return nil
	}

	parts := strings.Split(list, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
