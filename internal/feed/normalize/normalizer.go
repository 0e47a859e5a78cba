package normalize

import (
	"bytes"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"skiff/internal/core"
	"skiff/internal/feed/models"
)

// Normalizer parses raw feed payloads of any supported format into the
// canonical intermediate form. The underlying pull parser performs no DTD
// processing and no external entity resolution.
type Normalizer struct {
	logger        *core.Logger
	summaryPolicy *bluemonday.Policy
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger *core.Logger) *Normalizer {
	return &Normalizer{
		logger:        logger.ForComponent("normalize"),
		summaryPolicy: bluemonday.StrictPolicy(),
	}
}

// Parse normalizes a raw payload fetched from sourceURL. Malformed
// individual entries are skipped; a payload that is neither valid JSON nor
// valid XML fails with a parse error.
func (n *Normalizer) Parse(payload []byte, sourceURL string) (*models.ParsedFeed, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, core.NewParseError("empty feed payload", nil)
	}

	// Content sniff: JSON Feed opens with an object, everything else is XML
	isJSON := trimmed[0] == '{'

	parser := gofeed.NewParser()
	parsed, err := parser.Parse(bytes.NewReader(trimmed))
	if err != nil {
		if isJSON {
			return nil, core.NewParseError("malformed JSON feed", err)
		}
		return nil, core.NewParseError("malformed feed payload", err)
	}

	kind := detectKind(parsed, sourceURL)

	result := &models.ParsedFeed{
		Title:    html.UnescapeString(strings.TrimSpace(parsed.Title)),
		SiteURL:  strings.TrimSpace(parsed.Link),
		Kind:     kind,
		Articles: make([]models.ParsedArticle, 0, len(parsed.Items)),
	}
	if parsed.Image != nil {
		result.IconURL = parsed.Image.URL
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		article, ok := n.normalizeItem(item, sourceURL, kind)
		if !ok {
			n.logger.Warn("Skipping entry with no usable identity", "feed_url", sourceURL)
			continue
		}
		result.Articles = append(result.Articles, article)
	}

	return result, nil
}

// normalizeItem converts one parsed entry into a canonical article. Returns
// ok=false when the entry carries nothing an identity can be derived from.
func (n *Normalizer) normalizeItem(item *gofeed.Item, sourceURL string, kind models.FeedKind) (models.ParsedArticle, bool) {
	title := html.UnescapeString(strings.TrimSpace(item.Title))
	link := canonicalLink(item)
	guid := strings.TrimSpace(item.GUID)

	if guid == "" && link == "" && title == "" {
		return models.ParsedArticle{}, false
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	summary := strings.TrimSpace(n.summaryPolicy.Sanitize(item.Description))

	media := classifyMedia(item, kind)
	thumbnail := ""
	if item.Image != nil {
		thumbnail = item.Image.URL
	}

	if media.VideoID != "" {
		// The original body is replaced with an embeddable player and a
		// thumbnail derived from the video id
		content = videoEmbedContent(media.VideoID)
		thumbnail = videoThumbnailURL(media.VideoID)
	} else if kind == models.FeedKindReddit && thumbnail == "" {
		thumbnail = redditThumbnail(html.UnescapeString(content))
	}

	article := models.ParsedArticle{
		ID:            ArticleID(sourceURL, guid, link, title),
		GUID:          guid,
		Title:         title,
		Link:          link,
		Summary:       summary,
		Content:       content,
		Author:        itemAuthor(item),
		PublishedAt:   publishedAt(item),
		MediaKind:     media.Kind,
		VideoID:       media.VideoID,
		EnclosureURL:  media.EnclosureURL,
		EnclosureType: media.EnclosureType,
		ThumbnailURL:  thumbnail,
	}
	article.ContentHash = ContentHash(article.Title, article.Link, article.Summary, article.Content)

	return article, true
}

// canonicalLink resolves the entry link from whichever aliased field is
// present: a feedburner original link, the plain link, the first of the
// link list, then a permalink-shaped guid
func canonicalLink(item *gofeed.Item) string {
	if fb, ok := item.Extensions["feedburner"]; ok {
		if orig, ok := fb["origLink"]; ok && len(orig) > 0 && orig[0].Value != "" {
			return strings.TrimSpace(orig[0].Value)
		}
	}

	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}

	for _, link := range item.Links {
		if trimmed := strings.TrimSpace(link); trimmed != "" {
			return trimmed
		}
	}

	if guid := strings.TrimSpace(item.GUID); strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}

	return ""
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, author := range item.Authors {
		if author != nil && author.Name != "" {
			return author.Name
		}
	}
	if dc := item.DublinCoreExt; dc != nil && len(dc.Creator) > 0 {
		return dc.Creator[0]
	}
	return ""
}

// publishedAt resolves the publish timestamp permissively. An unparseable
// or missing date is nil, never an error.
func publishedAt(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}

	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return &t
		}
	}

	return nil
}

// detectKind tags the feed with its source format family. Host-specific
// kinds win over the wire format.
func detectKind(parsed *gofeed.Feed, sourceURL string) models.FeedKind {
	if u, err := url.Parse(sourceURL); err == nil {
		host := strings.ToLower(u.Hostname())
		switch {
		case strings.HasSuffix(host, "youtube.com"):
			return models.FeedKindYouTube
		case strings.HasSuffix(host, "reddit.com"):
			return models.FeedKindReddit
		}
	}

	if parsed.ITunesExt != nil {
		return models.FeedKindPodcast
	}

	switch parsed.FeedType {
	case "json":
		return models.FeedKindJSON
	case "atom":
		return models.FeedKindAtom
	default:
		return models.FeedKindRSS
	}
}
