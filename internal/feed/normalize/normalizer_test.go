package normalize

import (
	"strings"
	"testing"

	"skiff/internal/core"
	"skiff/internal/feed/models"
)

const basicRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>https://example.com</link>
    <item>
      <title>Hello &amp; World</title>
      <link>https://example.com/hello</link>
      <guid>post-1</guid>
      <description>&lt;p&gt;First &lt;b&gt;post&lt;/b&gt;&lt;/p&gt;</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
    <item>
      <title>No Date</title>
      <link>https://example.com/no-date</link>
      <guid>post-2</guid>
      <description>Second post</description>
      <pubDate>Not a Date</pubDate>
    </item>
  </channel>
</rss>`

func TestParseBasicRSS(t *testing.T) {
	n := NewNormalizer(core.NewTestLogger())

	parsed, err := n.Parse([]byte(basicRSS), "https://example.com/rss")
	if err != nil {
		t.Fatalf("Failed to parse feed: %v", err)
	}

	if parsed.Title != "Example Blog" {
		t.Errorf("Expected feed title 'Example Blog', got %q", parsed.Title)
	}
	if parsed.Kind != models.FeedKindRSS {
		t.Errorf("Expected kind rss, got %s", parsed.Kind)
	}
	if len(parsed.Articles) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(parsed.Articles))
	}

	first := parsed.Articles[0]
	if first.Title != "Hello & World" {
		t.Errorf("Expected entity-decoded title, got %q", first.Title)
	}
	if first.Link != "https://example.com/hello" {
		t.Errorf("Expected link to be set, got %q", first.Link)
	}
	if first.PublishedAt == nil {
		t.Error("Expected published date to be parsed")
	}
	if strings.Contains(first.Summary, "<") {
		t.Errorf("Expected summary to be stripped of markup, got %q", first.Summary)
	}
	if first.ID == "" || first.ContentHash == "" {
		t.Error("Expected article id and content hash to be derived")
	}
}

func TestUnparseableDateIsNil(t *testing.T) {
	n := NewNormalizer(core.NewTestLogger())

	parsed, err := n.Parse([]byte(basicRSS), "https://example.com/rss")
	if err != nil {
		t.Fatalf("Failed to parse feed: %v", err)
	}

	second := parsed.Articles[1]
	if second.PublishedAt != nil {
		t.Errorf("Expected nil published date for unparseable value, got %v", second.PublishedAt)
	}
}

func TestArticleIDStability(t *testing.T) {
	a := ArticleID("https://example.com/rss", "post-1", "https://example.com/hello", "Hello")
	b := ArticleID("https://example.com/rss", "post-1", "https://example.com/hello", "Hello")
	if a != b {
		t.Error("Expected identical inputs to produce identical ids")
	}

	// guid wins over link and title, so changing those leaves the id alone
	c := ArticleID("https://example.com/rss", "post-1", "https://example.com/other", "Renamed")
	if a != c {
		t.Error("Expected guid to dominate the identity")
	}

	// a different feed URL changes the id even for the same entry
	d := ArticleID("https://other.com/rss", "post-1", "https://example.com/hello", "Hello")
	if a == d {
		t.Error("Expected feed URL to scope the identity")
	}
}

func TestArticleIDFallbackPriority(t *testing.T) {
	byLink := ArticleID("https://example.com/rss", "", "https://example.com/hello", "Hello")
	byTitle := ArticleID("https://example.com/rss", "", "", "Hello")

	if byLink == byTitle {
		t.Error("Expected link and title fallbacks to differ")
	}
}

func TestParseJSONFeed(t *testing.T) {
	payload := `{
		"version": "https://jsonfeed.org/version/1.1",
		"title": "JSON Example",
		"home_page_url": "https://example.com",
		"items": [
			{"id": "1", "url": "https://example.com/1", "title": "One", "content_html": "<p>one</p>"}
		]
	}`

	n := NewNormalizer(core.NewTestLogger())
	parsed, err := n.Parse([]byte(payload), "https://example.com/feed.json")
	if err != nil {
		t.Fatalf("Failed to parse JSON feed: %v", err)
	}

	if parsed.Kind != models.FeedKindJSON {
		t.Errorf("Expected kind json, got %s", parsed.Kind)
	}
	if len(parsed.Articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(parsed.Articles))
	}
}

func TestParseMalformedPayload(t *testing.T) {
	n := NewNormalizer(core.NewTestLogger())

	if _, err := n.Parse([]byte("this is not a feed"), "https://example.com/rss"); err == nil {
		t.Error("Expected a parse error for garbage input")
	}
	if !core.IsCode(mustErr(t, n, "{not json"), core.ErrCodeParse) {
		t.Error("Expected a parse error code for malformed JSON")
	}
	if _, err := n.Parse([]byte("   "), "https://example.com/rss"); err == nil {
		t.Error("Expected a parse error for an empty payload")
	}
}

func mustErr(t *testing.T, n *Normalizer, payload string) error {
	t.Helper()
	_, err := n.Parse([]byte(payload), "https://example.com/rss")
	if err == nil {
		t.Fatalf("Expected parse to fail for %q", payload)
	}
	return err
}

func TestYouTubeEntryMedia(t *testing.T) {
	payload := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:yt="http://www.youtube.com/xml/schemas/2015">
  <title>Example Channel</title>
  <entry>
    <id>yt:video:dQw4w9WgXcQ</id>
    <yt:videoId>dQw4w9WgXcQ</yt:videoId>
    <title>A Video</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"/>
  </entry>
</feed>`

	n := NewNormalizer(core.NewTestLogger())
	parsed, err := n.Parse([]byte(payload), "https://www.youtube.com/feeds/videos.xml?channel_id=UC123")
	if err != nil {
		t.Fatalf("Failed to parse channel feed: %v", err)
	}

	if parsed.Kind != models.FeedKindYouTube {
		t.Errorf("Expected kind youtube, got %s", parsed.Kind)
	}
	if len(parsed.Articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(parsed.Articles))
	}

	article := parsed.Articles[0]
	if article.MediaKind != models.MediaKindYouTube {
		t.Errorf("Expected youtube media kind, got %s", article.MediaKind)
	}
	if article.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("Expected video id from the yt extension, got %q", article.VideoID)
	}
	if !strings.Contains(article.Content, "youtube-nocookie.com/embed/dQw4w9WgXcQ") {
		t.Errorf("Expected content replaced with an embed, got %q", article.Content)
	}
	if article.ThumbnailURL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg" {
		t.Errorf("Expected derived thumbnail, got %q", article.ThumbnailURL)
	}
}

func TestClassifyURL(t *testing.T) {
	cases := []struct {
		link string
		id   string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/abc123xyz", "abc123xyz"},
		{"https://example.com/article", ""},
	}

	for _, tc := range cases {
		kind, id := ClassifyURL(tc.link)
		if id != tc.id {
			t.Errorf("ClassifyURL(%q): expected id %q, got %q", tc.link, tc.id, id)
		}
		if tc.id != "" && kind != models.MediaKindYouTube {
			t.Errorf("ClassifyURL(%q): expected youtube kind, got %s", tc.link, kind)
		}
	}
}

func TestRedditThumbnail(t *testing.T) {
	content := `<a href="https://www.reddit.com/r/golang/comments/x">[link]</a>
<img src="https://i.redd.it/abcdef123456.jpg" alt="">
<img src="https://preview.redd.it/other.png?width=640" alt="">`

	if got := redditThumbnail(content); got != "https://i.redd.it/abcdef123456.jpg" {
		t.Errorf("Expected direct image host to win, got %q", got)
	}

	previewOnly := `see https://preview.redd.it/only.png?width=320&format=png here`
	if got := redditThumbnail(previewOnly); got != "https://preview.redd.it/only.png?width=320&format=png" {
		t.Errorf("Expected preview fallback, got %q", got)
	}

	if got := redditThumbnail("no images here"); got != "" {
		t.Errorf("Expected empty thumbnail, got %q", got)
	}
}

func TestPodcastEnclosure(t *testing.T) {
	payload := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Example Pod</title>
    <itunes:author>Host</itunes:author>
    <item>
      <title>Episode 1</title>
      <guid>ep-1</guid>
      <enclosure url="https://example.com/ep1.mp3" type="audio/mpeg" length="1024"/>
    </item>
  </channel>
</rss>`

	n := NewNormalizer(core.NewTestLogger())
	parsed, err := n.Parse([]byte(payload), "https://example.com/podcast.xml")
	if err != nil {
		t.Fatalf("Failed to parse podcast feed: %v", err)
	}

	if parsed.Kind != models.FeedKindPodcast {
		t.Errorf("Expected kind podcast, got %s", parsed.Kind)
	}

	article := parsed.Articles[0]
	if article.MediaKind != models.MediaKindPodcast {
		t.Errorf("Expected podcast media kind, got %s", article.MediaKind)
	}
	if article.EnclosureURL != "https://example.com/ep1.mp3" {
		t.Errorf("Expected enclosure url, got %q", article.EnclosureURL)
	}
}

func TestSkipEntryWithNoIdentity(t *testing.T) {
	payload := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Sparse</title>
    <item><description>only a body</description></item>
    <item><title>Kept</title><link>https://example.com/kept</link></item>
  </channel>
</rss>`

	n := NewNormalizer(core.NewTestLogger())
	parsed, err := n.Parse([]byte(payload), "https://example.com/rss")
	if err != nil {
		t.Fatalf("Failed to parse feed: %v", err)
	}

	if len(parsed.Articles) != 1 {
		t.Fatalf("Expected identity-less entry to be skipped, got %d articles", len(parsed.Articles))
	}
	if parsed.Articles[0].Title != "Kept" {
		t.Errorf("Expected the surviving entry, got %q", parsed.Articles[0].Title)
	}
}

func TestContentHashChanges(t *testing.T) {
	base := ContentHash("Title", "https://example.com/a", "summary", "content")
	same := ContentHash("Title", "https://example.com/a", "summary", "content")
	if base != same {
		t.Error("Expected stable hash for identical fields")
	}

	changed := ContentHash("Title", "https://example.com/a", "summary", "content edited")
	if base == changed {
		t.Error("Expected hash to change with content")
	}

	// the separator keeps adjacent fields from colliding
	shifted := ContentHash("Titl", "ehttps://example.com/a", "summary", "content")
	if base == shifted {
		t.Error("Expected field boundaries to affect the hash")
	}
}
