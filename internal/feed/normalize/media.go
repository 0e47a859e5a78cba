package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"

	"skiff/internal/feed/models"
)

var youtubeURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?v=([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`youtube\.com/embed/([A-Za-z0-9_-]{6,})`),
}

// Reddit rarely supplies a thumbnail element; the content is scanned with
// these patterns in order, direct image host first, hosted preview second.
var redditImagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`https://i\.redd\.it/[A-Za-z0-9._-]+\.(?:jpg|jpeg|png|gif|webp)`),
	regexp.MustCompile(`https://preview\.redd\.it/[^"'\s<>\\]+`),
}

// mediaInfo is the result of classifying one entry
type mediaInfo struct {
	Kind          models.MediaKind
	VideoID       string
	EnclosureURL  string
	EnclosureType string
}

// classifyMedia determines the media kind of an entry. Priority order:
// explicit video enclosure MIME, audio enclosure MIME, a native video-id
// field, then known video-hosting URL shapes. Audio becomes podcast when
// the owning feed is a podcast feed.
func classifyMedia(item *gofeed.Item, feedKind models.FeedKind) mediaInfo {
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "video/") {
			return mediaInfo{
				Kind:          models.MediaKindVideo,
				EnclosureURL:  enc.URL,
				EnclosureType: enc.Type,
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") {
			kind := models.MediaKindAudio
			if feedKind == models.FeedKindPodcast {
				kind = models.MediaKindPodcast
			}
			return mediaInfo{
				Kind:          kind,
				EnclosureURL:  enc.URL,
				EnclosureType: enc.Type,
			}
		}
	}

	if id := youtubeVideoID(item); id != "" {
		return mediaInfo{Kind: models.MediaKindYouTube, VideoID: id}
	}

	if id := matchYouTubeURL(item.Link); id != "" {
		return mediaInfo{Kind: models.MediaKindYouTube, VideoID: id}
	}

	return mediaInfo{Kind: models.MediaKindNone}
}

// youtubeVideoID pulls the native video id out of a YouTube channel feed
// entry (the yt:videoId extension element)
func youtubeVideoID(item *gofeed.Item) string {
	yt, ok := item.Extensions["yt"]
	if !ok {
		return ""
	}
	ids, ok := yt["videoId"]
	if !ok || len(ids) == 0 {
		return ""
	}
	return strings.TrimSpace(ids[0].Value)
}

func matchYouTubeURL(link string) string {
	for _, pattern := range youtubeURLPatterns {
		if m := pattern.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	return ""
}

// ClassifyURL applies the video-hosting URL heuristics to a bare link.
// Sync paths that receive items outside a feed payload reuse this.
func ClassifyURL(link string) (models.MediaKind, string) {
	if id := matchYouTubeURL(link); id != "" {
		return models.MediaKindYouTube, id
	}
	return models.MediaKindNone, ""
}

// VideoEmbed returns the generated player body and thumbnail for a video id
func VideoEmbed(videoID string) (content, thumbnail string) {
	return videoEmbedContent(videoID), videoThumbnailURL(videoID)
}

// videoEmbedContent generates the embeddable player body that replaces the
// original content when a video id is found
func videoEmbedContent(videoID string) string {
	return fmt.Sprintf(
		`<iframe src="https://www.youtube-nocookie.com/embed/%s" frameborder="0" allowfullscreen></iframe>`,
		videoID,
	)
}

// videoThumbnailURL derives the predictable thumbnail location for a video id
func videoThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)
}

// redditThumbnail scans decoded entry content for a usable image URL.
// First match of the highest-priority pattern wins; empty when none match.
func redditThumbnail(content string) string {
	for _, pattern := range redditImagePatterns {
		if m := pattern.FindString(content); m != "" {
			return m
		}
	}
	return ""
}
