package normalize

import (
	"crypto/sha256"
	"encoding/hex"
)

// ArticleID derives the stable article identifier for dedup. The id is a
// pure function of (feed URL, entry identifier): re-parsing the same entry
// at any time yields the same id. The entry identifier is chosen by
// priority guid > link > title.
func ArticleID(feedURL, guid, link, title string) string {
	ident := guid
	if ident == "" {
		ident = link
	}
	if ident == "" {
		ident = title
	}

	sum := sha256.Sum256([]byte(feedURL + "|" + ident))
	return hex.EncodeToString(sum[:])
}

// ContentHash is a secondary uniqueness signal over the mutable fields,
// used to detect whether a re-fetched entry actually changed
func ContentHash(title, link, summary, content string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(link))
	h.Write([]byte{0})
	h.Write([]byte(summary))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
