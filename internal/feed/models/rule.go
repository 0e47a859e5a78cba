package models

import (
	"strings"
	"time"
)

// RuleCondition selects which article field a rule matches against
type RuleCondition string

const (
	RuleConditionTitleContains   RuleCondition = "title_contains"
	RuleConditionContentContains RuleCondition = "content_contains"
	RuleConditionAuthorContains  RuleCondition = "author_contains"
	RuleConditionFeedIs          RuleCondition = "feed_is"
)

// RuleAction is what happens to a matching article before it is stored
type RuleAction string

const (
	RuleActionMarkRead RuleAction = "mark_read"
	RuleActionStar     RuleAction = "star"
	RuleActionDelete   RuleAction = "delete"
	RuleActionTag      RuleAction = "tag"
)

// FilterRule is an automation rule applied to freshly normalized articles.
// Delete removes an article before it ever reaches storage.
type FilterRule struct {
	ID        int64         `json:"id"`
	Condition RuleCondition `json:"condition"`
	Value     string        `json:"value"`
	Action    RuleAction    `json:"action"`
	TagValue  string        `json:"tag_value"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"created_at"`
}

// Matches reports whether the rule applies to the given article in the
// given feed. Contains conditions are case-insensitive.
func (r *FilterRule) Matches(article *ParsedArticle, feedID string) bool {
	switch r.Condition {
	case RuleConditionTitleContains:
		return containsFold(article.Title, r.Value)
	case RuleConditionContentContains:
		return containsFold(article.Content, r.Value) || containsFold(article.Summary, r.Value)
	case RuleConditionAuthorContains:
		return containsFold(article.Author, r.Value)
	case RuleConditionFeedIs:
		return feedID == r.Value
	default:
		return false
	}
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
