package collector

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Topic is a named search intent. Relevance is always scored against a topic.
type Topic struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// AnchorText is the text the scorer embeds to represent the topic.
func (t Topic) AnchorText() string {
	if strings.TrimSpace(t.Description) == "" {
		return t.Name
	}
	return t.Name + ". " + t.Description
}

// Engagement holds the popularity signals a platform reports for an item.
// Forum-like platforms fill Score and CommentCount, catalog-like platforms
// fill Likes and Downloads.
type Engagement struct {
	Score        int `json:"score"`
	CommentCount int `json:"comment_count"`
	Likes        int `json:"likes,omitempty"`
	Downloads    int `json:"downloads,omitempty"`
}

// Comment is a single reply attached to a ContentItem. Comments are
// evaluated for relevance independently once their parent item is accepted.
type Comment struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Text     string `json:"text"`
	Score    int    `json:"score"`
	ParentID string `json:"parent_id,omitempty"`
}

// ContentItem is the platform-agnostic unit every collector normalizes to.
// It is immutable once fetched; the pipeline owns it for the duration of
// one filtering pass.
type ContentItem struct {
	ID         string     `json:"id"`
	Platform   string     `json:"platform"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Author     string     `json:"author"`
	CreatedAt  time.Time  `json:"created_at"`
	Engagement Engagement `json:"engagement"`
	URL        string     `json:"url"`
	Comments   []Comment  `json:"raw_comments,omitempty"`
}

// Text returns the title and body joined, the form all filtering and
// scoring operates on.
func (it ContentItem) Text() string {
	return strings.TrimSpace(it.Title + " " + it.Body)
}

// Validate reports a ValidationError when a required field is missing or
// malformed. Invalid items are skipped, never fatal.
func (it ContentItem) Validate() error {
	if it.ID == "" {
		return &ValidationError{Field: "id", Reason: "empty"}
	}
	if it.URL == "" {
		return &ValidationError{Field: "url", Reason: "empty"}
	}
	if u, err := url.Parse(strings.TrimSpace(it.URL)); err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: "url", Reason: "not an absolute url"}
	}
	if it.CreatedAt.IsZero() {
		return &ValidationError{Field: "created_at", Reason: "zero timestamp"}
	}
	if it.CreatedAt.After(time.Now().Add(24 * time.Hour)) {
		return &ValidationError{Field: "created_at", Reason: fmt.Sprintf("in the future: %s", it.CreatedAt)}
	}
	return nil
}
