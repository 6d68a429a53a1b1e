// Package request defines the ContentRequest domain entity.
package request

import "time"

// ContentType classifies the kind of content to produce.
type ContentType string

const (
	TypeBlogPost           ContentType = "blog_post"
	TypeArticle            ContentType = "article"
	TypeProductDescription ContentType = "product_description"
	TypeSocialMedia        ContentType = "social_media"
	TypeEmail              ContentType = "email"
)

// Status represents the current state of a content request.
// Transitions are monotonic: queued → researching → writing → scoring →
// completed, with failed reachable from any non-terminal state.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusResearching Status = "researching"
	StatusWriting     Status = "writing"
	StatusScoring     Status = "scoring"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is final. Stored outputs of a
// terminal request are never mutated again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Cancellable reports whether a cancel is still allowed. A request in
// scoring is past its last stage boundary, so it can no longer be cancelled.
func (s Status) Cancellable() bool {
	return s == StatusQueued || s == StatusResearching || s == StatusWriting
}

// Style holds style requirements as an open key-value mapping. Recognized
// keys are tone, voice, reading_level, language and keywords; unknown keys
// are passed through to the writer prompt unchanged.
type Style map[string]string

// Request represents a content-creation request driving one pipeline run.
// Submission fields are immutable after creation; only status, error and
// the timestamps change as the run progresses.
type Request struct {
	ID             string      `json:"id"`
	Topic          string      `json:"topic"`
	ContentType    ContentType `json:"content_type"`
	TargetAudience string      `json:"target_audience"`
	WordCount      int         `json:"word_count"`
	Style          Style       `json:"style_requirements,omitempty"`
	Status         Status      `json:"status"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// Summary is the compact listing view of a request.
type Summary struct {
	ID          string      `json:"id"`
	Topic       string      `json:"topic"`
	ContentType ContentType `json:"content_type"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// CreateRequest holds the fields needed to submit a new content request.
type CreateRequest struct {
	Topic          string      `json:"topic"`
	ContentType    ContentType `json:"content_type"`
	TargetAudience string      `json:"target_audience"`
	WordCount      int         `json:"word_count"`
	Style          Style       `json:"style_requirements,omitempty"`
}
