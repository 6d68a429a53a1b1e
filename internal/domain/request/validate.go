package request

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/quillhq/quill/internal/domain"
)

// validContentTypes enumerates all valid content types.
var validContentTypes = map[ContentType]bool{
	TypeBlogPost:           true,
	TypeArticle:            true,
	TypeProductDescription: true,
	TypeSocialMedia:        true,
	TypeEmail:              true,
}

// validStatuses enumerates all valid request statuses.
var validStatuses = map[Status]bool{
	StatusQueued:      true,
	StatusResearching: true,
	StatusWriting:     true,
	StatusScoring:     true,
	StatusCompleted:   true,
	StatusFailed:      true,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return validStatuses[s]
}

// MinWordCount is the smallest accepted word count for any content type.
const MinWordCount = 100

// Validate checks that a CreateRequest has all required fields and that
// word_count stays within [MinWordCount, maxWordCount]. Defaults for
// content_type and target_audience must be applied before calling.
func (r *CreateRequest) Validate(maxWordCount int) error {
	topic := strings.TrimSpace(r.Topic)
	if topic == "" {
		return fmt.Errorf("topic is required: %w", domain.ErrValidation)
	}
	if len(topic) < 3 {
		return fmt.Errorf("topic must be at least 3 characters: %w", domain.ErrValidation)
	}
	if !validContentTypes[r.ContentType] {
		return fmt.Errorf("invalid content_type %q: %w", r.ContentType, domain.ErrValidation)
	}
	if r.WordCount < MinWordCount {
		return fmt.Errorf("word_count must be at least %d: %w", MinWordCount, domain.ErrValidation)
	}
	if r.WordCount > maxWordCount {
		return fmt.Errorf("word_count exceeds maximum of %d: %w", maxWordCount, domain.ErrValidation)
	}
	for k := range r.Style {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("style_requirements keys must be non-empty: %w", domain.ErrValidation)
		}
		if strings.IndexFunc(k, unicode.IsControl) != -1 {
			return fmt.Errorf("style_requirements key %q contains control characters: %w", k, domain.ErrValidation)
		}
	}
	return nil
}
