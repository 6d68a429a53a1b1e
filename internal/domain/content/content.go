// Package content defines the ContentPiece and QualityAssessment entities.
package content

import (
	"strings"
	"time"
)

// Section is one body section of a content piece.
type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// Assessment holds the four derived quality scores, each in [0,1].
// Exactly one assessment is attached to a finished content piece.
type Assessment struct {
	Overall       float64 `json:"overall_score"`
	SEO           float64 `json:"seo_score"`
	FactCheck     float64 `json:"fact_check_score"`
	ResearchDepth float64 `json:"research_depth_score"`
}

// Piece is the finished article produced by the writing stage and
// annotated by the scorer. Immutable after finalization.
type Piece struct {
	ID                 string      `json:"id"`
	RequestID          string      `json:"request_id"`
	Title              string      `json:"title"`
	Summary            string      `json:"summary,omitempty"`
	Sections           []Section   `json:"sections"`
	Tags               []string    `json:"tags,omitempty"`
	WordCount          int         `json:"word_count"`
	ReadingTimeMinutes int         `json:"reading_time_minutes"`
	Assessment         *Assessment `json:"quality,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// Words counts the words across all section texts.
func (p *Piece) Words() int {
	var n int
	for _, s := range p.Sections {
		n += len(strings.Fields(s.Text))
	}
	return n
}

// Body returns all section text joined together, used for keyword checks.
func (p *Piece) Body() string {
	parts := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}
