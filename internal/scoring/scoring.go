// Package scoring computes quality scores for finished content pieces.
// All scores are deterministic given their inputs and clamped to [0,1];
// no external calls are made.
package scoring

import (
	"strings"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/research"
)

// seoCriteria is the number of equally-weighted SEO checks.
const seoCriteria = 4

// Scorer derives a quality assessment from a content piece and the
// research that produced it.
type Scorer struct {
	cfg config.Scoring
}

// New creates a Scorer with the given weights and thresholds.
func New(cfg config.Scoring) *Scorer {
	return &Scorer{cfg: cfg}
}

// Assess computes all four quality scores. A nil piece or nil research
// yields zero scores rather than an error: scoring never fails a run.
func (s *Scorer) Assess(p *content.Piece, res *research.Result, requestedWords int) content.Assessment {
	if p == nil || res == nil {
		return content.Assessment{}
	}
	return content.Assessment{
		Overall:       s.Overall(p, res, requestedWords),
		SEO:           s.SEO(p),
		FactCheck:     s.FactCheck(res),
		ResearchDepth: s.ResearchDepth(len(res.Sources)),
	}
}

// Overall combines produced-to-requested length ratio, section structure
// and research confidence under the configured weights.
func (s *Scorer) Overall(p *content.Piece, res *research.Result, requestedWords int) float64 {
	words := p.WordCount
	if words == 0 {
		words = p.Words()
	}

	var lengthRatio float64
	if requestedWords > 0 {
		lengthRatio = clamp01(float64(words) / float64(requestedWords))
	}

	var structure float64
	if len(p.Sections) >= s.cfg.MinSections {
		structure = 1
	}

	score := s.cfg.LengthWeight*lengthRatio +
		s.cfg.StructureWeight*structure +
		s.cfg.ConfidenceWeight*clamp01(res.Confidence)
	return clamp01(score)
}

// SEO checks title length, summary presence, heading count and tag
// occurrence in the body. Each satisfied criterion contributes an equal
// increment.
func (s *Scorer) SEO(p *content.Piece) float64 {
	var satisfied int

	if n := len(p.Title); n >= s.cfg.TitleMinChars && n <= s.cfg.TitleMaxChars {
		satisfied++
	}
	if strings.TrimSpace(p.Summary) != "" {
		satisfied++
	}
	if countHeadings(p.Sections) >= s.cfg.MinHeadings {
		satisfied++
	}
	if tagInBody(p) {
		satisfied++
	}

	return clamp01(float64(satisfied) / seoCriteria)
}

// FactCheck scales research confidence by the fraction of sources at or
// above the high-credibility threshold.
func (s *Scorer) FactCheck(res *research.Result) float64 {
	return clamp01(res.Confidence * res.HighCredibilityFraction(s.cfg.HighCredibility))
}

// ResearchDepth grows with retained source count and saturates at the
// configured maximum.
func (s *Scorer) ResearchDepth(sources int) float64 {
	if sources <= 0 || s.cfg.DepthSaturation <= 0 {
		return 0
	}
	return clamp01(float64(sources) / float64(s.cfg.DepthSaturation))
}

func countHeadings(sections []content.Section) int {
	var n int
	for _, sec := range sections {
		if strings.TrimSpace(sec.Heading) != "" {
			n++
		}
	}
	return n
}

func tagInBody(p *content.Piece) bool {
	if len(p.Tags) == 0 {
		return false
	}
	body := strings.ToLower(p.Body())
	for _, tag := range p.Tags {
		if tag != "" && strings.Contains(body, strings.ToLower(tag)) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
