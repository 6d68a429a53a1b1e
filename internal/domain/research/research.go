// Package research defines the research stage output entities.
package research

// Source is one retained information source with its heuristic credibility.
type Source struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Snippet     string  `json:"snippet,omitempty"`
	Credibility float64 `json:"credibility"`
}

// Result is the structured output of the research stage. It is produced
// once and consumed read-only by the writing stage and the scorer.
type Result struct {
	Topic      string   `json:"topic"`
	Queries    []string `json:"queries,omitempty"`
	Sources    []Source `json:"sources"`
	Facts      []string `json:"facts"`
	Confidence float64  `json:"confidence"`
}

// HighCredibilityFraction returns the fraction of sources whose credibility
// is at or above the given threshold. Returns 0 when there are no sources.
func (r *Result) HighCredibilityFraction(threshold float64) float64 {
	if len(r.Sources) == 0 {
		return 0
	}
	var high int
	for _, s := range r.Sources {
		if s.Credibility >= threshold {
			high++
		}
	}
	return float64(high) / float64(len(r.Sources))
}
