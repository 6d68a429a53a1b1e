package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/domain/research"
	"github.com/quillhq/quill/internal/domain/stage"
	"github.com/quillhq/quill/internal/port/knowledge"
	"github.com/quillhq/quill/internal/port/llm"
)

// domainReputation maps known hosts to a base credibility score.
// Subdomains inherit the score of their registrable parent.
var domainReputation = map[string]float64{
	"wikipedia.org":     0.85,
	"nature.com":        0.9,
	"sciencedirect.com": 0.85,
	"nih.gov":           0.9,
	"who.int":           0.9,
	"acm.org":           0.85,
	"ieee.org":          0.85,
	"reuters.com":       0.8,
	"bbc.com":           0.75,
	"nytimes.com":       0.75,
	"medium.com":        0.5,
	"reddit.com":        0.35,
	"quora.com":         0.3,
}

const (
	// reputationDefault applies to hosts absent from the reputation table.
	reputationDefault = 0.5

	// recencyBonus is added when a source was updated within recencyWindow.
	recencyBonus  = 0.1
	recencyWindow = 365 * 24 * time.Hour

	// lowSourcePenalty scales confidence down when fewer than two sources
	// survive the credibility floor.
	lowSourcePenalty = 0.75

	// snippetLimit caps per-source text included in the synthesis prompt.
	snippetLimit = 600
)

const factsSystem = "You are a research analyst. Respond with valid JSON only, no prose around it."

// ResearchStep produces a structured research result for a topic by
// querying an external knowledge source and synthesizing the retained
// sources into a fact list via a language model.
type ResearchStep struct {
	searcher knowledge.Searcher
	model    llm.Completer
	cfg      config.Research
	now      func() time.Time // for recency scoring in tests
}

// NewResearchStep creates the research stage implementation.
func NewResearchStep(searcher knowledge.Searcher, model llm.Completer, cfg config.Research) *ResearchStep {
	return &ResearchStep{
		searcher: searcher,
		model:    model,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Stage returns the stage this step implements.
func (s *ResearchStep) Stage() stage.Name { return stage.NameResearch }

// Execute gathers candidate documents for the topic, scores and filters
// them by credibility, and synthesizes a fact list. It fails when the
// lookup errors or when no source passes the credibility floor.
func (s *ResearchStep) Execute(ctx context.Context, in Input) (*Output, error) {
	req := in.Request
	queries := buildQueries(req.Topic, req.TargetAudience, s.cfg.MaxQueries)

	// Queries fan out concurrently; results are merged in query order so
	// the retained source order stays deterministic.
	found := make([][]knowledge.Document, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.searcher.Search(gctx, q, s.cfg.ResultsPerQuery)
			if err != nil {
				return fmt.Errorf("%w: knowledge lookup %q: %v", domain.ErrResearch, q, err)
			}
			found[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var docs []knowledge.Document
	for _, perQuery := range found {
		for _, d := range perQuery {
			key := d.URL
			if key == "" {
				key = d.Title
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			docs = append(docs, d)
		}
	}

	sources := s.scoreAndFilter(docs)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources found above credibility floor %.2f for %q",
			domain.ErrResearch, s.cfg.CredibilityFloor, req.Topic)
	}

	facts, err := s.synthesizeFacts(ctx, req.Topic, sources)
	if err != nil {
		return nil, err
	}

	result := &research.Result{
		Topic:      req.Topic,
		Queries:    queries,
		Sources:    sources,
		Facts:      facts,
		Confidence: confidence(sources),
	}

	slog.Debug("research completed",
		"request_id", req.ID,
		"sources", len(result.Sources),
		"facts", len(result.Facts),
		"confidence", result.Confidence)

	return &Output{Research: result}, nil
}

// buildQueries derives between two and max search queries from the topic.
func buildQueries(topic, audience string, max int) []string {
	queries := []string{
		topic,
		topic + " overview",
		topic + " recent developments",
	}
	if audience != "" && audience != "general" {
		queries = append(queries, topic+" for "+audience)
	}
	if max < 2 {
		max = 2
	}
	if len(queries) > max {
		queries = queries[:max]
	}
	return queries
}

// scoreAndFilter assigns each document a credibility score and discards
// those below the configured floor, preserving lookup order.
func (s *ResearchStep) scoreAndFilter(docs []knowledge.Document) []research.Source {
	var sources []research.Source
	for _, d := range docs {
		score := reputationFor(d.URL)
		if !d.UpdatedAt.IsZero() && s.now().Sub(d.UpdatedAt) <= recencyWindow {
			score += recencyBonus
		}
		if score > 1 {
			score = 1
		}
		if score < s.cfg.CredibilityFloor {
			continue
		}
		sources = append(sources, research.Source{
			Title:       d.Title,
			URL:         d.URL,
			Snippet:     d.Snippet,
			Credibility: score,
		})
	}
	return sources
}

// reputationFor resolves the base credibility for a URL by walking the
// host up through its parent domains until a table entry matches.
func reputationFor(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return reputationDefault
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for host != "" {
		if rep, ok := domainReputation[host]; ok {
			return rep
		}
		i := strings.Index(host, ".")
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return reputationDefault
}

// confidence averages retained source credibilities, penalized when fewer
// than two sources remain.
func confidence(sources []research.Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, src := range sources {
		sum += src.Credibility
	}
	c := sum / float64(len(sources))
	if len(sources) < 2 {
		c *= lowSourcePenalty
	}
	if c > 1 {
		c = 1
	}
	return c
}

// synthesizeFacts asks the model to distill the retained sources into a
// short fact list. A malformed model response degrades to snippet-derived
// facts; a failed call fails the stage.
func (s *ResearchStep) synthesizeFacts(ctx context.Context, topic string, sources []research.Source) ([]string, error) {
	raw, err := s.model.Complete(ctx, factsSystem, factsPrompt(topic, sources))
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize facts: %v", domain.ErrResearch, err)
	}

	var parsed struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil || len(parsed.Facts) == 0 {
		slog.Warn("fact synthesis returned malformed JSON, falling back to snippets", "topic", topic)
		return fallbackFacts(topic, sources), nil
	}
	return parsed.Facts, nil
}

func factsPrompt(topic string, sources []research.Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Distill the research below about %q into 3 to 6 concise factual statements.\n\n", topic)
	for i, src := range sources {
		fmt.Fprintf(&b, "Source %d: %s (credibility %.2f)\nURL: %s\n%s\n\n",
			i+1, src.Title, src.Credibility, src.URL, truncate(src.Snippet, snippetLimit))
	}
	b.WriteString(`Respond in this JSON format: {"facts": ["fact 1", "fact 2"]}`)
	return b.String()
}

// fallbackFacts derives facts directly from source snippets.
func fallbackFacts(topic string, sources []research.Source) []string {
	var facts []string
	for _, src := range sources {
		if f := firstSentence(src.Snippet); f != "" {
			facts = append(facts, f)
		}
		if len(facts) == 5 {
			break
		}
	}
	if len(facts) == 0 {
		facts = []string{fmt.Sprintf("Overview of %s compiled from %d sources", topic, len(sources))}
	}
	return facts
}

// stripFences removes a markdown code fence around a model response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?"); i > 0 {
		return s[:i+1]
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
