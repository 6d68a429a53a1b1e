package agent

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/research"
	"github.com/quillhq/quill/internal/port/knowledge"
)

// mockSearcher implements knowledge.Searcher, returning the same documents
// for every query and recording what was asked. Queries run concurrently,
// so the record is guarded.
type mockSearcher struct {
	docs []knowledge.Document
	err  error

	mu      sync.Mutex
	queries []string
}

func (m *mockSearcher) Search(_ context.Context, query string, _ int) ([]knowledge.Document, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.docs, nil
}

// mockCompleter implements llm.Completer with scripted responses. When the
// script runs out the last response repeats. errOn fails that call number
// only; errOn == 0 fails every call once err is set.
type mockCompleter struct {
	responses []string
	err       error
	errOn     int
	calls     int
	prompts   []string
}

func (c *mockCompleter) Complete(_ context.Context, _ string, user string) (string, error) {
	c.calls++
	c.prompts = append(c.prompts, user)
	if c.err != nil && (c.errOn == 0 || c.calls == c.errOn) {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", nil
	}
	idx := c.calls - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func researchConfig() config.Research {
	return config.Research{MaxQueries: 4, ResultsPerQuery: 3, CredibilityFloor: 0.4}
}

func testRequest() *request.Request {
	return &request.Request{
		ID:             "req-1",
		Topic:          "quantum computing",
		ContentType:    request.TypeBlogPost,
		TargetAudience: "general",
		WordCount:      900,
		Status:         request.StatusResearching,
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestResearchExecute(t *testing.T) {
	searcher := &mockSearcher{
		docs: []knowledge.Document{
			{Title: "Quantum computing", URL: "https://en.wikipedia.org/wiki/Quantum_computing", Snippet: "Quantum computing uses qubits. They differ from bits."},
			{Title: "Qubit basics", URL: "https://blog.example.com/qubits", Snippet: "A primer on qubits for newcomers."},
		},
	}
	model := &mockCompleter{
		responses: []string{`{"facts": ["Qubits enable superposition.", "Error correction remains an open problem."]}`},
	}
	step := NewResearchStep(searcher, model, researchConfig())

	out, err := step.Execute(context.Background(), Input{Request: testRequest()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := out.Research
	if res == nil {
		t.Fatal("expected research result, got nil")
	}
	if res.Topic != "quantum computing" {
		t.Errorf("expected topic 'quantum computing', got %q", res.Topic)
	}
	// A "general" audience adds no audience query.
	if len(res.Queries) != 3 {
		t.Errorf("expected 3 queries, got %d: %v", len(res.Queries), res.Queries)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(res.Sources))
	}
	if !approxEqual(res.Sources[0].Credibility, 0.85) {
		t.Errorf("expected wikipedia credibility 0.85, got %v", res.Sources[0].Credibility)
	}
	if !approxEqual(res.Sources[1].Credibility, 0.5) {
		t.Errorf("expected unknown-domain credibility 0.5, got %v", res.Sources[1].Credibility)
	}
	if len(res.Facts) != 2 || res.Facts[0] != "Qubits enable superposition." {
		t.Errorf("unexpected facts: %v", res.Facts)
	}
	if !approxEqual(res.Confidence, (0.85+0.5)/2) {
		t.Errorf("expected confidence 0.675, got %v", res.Confidence)
	}
}

func TestBuildQueries(t *testing.T) {
	tests := []struct {
		name     string
		audience string
		max      int
		want     int
	}{
		{"general audience adds nothing", "general", 4, 3},
		{"empty audience adds nothing", "", 4, 3},
		{"specific audience appended", "developers", 4, 4},
		{"capped at max", "developers", 2, 2},
		{"max below two is raised", "", 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQueries("quantum computing", tt.audience, tt.max)
			if len(got) != tt.want {
				t.Fatalf("expected %d queries, got %d: %v", tt.want, len(got), got)
			}
			if got[0] != "quantum computing" {
				t.Errorf("expected first query to be the topic, got %q", got[0])
			}
		})
	}

	got := buildQueries("quantum computing", "developers", 4)
	if got[len(got)-1] != "quantum computing for developers" {
		t.Errorf("expected audience query last, got %q", got[len(got)-1])
	}
}

func TestResearchDeduplicatesAcrossQueries(t *testing.T) {
	// Every query returns the same document; it must surface once.
	searcher := &mockSearcher{
		docs: []knowledge.Document{
			{Title: "Quantum computing", URL: "https://en.wikipedia.org/wiki/Quantum_computing", Snippet: "Qubits everywhere."},
		},
	}
	model := &mockCompleter{responses: []string{`{"facts": ["One fact."]}`}}
	step := NewResearchStep(searcher, model, researchConfig())

	out, err := step.Execute(context.Background(), Input{Request: testRequest()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Research.Sources) != 1 {
		t.Fatalf("expected 1 deduplicated source, got %d", len(out.Research.Sources))
	}
	if len(searcher.queries) != 3 {
		t.Errorf("expected 3 search calls, got %d", len(searcher.queries))
	}
}

func TestResearchNoSourcesAboveFloor(t *testing.T) {
	searcher := &mockSearcher{
		docs: []knowledge.Document{
			{Title: "Thread", URL: "https://reddit.com/r/quantum/thread", Snippet: "Hot takes."},
		},
	}
	step := NewResearchStep(searcher, &mockCompleter{}, researchConfig())

	_, err := step.Execute(context.Background(), Input{Request: testRequest()})
	if !errors.Is(err, domain.ErrResearch) {
		t.Fatalf("expected ErrResearch, got %v", err)
	}
}

func TestResearchSearchFailure(t *testing.T) {
	searcher := &mockSearcher{err: errors.New("upstream unavailable")}
	step := NewResearchStep(searcher, &mockCompleter{}, researchConfig())

	_, err := step.Execute(context.Background(), Input{Request: testRequest()})
	if !errors.Is(err, domain.ErrResearch) {
		t.Fatalf("expected ErrResearch, got %v", err)
	}
}

func TestResearchModelFailure(t *testing.T) {
	searcher := &mockSearcher{
		docs: []knowledge.Document{
			{Title: "Quantum computing", URL: "https://en.wikipedia.org/wiki/Quantum_computing", Snippet: "Qubits."},
		},
	}
	model := &mockCompleter{err: errors.New("rate limited")}
	step := NewResearchStep(searcher, model, researchConfig())

	_, err := step.Execute(context.Background(), Input{Request: testRequest()})
	if !errors.Is(err, domain.ErrResearch) {
		t.Fatalf("expected ErrResearch, got %v", err)
	}
}

func TestResearchFactFallbackOnMalformedResponse(t *testing.T) {
	searcher := &mockSearcher{
		docs: []knowledge.Document{
			{Title: "Quantum computing", URL: "https://en.wikipedia.org/wiki/Quantum_computing", Snippet: "Quantum computing uses qubits. They differ from bits."},
		},
	}
	model := &mockCompleter{responses: []string{"I am unable to answer in JSON."}}
	step := NewResearchStep(searcher, model, researchConfig())

	out, err := step.Execute(context.Background(), Input{Request: testRequest()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	facts := out.Research.Facts
	if len(facts) != 1 {
		t.Fatalf("expected 1 fallback fact, got %d: %v", len(facts), facts)
	}
	if facts[0] != "Quantum computing uses qubits." {
		t.Errorf("expected first snippet sentence as fact, got %q", facts[0])
	}
}

func TestResearchStripsCodeFences(t *testing.T) {
	searcher := &mockSearcher{
		docs: []knowledge.Document{
			{Title: "Quantum computing", URL: "https://en.wikipedia.org/wiki/Quantum_computing", Snippet: "Qubits."},
		},
	}
	model := &mockCompleter{responses: []string{"```json\n{\"facts\": [\"A fenced fact.\"]}\n```"}}
	step := NewResearchStep(searcher, model, researchConfig())

	out, err := step.Execute(context.Background(), Input{Request: testRequest()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Research.Facts) != 1 || out.Research.Facts[0] != "A fenced fact." {
		t.Errorf("expected fenced JSON to parse, got %v", out.Research.Facts)
	}
}

func TestConfidence(t *testing.T) {
	single := []research.Source{{Credibility: 0.8}}
	if got := confidence(single); !approxEqual(got, 0.6) {
		t.Errorf("expected single-source confidence 0.6, got %v", got)
	}

	pair := []research.Source{{Credibility: 0.8}, {Credibility: 0.6}}
	if got := confidence(pair); !approxEqual(got, 0.7) {
		t.Errorf("expected confidence 0.7, got %v", got)
	}

	if got := confidence(nil); got != 0 {
		t.Errorf("expected zero confidence for no sources, got %v", got)
	}
}

func TestReputationFor(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want float64
	}{
		{"known domain", "https://reuters.com/science/article", 0.8},
		{"www prefix stripped", "https://www.nature.com/articles/x", 0.9},
		{"subdomain walks to parent", "https://en.wikipedia.org/wiki/Go", 0.85},
		{"unknown domain", "https://blog.example.com/post", 0.5},
		{"low-reputation domain", "https://reddit.com/r/golang", 0.35},
		{"empty url", "", 0.5},
		{"unparseable url", "://bad", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reputationFor(tt.url); !approxEqual(got, tt.want) {
				t.Fatalf("reputationFor(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestScoreAndFilterRecencyBonus(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	step := &ResearchStep{
		cfg: researchConfig(),
		now: func() time.Time { return fixed },
	}

	docs := []knowledge.Document{
		{Title: "Fresh", URL: "https://en.wikipedia.org/wiki/Fresh", UpdatedAt: fixed.Add(-24 * time.Hour)},
		{Title: "Stale", URL: "https://en.wikipedia.org/wiki/Stale", UpdatedAt: fixed.Add(-2 * 365 * 24 * time.Hour)},
		{Title: "Capped", URL: "https://www.nature.com/articles/new", UpdatedAt: fixed.Add(-time.Hour)},
	}

	sources := step.scoreAndFilter(docs)
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sources))
	}
	if !approxEqual(sources[0].Credibility, 0.95) {
		t.Errorf("expected fresh source at 0.95, got %v", sources[0].Credibility)
	}
	if !approxEqual(sources[1].Credibility, 0.85) {
		t.Errorf("expected stale source at base 0.85, got %v", sources[1].Credibility)
	}
	if !approxEqual(sources[2].Credibility, 1.0) {
		t.Errorf("expected credibility capped at 1.0, got %v", sources[2].Credibility)
	}
}
