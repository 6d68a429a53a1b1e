package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/research"
)

func writerConfig() config.Writer {
	return config.Writer{ReadingSpeedWPM: 225, MaxTags: 8, SummaryMaxChars: 150}
}

func testResearchResult() *research.Result {
	return &research.Result{
		Topic: "quantum computing",
		Sources: []research.Source{
			{Title: "Quantum computing", URL: "https://en.wikipedia.org/wiki/Quantum_computing", Credibility: 0.85},
		},
		Facts:      []string{"Qubits enable superposition."},
		Confidence: 0.8,
	}
}

const outlineJSON = `{"title": "Quantum Computing in Practice", "sections": ["How Qubits Work", "Current Hardware", "What Comes Next"]}`

func TestWriterExecute(t *testing.T) {
	model := &mockCompleter{
		responses: []string{
			outlineJSON,
			"Quantum computing promises real breakthroughs.\n\nThis piece walks through the state of the field.",
			"Qubits hold superpositions of states, and entanglement links them together for computation.",
			"Hardware today remains noisy, with error rates limiting circuit depth on every platform.",
			"Researchers expect steady progress toward fault tolerance over the coming decade.",
			"Quantum computing will reshape several industries once the hardware matures.",
		},
	}
	step := NewWriterStep(model, writerConfig())

	out, err := step.Execute(context.Background(), Input{Request: testRequest(), Research: testResearchResult()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	piece := out.Draft
	if piece == nil {
		t.Fatal("expected a draft, got nil")
	}

	// 900 words gives 3 body sections, plus intro and conclusion.
	if len(piece.Sections) != 5 {
		t.Fatalf("expected 5 sections, got %d", len(piece.Sections))
	}
	if piece.Sections[0].Heading != "" {
		t.Errorf("expected intro without heading, got %q", piece.Sections[0].Heading)
	}
	if piece.Sections[1].Heading != "How Qubits Work" {
		t.Errorf("expected first body heading from outline, got %q", piece.Sections[1].Heading)
	}
	if piece.Sections[4].Heading != "Conclusion" {
		t.Errorf("expected conclusion last, got %q", piece.Sections[4].Heading)
	}

	if piece.Title != "Quantum Computing in Practice" {
		t.Errorf("expected outline title, got %q", piece.Title)
	}
	if piece.RequestID != "req-1" {
		t.Errorf("expected request id 'req-1', got %q", piece.RequestID)
	}
	if piece.WordCount != piece.Words() {
		t.Errorf("word count %d does not match computed %d", piece.WordCount, piece.Words())
	}
	if piece.ReadingTimeMinutes < 1 {
		t.Errorf("expected reading time of at least 1 minute, got %d", piece.ReadingTimeMinutes)
	}
	if piece.Summary != "Quantum computing promises real breakthroughs." {
		t.Errorf("expected summary from first intro paragraph, got %q", piece.Summary)
	}
	if len(piece.Tags) == 0 {
		t.Error("expected tags to be extracted")
	}

	if model.calls != 6 {
		t.Errorf("expected 6 model calls (outline + 5 sections), got %d", model.calls)
	}
}

func TestWriterOutlineMalformedFallsBack(t *testing.T) {
	model := &mockCompleter{
		responses: []string{
			"Here is my plan, in plain prose.",
			"Section text with enough words to count.",
		},
	}
	step := NewWriterStep(model, writerConfig())

	out, err := step.Execute(context.Background(), Input{Request: testRequest(), Research: testResearchResult()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	piece := out.Draft
	if piece.Title != "quantum computing" {
		t.Errorf("expected topic as fallback title, got %q", piece.Title)
	}
	if len(piece.Sections) != 5 {
		t.Fatalf("expected 5 sections, got %d", len(piece.Sections))
	}
	if piece.Sections[1].Heading != "Understanding quantum computing" {
		t.Errorf("expected static fallback heading, got %q", piece.Sections[1].Heading)
	}
}

func TestWriterOutlineCallFails(t *testing.T) {
	model := &mockCompleter{err: errors.New("rate limited"), errOn: 1}
	step := NewWriterStep(model, writerConfig())

	_, err := step.Execute(context.Background(), Input{Request: testRequest(), Research: testResearchResult()})
	if !errors.Is(err, domain.ErrWriting) {
		t.Fatalf("expected ErrWriting, got %v", err)
	}
}

func TestWriterSectionCallFails(t *testing.T) {
	// Call 1 is the outline, call 2 the intro, call 3 the first body section.
	model := &mockCompleter{
		responses: []string{outlineJSON, "Intro text."},
		err:       errors.New("rate limited"),
		errOn:     3,
	}
	step := NewWriterStep(model, writerConfig())

	_, err := step.Execute(context.Background(), Input{Request: testRequest(), Research: testResearchResult()})
	if !errors.Is(err, domain.ErrWriting) {
		t.Fatalf("expected ErrWriting, got %v", err)
	}
}

func TestWriterEmptySectionFails(t *testing.T) {
	model := &mockCompleter{responses: []string{outlineJSON, "   "}}
	step := NewWriterStep(model, writerConfig())

	_, err := step.Execute(context.Background(), Input{Request: testRequest(), Research: testResearchResult()})
	if !errors.Is(err, domain.ErrWriting) {
		t.Fatalf("expected ErrWriting, got %v", err)
	}
}

func TestWriterOversizedOutlineTruncated(t *testing.T) {
	model := &mockCompleter{
		responses: []string{
			`{"title": "Big Plan", "sections": ["A", "B", "C", "D", "E", "F", "G"]}`,
			"Body text for every remaining call.",
		},
	}
	req := testRequest()
	req.WordCount = 5000
	step := NewWriterStep(model, writerConfig())

	out, err := step.Execute(context.Background(), Input{Request: req, Research: testResearchResult()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Five body sections at most, plus intro and conclusion.
	if len(out.Draft.Sections) != 7 {
		t.Fatalf("expected 7 sections, got %d", len(out.Draft.Sections))
	}
}

func TestWriterStyleDirectives(t *testing.T) {
	model := &mockCompleter{responses: []string{outlineJSON, "Section text."}}
	req := testRequest()
	req.Style = request.Style{"tone": "playful", "reading_level": "advanced"}
	step := NewWriterStep(model, writerConfig())

	if _, err := step.Execute(context.Background(), Input{Request: req, Research: testResearchResult()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	intro := model.prompts[1]
	if !strings.Contains(intro, "Tone: playful") {
		t.Errorf("expected custom tone in prompt, got:\n%s", intro)
	}
	if !strings.Contains(intro, "Style reading_level: advanced") {
		t.Errorf("expected unrecognized style key forwarded, got:\n%s", intro)
	}
}

func TestWriterDefaultTone(t *testing.T) {
	model := &mockCompleter{responses: []string{outlineJSON, "Section text."}}
	step := NewWriterStep(model, writerConfig())

	if _, err := step.Execute(context.Background(), Input{Request: testRequest(), Research: testResearchResult()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(model.prompts[1], "conversational and engaging") {
		t.Errorf("expected blog post default tone in prompt, got:\n%s", model.prompts[1])
	}
}

func TestBodySectionCount(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{100, 2},
		{599, 2},
		{600, 2},
		{900, 3},
		{1200, 4},
		{1500, 5},
		{5000, 5},
	}
	for _, tt := range tests {
		if got := bodySectionCount(tt.words); got != tt.want {
			t.Errorf("bodySectionCount(%d) = %d, want %d", tt.words, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	got := summarize("First paragraph here.\n\nSecond paragraph.", 150)
	if got != "First paragraph here." {
		t.Errorf("expected first paragraph only, got %q", got)
	}

	long := strings.Repeat("a", 200)
	got = summarize(long, 150)
	if len(got) != 153 || !strings.HasSuffix(got, "...") {
		t.Errorf("expected 150 chars plus ellipsis, got %d chars", len(got))
	}

	if got := summarize("Short.", 150); got != "Short." {
		t.Errorf("expected text under the limit untouched, got %q", got)
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		words int
		wpm   int
		want  int
	}{
		{0, 225, 1},
		{100, 225, 1},
		{450, 225, 2},
		{3375, 225, 15},
		{500, 0, 1},
	}
	for _, tt := range tests {
		if got := readingTime(tt.words, tt.wpm); got != tt.want {
			t.Errorf("readingTime(%d, %d) = %d, want %d", tt.words, tt.wpm, got, tt.want)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "Quantum quantum QUANTUM computing computing qubits that with from and the cat"
	got := extractKeywords(text, 8)
	want := []string{"quantum", "computing", "qubits"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Ties break alphabetically so the result is stable across runs.
	got = extractKeywords("zebra apple zebra apple", 8)
	want = []string{"apple", "zebra"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected alphabetical tie-break %v, got %v", want, got)
	}

	got = extractKeywords("alpha beta gamma delta", 2)
	if len(got) != 2 {
		t.Fatalf("expected keyword list capped at 2, got %v", got)
	}
}
