package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/research"
	"github.com/quillhq/quill/internal/domain/stage"
	"github.com/quillhq/quill/internal/port/llm"
)

// styleTemplates maps each content type to its default writing register,
// used when the request carries no explicit tone.
var styleTemplates = map[request.ContentType]string{
	request.TypeBlogPost:           "conversational and engaging",
	request.TypeArticle:            "informative and professional",
	request.TypeProductDescription: "persuasive and benefit-focused",
	request.TypeSocialMedia:        "concise and attention-grabbing",
	request.TypeEmail:              "personal and action-oriented",
}

// Section budgets: the introduction gets ~1/6 of the requested words, the
// conclusion ~1/8, and the body sections split 70% equally between them.
const (
	introDivisor      = 6
	conclusionDivisor = 8
	bodyBudgetPercent = 70
	wordsPerBodySlot  = 300
	minBodySections   = 2
	maxBodySections   = 5
	conclusionHeading = "Conclusion"

	outlineSystem = "You are an editorial planner. Respond with valid JSON only, no prose around it."
	sectionSystem = "You are a professional writer. Respond with the section text only, no headings or markdown fences."
)

// outline is the model's plan for a piece: a title and body headings.
type outline struct {
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
}

// WriterStep turns a request and its research into a structured draft by
// outlining the piece and generating each section with a language model.
type WriterStep struct {
	model llm.Completer
	cfg   config.Writer
}

// NewWriterStep creates the writing stage implementation.
func NewWriterStep(model llm.Completer, cfg config.Writer) *WriterStep {
	return &WriterStep{model: model, cfg: cfg}
}

// Stage returns the stage this step implements.
func (s *WriterStep) Stage() stage.Name { return stage.NameWriting }

// Execute generates an outline sized to the requested word count, writes
// each section, and assembles the draft with reading time and tag metadata.
// Any model call failure fails the stage; there are no retries here.
func (s *WriterStep) Execute(ctx context.Context, in Input) (*Output, error) {
	req := in.Request
	res := in.Research

	bodyCount := bodySectionCount(req.WordCount)
	ol, err := s.createOutline(ctx, req, res, bodyCount)
	if err != nil {
		return nil, err
	}
	if len(ol.Sections) == 0 {
		return nil, fmt.Errorf("%w: model returned an empty outline", domain.ErrWriting)
	}
	if ol.Title == "" {
		ol.Title = req.Topic
	}

	tone := req.Style["tone"]
	if tone == "" {
		tone = styleTemplates[req.ContentType]
	}

	sections := make([]content.Section, 0, len(ol.Sections)+2)

	introText, err := s.writeSection(ctx, req, res, tone, "Introduction", req.WordCount/introDivisor,
		"Open with a compelling hook and state what readers will take away.")
	if err != nil {
		return nil, err
	}
	sections = append(sections, content.Section{Text: introText})

	perSection := req.WordCount * bodyBudgetPercent / 100 / len(ol.Sections)
	for _, heading := range ol.Sections {
		text, err := s.writeSection(ctx, req, res, tone, heading, perSection, "")
		if err != nil {
			return nil, err
		}
		sections = append(sections, content.Section{Heading: heading, Text: text})
	}

	conclusionText, err := s.writeSection(ctx, req, res, tone, conclusionHeading, req.WordCount/conclusionDivisor,
		"Summarize the key takeaways and close with actionable next steps.")
	if err != nil {
		return nil, err
	}
	sections = append(sections, content.Section{Heading: conclusionHeading, Text: conclusionText})

	piece := &content.Piece{
		RequestID: req.ID,
		Title:     ol.Title,
		Sections:  sections,
		Summary:   summarize(introText, s.cfg.SummaryMaxChars),
		CreatedAt: time.Now().UTC(),
	}
	piece.WordCount = piece.Words()
	piece.ReadingTimeMinutes = readingTime(piece.WordCount, s.cfg.ReadingSpeedWPM)
	piece.Tags = extractKeywords(req.Topic+" "+ol.Title+" "+piece.Body(), s.cfg.MaxTags)

	slog.Debug("draft assembled",
		"request_id", req.ID,
		"title", piece.Title,
		"sections", len(piece.Sections),
		"words", piece.WordCount)

	return &Output{Draft: piece}, nil
}

// bodySectionCount sizes the outline to the requested words, one body
// section per ~300 words, clamped to [2,5].
func bodySectionCount(wordCount int) int {
	n := wordCount / wordsPerBodySlot
	if n < minBodySections {
		return minBodySections
	}
	if n > maxBodySections {
		return maxBodySections
	}
	return n
}

// createOutline asks the model to plan the piece. A failed call fails the
// stage; a malformed response degrades to a static outline.
func (s *WriterStep) createOutline(ctx context.Context, req *request.Request, res *research.Result, bodyCount int) (outline, error) {
	raw, err := s.model.Complete(ctx, outlineSystem, outlinePrompt(req, res, bodyCount))
	if err != nil {
		return outline{}, fmt.Errorf("%w: create outline: %v", domain.ErrWriting, err)
	}

	var ol outline
	if err := json.Unmarshal([]byte(stripFences(raw)), &ol); err != nil || len(ol.Sections) == 0 {
		slog.Warn("outline came back malformed, using static outline", "request_id", req.ID)
		return fallbackOutline(req.Topic, bodyCount), nil
	}
	if len(ol.Sections) > maxBodySections {
		ol.Sections = ol.Sections[:maxBodySections]
	}
	return ol, nil
}

func outlinePrompt(req *request.Request, res *research.Result, bodyCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan a %s about %q for %s, around %d words.\n",
		strings.ReplaceAll(string(req.ContentType), "_", " "), req.Topic, req.TargetAudience, req.WordCount)

	if res != nil && len(res.Facts) > 0 {
		b.WriteString("Ground the plan in these research findings:\n")
		for _, fact := range res.Facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
	}
	for key, val := range styleDirectives(req.Style) {
		fmt.Fprintf(&b, "Style %s: %s\n", key, val)
	}

	fmt.Fprintf(&b, "Return JSON with a \"title\" string and a \"sections\" array of exactly %d body section headings.", bodyCount)
	return b.String()
}

// fallbackOutline is used when the model does not produce usable JSON.
func fallbackOutline(topic string, bodyCount int) outline {
	headings := []string{
		"Understanding " + topic,
		"Applications of " + topic,
		"Challenges and Limitations",
		"The Future of " + topic,
		"Getting Started",
	}
	if bodyCount < len(headings) {
		headings = headings[:bodyCount]
	}
	return outline{Title: topic, Sections: headings}
}

// writeSection generates one section's text. guidance is an optional extra
// instruction for the intro and conclusion.
func (s *WriterStep) writeSection(ctx context.Context, req *request.Request, res *research.Result, tone, heading string, words int, guidance string) (string, error) {
	raw, err := s.model.Complete(ctx, sectionSystem, sectionPrompt(req, res, tone, heading, words, guidance))
	if err != nil {
		return "", fmt.Errorf("%w: write section %q: %v", domain.ErrWriting, heading, err)
	}
	text := strings.TrimSpace(stripFences(raw))
	if text == "" {
		return "", fmt.Errorf("%w: model returned an empty section %q", domain.ErrWriting, heading)
	}
	return text, nil
}

func sectionPrompt(req *request.Request, res *research.Result, tone, heading string, words int, guidance string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the %q section of a %s about %q for %s.\n",
		heading, strings.ReplaceAll(string(req.ContentType), "_", " "), req.Topic, req.TargetAudience)
	fmt.Fprintf(&b, "Tone: %s. Target length: about %d words.\n", tone, words)

	if guidance != "" {
		b.WriteString(guidance)
		b.WriteString("\n")
	}
	if res != nil && len(res.Facts) > 0 {
		b.WriteString("Work in the relevant findings:\n")
		for _, fact := range res.Facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
	}
	for key, val := range styleDirectives(req.Style) {
		fmt.Fprintf(&b, "Style %s: %s\n", key, val)
	}
	return b.String()
}

// styleDirectives returns the style entries to forward to the model. The
// tone key is handled separately; everything else passes through verbatim,
// including keys this service does not recognize.
func styleDirectives(style request.Style) map[string]string {
	out := make(map[string]string, len(style))
	for key, val := range style {
		if key == "tone" {
			continue
		}
		out[key] = val
	}
	return out
}

// summarize takes the first paragraph of text, truncated to at most limit
// characters with a trailing ellipsis when cut.
func summarize(text string, limit int) string {
	paragraph := text
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		paragraph = text[:idx]
	}
	paragraph = strings.TrimSpace(paragraph)

	runes := []rune(paragraph)
	if limit <= 0 || len(runes) <= limit {
		return paragraph
	}
	return string(runes[:limit]) + "..."
}

// readingTime estimates minutes to read at the configured speed, never
// reporting less than one minute.
func readingTime(words, wpm int) int {
	if wpm <= 0 {
		return 1
	}
	minutes := int(math.Round(float64(words) / float64(wpm)))
	if minutes < 1 {
		return 1
	}
	return minutes
}

var wordPattern = regexp.MustCompile(`[a-z]{4,}`)

// stopwords excluded from tag extraction. Frequent English filler that
// would otherwise dominate any frequency count.
var stopwords = map[string]struct{}{
	"that": {}, "with": {}, "have": {}, "this": {}, "will": {},
	"from": {}, "they": {}, "been": {}, "about": {}, "would": {},
	"there": {}, "could": {}, "other": {}, "more": {}, "very": {},
	"what": {}, "know": {}, "just": {}, "first": {}, "into": {},
	"over": {}, "think": {}, "also": {},
}

// extractKeywords pulls the most frequent meaningful words out of the text
// as tags. Ties break alphabetically so the result is deterministic.
func extractKeywords(text string, max int) []string {
	counts := make(map[string]int)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, skip := stopwords[word]; skip {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if max > 0 && len(words) > max {
		words = words[:max]
	}
	return words
}
