// Package wikipedia implements the knowledge.Searcher port against the
// MediaWiki search API.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/port/knowledge"
	"github.com/quillhq/quill/internal/resilience"
)

// maxResultsPerQuery caps srlimit; the MediaWiki API rejects larger values
// for anonymous clients.
const maxResultsPerQuery = 50

// Client queries the MediaWiki search API.
type Client struct {
	apiURL     string
	userAgent  string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ knowledge.Searcher = (*Client)(nil)

// NewClient builds a search client from configuration.
func NewClient(cfg config.Wikipedia) *Client {
	return &Client{
		apiURL:    cfg.URL,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title     string    `json:"title"`
			Snippet   string    `json:"snippet"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"search"`
	} `json:"query"`
}

// Search runs a full-text search and returns up to limit documents.
// No matches is not an error: an empty slice comes back.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]knowledge.Document, error) {
	if limit <= 0 {
		limit = 3
	}
	if limit > maxResultsPerQuery {
		limit = maxResultsPerQuery
	}

	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(limit)},
		"srprop":   {"snippet|timestamp"},
		"format":   {"json"},
	}
	reqURL := c.apiURL + "?" + params.Encode()

	var parsed searchResponse
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("wikipedia API request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("wikipedia API returned HTTP %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("parse wikipedia response: %w", err)
		}
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(ctx, call); err != nil {
			return nil, err
		}
	} else if err := call(ctx); err != nil {
		return nil, err
	}

	docs := make([]knowledge.Document, 0, len(parsed.Query.Search))
	for _, r := range parsed.Query.Search {
		docs = append(docs, knowledge.Document{
			Title:     r.Title,
			URL:       pageURL(r.Title),
			Snippet:   stripMarkup(r.Snippet),
			UpdatedAt: r.Timestamp,
		})
	}
	return docs, nil
}

// pageURL builds the canonical article URL for a page title.
func pageURL(title string) string {
	return "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// stripMarkup flattens the HTML the search API embeds in snippets
// (searchmatch spans, entities) down to plain text.
func stripMarkup(snippet string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		return snippet
	}
	return strings.TrimSpace(doc.Text())
}
