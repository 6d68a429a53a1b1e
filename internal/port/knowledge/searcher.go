// Package knowledge defines the external knowledge-lookup port.
package knowledge

import (
	"context"
	"time"
)

// Document is one candidate source returned by a lookup, before any
// credibility scoring is applied.
type Document struct {
	Title     string
	URL       string
	Snippet   string
	UpdatedAt time.Time
}

// Searcher is the port interface for querying an external knowledge source.
type Searcher interface {
	// Search returns up to limit candidate documents for the query,
	// most relevant first. A query with no matches returns an empty
	// slice and no error.
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}
