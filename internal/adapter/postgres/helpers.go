package postgres

import "github.com/google/uuid"

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// validID reports whether s parses as a UUID. Lookups with malformed IDs
// are treated as not found instead of surfacing a driver encode error.
func validID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// pgTextArray converts a string slice to a pgx-compatible text array.
// nil slices become empty arrays to avoid SQL NULL.
func pgTextArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
