package searchgate

// SearchRequest is one upstream query.
type SearchRequest struct {
	Query string
	Rows  *int // 1..100, default 10
	Start *int
	// Model replaces the client's default ranking model when non-nil.
	// A pointer to "" sends no model at all.
	Model *string
	// Filters replace the client's default filter queries when non-nil.
	// An empty non-nil slice clears them.
	Filters []string
}

// SearchResult holds the documents as returned by the upstream service.
type SearchResult struct {
	Documents []map[string]any
	Total     int
	TookMs    *float64 // nil when the upstream did not report it
}

// Int returns a pointer to v, for SearchRequest.Rows and Start.
func Int(v int) *int { return &v }

// String returns a pointer to v, for SearchRequest.Model.
func String(v string) *string { return &v }
