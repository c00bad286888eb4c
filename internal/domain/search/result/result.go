package result

// Document is one schemaless upstream record, passed through untouched.
type Document = map[string]any

// Result is the outcome of one upstream search.
type Result struct {
	documents []Document
	total     int
	tookMs    *float64
}

// New creates a search result. A nil documents slice is normalized to empty.
func New(documents []Document, total int, tookMs *float64) Result {
	if documents == nil {
		documents = []Document{}
	}
	return Result{documents: documents, total: total, tookMs: tookMs}
}

// Documents returns the matched records in upstream order.
func (r *Result) Documents() []Document { return r.documents }

// Total returns the total number of matches reported upstream.
func (r *Result) Total() int { return r.total }

// TookMs returns the upstream-reported latency, nil when not reported.
func (r *Result) TookMs() *float64 { return r.tookMs }
