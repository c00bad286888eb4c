package request

import (
	"strings"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultRows    = 10
	MinRows        = 1
	MaxRows        = 100
)

// Params are the raw caller-supplied search parameters.
// Nil pointers and a nil Filters slice mean "not supplied".
type Params struct {
	Query   string
	Rows    *int
	Start   *int
	Model   *string
	Filters []string
}

// Request is a validated search query.
type Request struct {
	query      string
	rows       int
	start      int
	hasStart   bool
	model      string
	hasModel   bool
	filters    []string
	hasFilters bool
}

// New validates search parameters and applies the rows default.
// An explicit empty Model or Filters is kept: it replaces the deployment default with nothing.
func New(p Params) (Request, error) {
	if strings.TrimSpace(p.Query) == "" {
		return Request{}, fault.New(fault.Validation, "query is required")
	}
	if len(p.Query) > MaxQueryLength {
		return Request{}, fault.Newf(fault.Validation, "query too long (max %d chars)", MaxQueryLength)
	}

	rows := DefaultRows
	if p.Rows != nil {
		rows = *p.Rows
		if rows < MinRows || rows > MaxRows {
			return Request{}, fault.Newf(fault.Validation, "rows must be between %d and %d, got %d", MinRows, MaxRows, rows)
		}
	}

	r := Request{
		query: p.Query,
		rows:  rows,
	}
	if p.Model != nil {
		r.model = *p.Model
		r.hasModel = true
	}
	if p.Start != nil {
		if *p.Start < 0 {
			return Request{}, fault.Newf(fault.Validation, "start must not be negative, got %d", *p.Start)
		}
		r.start = *p.Start
		r.hasStart = true
	}
	if p.Filters != nil {
		r.filters = make([]string, len(p.Filters))
		copy(r.filters, p.Filters)
		r.hasFilters = true
	}
	return r, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Rows returns the number of documents to return.
func (r *Request) Rows() int { return r.rows }

// Start returns the result offset and whether the caller supplied one.
func (r *Request) Start() (int, bool) { return r.start, r.hasStart }

// Model returns the ranking model and whether the caller supplied one.
func (r *Request) Model() (string, bool) { return r.model, r.hasModel }

// Filters returns the filter queries and whether the caller supplied them.
func (r *Request) Filters() ([]string, bool) { return r.filters, r.hasFilters }
