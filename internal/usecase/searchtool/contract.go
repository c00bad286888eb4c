package searchtool

import (
	"context"

	"github.com/kailas-cloud/searchgate/internal/domain/search/request"
	"github.com/kailas-cloud/searchgate/internal/domain/search/result"
)

// Searcher queries the upstream search service.
type Searcher interface {
	Search(ctx context.Context, req request.Request) (result.Result, error)
}

// Validator checks decoded input against its struct tags.
type Validator interface {
	Validate(i any) error
}
