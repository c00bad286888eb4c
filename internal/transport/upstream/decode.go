package upstream

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/kailas-cloud/searchgate/internal/domain/search/result"
)

// payload covers both upstream shapes: documents under a "response" envelope, or at the top level.
type payload struct {
	Response *struct {
		Docs     []result.Document `json:"docs"`
		NumFound *json.Number      `json:"numFound"`
	} `json:"response"`
	Docs           []result.Document `json:"docs"`
	Total          *json.Number      `json:"total"`
	Took           *json.Number      `json:"took"`
	ResponseHeader *struct {
		QTime *json.Number `json:"QTime"`
	} `json:"responseHeader"`
}

// decode parses the body with UseNumber so document values pass through without float rounding.
func decode(r io.Reader) (result.Result, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var p payload
	if err := dec.Decode(&p); err != nil {
		return result.Result{}, errors.Wrap(err, "decode upstream response")
	}

	var docs []result.Document
	var count *json.Number
	if p.Response != nil {
		docs = p.Response.Docs
		count = p.Response.NumFound
	}
	if docs == nil {
		docs = p.Docs
	}
	if count == nil {
		count = p.Total
	}

	total := len(docs)
	if count != nil {
		if n, err := count.Int64(); err == nil {
			total = int(n)
		} else if f, err := count.Float64(); err == nil {
			total = int(f)
		}
	}

	var took *float64
	switch {
	case p.Took != nil:
		took = numberPtr(*p.Took)
	case p.ResponseHeader != nil && p.ResponseHeader.QTime != nil:
		took = numberPtr(*p.ResponseHeader.QTime)
	}

	return result.New(docs, total, took), nil
}

func numberPtr(n json.Number) *float64 {
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
