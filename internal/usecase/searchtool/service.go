// Package searchtool runs validated searches for the session tool and the single-shot action.
package searchtool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
	"github.com/kailas-cloud/searchgate/internal/domain/search/request"
	"github.com/kailas-cloud/searchgate/internal/domain/search/result"
	"github.com/kailas-cloud/searchgate/internal/validation"
)

// Input is the caller-facing search shape shared by the tool and the action body.
type Input struct {
	Query string   `json:"query" validate:"required,valid_query,max=4096"`
	Rows  *int     `json:"rows,omitempty" validate:"omitempty,min=1,max=100"`
	Start *int     `json:"start,omitempty" validate:"omitempty,min=0"`
	Model *string  `json:"model,omitempty" validate:"omitempty,max=256"`
	Fq    []string `json:"fq,omitempty" validate:"omitempty,max=32,dive,valid_filter"`
}

// Params converts validated input into request parameters.
func (in Input) Params() request.Params {
	return request.Params{
		Query:   in.Query,
		Rows:    in.Rows,
		Start:   in.Start,
		Model:   in.Model,
		Filters: in.Fq,
	}
}

// Output is a successful search.
type Output struct {
	Query  string
	Rows   int
	Start  int
	Result result.Result
}

// Service validates input and calls the upstream searcher.
type Service struct {
	searcher  Searcher
	validator Validator
	secrets   []string
}

// New creates a search tool service. secrets are scrubbed from every classified message.
func New(searcher Searcher, validator Validator, secrets ...string) *Service {
	return &Service{searcher: searcher, validator: validator, secrets: secrets}
}

// Run decodes raw JSON input, validates it and searches.
// Errors are *validation.Error for bad input and *fault.Error for everything else.
func (s *Service) Run(ctx context.Context, raw []byte) (Output, error) {
	in, err := s.Decode(raw)
	if err != nil {
		return Output{}, err
	}
	return s.Search(ctx, in)
}

// Decode parses and validates raw JSON input.
func (s *Service) Decode(raw []byte) (Input, error) {
	var in Input
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return Input{}, decodeIssue(err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return Input{}, &validation.Error{Issues: []validation.Issue{{
			Path:    "$",
			Message: "unexpected data after JSON object",
		}}}
	}
	if err := s.validator.Validate(in); err != nil {
		var ve *validation.Error
		if errors.As(err, &ve) {
			return Input{}, ve
		}
		return Input{}, &validation.Error{Issues: []validation.Issue{{Message: err.Error()}}}
	}
	return in, nil
}

// Search runs an already validated input.
func (s *Service) Search(ctx context.Context, in Input) (Output, error) {
	req, err := request.New(in.Params())
	if err != nil {
		return Output{}, fault.Classify(err, s.secrets...)
	}

	res, err := s.searcher.Search(ctx, req)
	if err != nil {
		return Output{}, fault.Classify(err, s.secrets...)
	}

	start, _ := req.Start()
	return Output{Query: req.Query(), Rows: req.Rows(), Start: start, Result: res}, nil
}

func decodeIssue(err error) *validation.Error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := typeErr.Field
		if path == "" {
			path = "$"
		}
		return &validation.Error{Issues: []validation.Issue{{
			Path:    path,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type.Kind(), typeErr.Value),
		}}}
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return &validation.Error{Issues: []validation.Issue{{
			Path:    strings.Trim(field, `"`),
			Message: "unknown field",
		}}}
	}
	msg := "body must be a JSON object"
	if !strings.Contains(err.Error(), "EOF") {
		msg = "invalid JSON: " + err.Error()
	}
	return &validation.Error{Issues: []validation.Issue{{Path: "$", Message: msg}}}
}
