package chi

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
	"github.com/kailas-cloud/searchgate/internal/domain/search/result"
	"github.com/kailas-cloud/searchgate/internal/logger"
	"github.com/kailas-cloud/searchgate/internal/usecase/searchtool"
	"github.com/kailas-cloud/searchgate/internal/validation"
)

const maxActionBodyBytes = 64 << 10

// Action error codes.
const (
	codeUnauthorized    = "unauthorized"
	codeValidationError = "validation_error"
	codeUpstreamError   = "upstream_error"
)

type actionError struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Issues  []validation.Issue `json:"issues,omitempty"`
}

type actionErrorResponse struct {
	Error actionError `json:"error"`
}

type actionSearchResponse struct {
	Query     string            `json:"query"`
	NumFound  int               `json:"numFound"`
	Start     int               `json:"start"`
	Rows      int               `json:"rows"`
	Docs      []result.Document `json:"docs"`
	RawTookMs *float64          `json:"rawTookMs,omitempty"`
}

// ActionSearch handles POST /gpt-actions/search.
func (s *Server) ActionSearch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBodyBytes))
	if err != nil {
		writeActionError(w, http.StatusBadRequest, actionError{
			Code:    codeValidationError,
			Message: searchtool.InvalidInputMessage,
			Issues:  []validation.Issue{{Path: "$", Message: "request body too large or unreadable"}},
		})
		return
	}

	out, err := s.search.Run(r.Context(), body)
	if err != nil {
		s.handleActionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actionSearchResponse{
		Query:     out.Query,
		NumFound:  out.Result.Total(),
		Start:     out.Start,
		Rows:      out.Rows,
		Docs:      out.Result.Documents(),
		RawTookMs: out.Result.TookMs(),
	})
}

func (s *Server) handleActionError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validation.Error
	if errors.As(err, &ve) {
		writeActionError(w, http.StatusBadRequest, actionError{
			Code:    codeValidationError,
			Message: searchtool.InvalidInputMessage,
			Issues:  ve.Issues,
		})
		return
	}

	fe := fault.Classify(err)
	if fe.Category == fault.Validation {
		writeActionError(w, http.StatusBadRequest, actionError{Code: codeValidationError, Message: fe.Message})
		return
	}

	logger.FromContext(r.Context()).Warn("action search failed",
		zap.String("category", string(fe.Category)),
		zap.String("message", fe.Message),
	)
	writeActionError(w, http.StatusBadGateway, actionError{Code: codeUpstreamError, Message: fe.Message})
}

func writeActionError(w http.ResponseWriter, status int, e actionError) {
	writeJSON(w, status, actionErrorResponse{Error: e})
}

// ActionOpenAPI handles GET /gpt-actions/openapi.json.
func (s *Server) ActionOpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openAPIDocument(serverURL(r)))
}

// serverURL derives the public base URL from the request, honoring a reverse proxy's scheme.
func serverURL(r *http.Request) string {
	if r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func openAPIDocument(baseURL string) map[string]any {
	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       "searchgate actions",
			"version":     "1.0.0",
			"description": "Read-only search against the upstream search service.",
		},
		"paths": map[string]any{
			"/gpt-actions/search": map[string]any{
				"post": map[string]any{
					"operationId": "search",
					"summary":     "Search documents",
					"security":    []any{map[string]any{"apiKey": []any{}}},
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{"schema": searchRequestSchema()},
						},
					},
					"responses": map[string]any{
						"200": jsonResponse("Search results", searchResponseSchema()),
						"400": jsonResponse("Invalid search input", errorSchema()),
						"401": jsonResponse("Missing or invalid API key", errorSchema()),
						"502": jsonResponse("Upstream search failed", errorSchema()),
					},
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{},
			"securitySchemes": map[string]any{
				"apiKey": map[string]any{
					"type": "apiKey",
					"in":   "header",
					"name": HeaderAPIKey,
				},
			},
		},
	}
	if baseURL != "" {
		doc["servers"] = []any{map[string]any{"url": baseURL}}
	}
	return doc
}

func jsonResponse(description string, schema map[string]any) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

func searchRequestSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"query"},
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "minLength": 1},
			"rows":  map[string]any{"type": "integer", "minimum": 1, "maximum": 100, "default": 10},
			"start": map[string]any{"type": "integer", "minimum": 0, "default": 0},
			"model": map[string]any{"type": "string"},
			"fq":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

func searchResponseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":     map[string]any{"type": "string"},
			"numFound":  map[string]any{"type": "integer"},
			"start":     map[string]any{"type": "integer"},
			"rows":      map[string]any{"type": "integer"},
			"docs":      map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
			"rawTookMs": map[string]any{"type": "number"},
		},
	}
}

func errorSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"error": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code":    map[string]any{"type": "string"},
					"message": map[string]any{"type": "string"},
					"issues": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"path":    map[string]any{"type": "string"},
								"message": map[string]any{"type": "string"},
							},
						},
					},
				},
			},
		},
	}
}
