package searchtool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
	"github.com/kailas-cloud/searchgate/internal/domain/search/result"
	"github.com/kailas-cloud/searchgate/internal/mcp"
	"github.com/kailas-cloud/searchgate/internal/validation"
)

// Tool identity advertised through tools/list.
const (
	ToolName        = "upstream_search"
	ToolDescription = "Query the upstream search service in read-only mode"
)

// InvalidInputMessage is the message of every validation failure payload.
const InvalidInputMessage = "Invalid search input"

var inputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1, "description": "Search query text"},
    "rows": {"type": "integer", "minimum": 1, "maximum": 100, "description": "Number of documents to return (default 10)"},
    "start": {"type": "integer", "minimum": 0, "description": "Result offset"},
    "model": {"type": "string", "description": "Ranking model; replaces the deployment default"},
    "fq": {"type": "array", "items": {"type": "string"}, "description": "Filter queries; replace the deployment defaults"}
  },
  "required": ["query"],
  "additionalProperties": false
}`)

type toolError struct {
	Category fault.Category     `json:"category"`
	Message  string             `json:"message"`
	Issues   []validation.Issue `json:"issues,omitempty"`
}

type structuredOutput struct {
	Total     int               `json:"total"`
	RawTookMs *float64          `json:"rawTookMs,omitempty"`
	Documents []result.Document `json:"documents"`
}

// Tool returns the protocol tool backed by this service.
func (s *Service) Tool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolName,
		Description: ToolDescription,
		InputSchema: inputSchema,
		Handler:     s.Call,
	}
}

// Call handles tools/call. Failures become isError results, never Go errors.
func (s *Service) Call(ctx context.Context, args json.RawMessage) (*sdk.CallToolResult, error) {
	out, err := s.Run(ctx, args)
	if err != nil {
		return errorResult(err, s.secrets), nil
	}

	res := out.Result
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: fmt.Sprintf("Found %d documents", res.Total())}},
		StructuredContent: structuredOutput{
			Total:     res.Total(),
			RawTookMs: res.TookMs(),
			Documents: res.Documents(),
		},
	}, nil
}

func errorResult(err error, secrets []string) *sdk.CallToolResult {
	var payload toolError
	var ve *validation.Error
	if errors.As(err, &ve) {
		payload = toolError{Category: fault.Validation, Message: InvalidInputMessage, Issues: ve.Issues}
	} else {
		fe := fault.Classify(err, secrets...)
		payload = toolError{Category: fe.Category, Message: fe.Message}
	}

	b, mErr := json.Marshal(payload)
	if mErr != nil {
		return mcp.ErrorResult(`{"category":"upstream_error","message":"` + fault.UnknownMessage + `"}`)
	}
	return mcp.ErrorResult(string(b))
}
