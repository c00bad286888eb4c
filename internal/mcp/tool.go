package mcp

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolHandler executes one tool call with the raw arguments object. Returning an
// error yields an isError result; it never terminates the session.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*sdk.CallToolResult, error)

// Tool is a callable tool advertised through tools/list.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// TextResult returns a successful single-text result.
func TextResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

// ErrorResult returns a single-text result flagged as an error.
func ErrorResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}, IsError: true}
}

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)
