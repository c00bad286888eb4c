// Package mcptest reads session responses in tests.
package mcptest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// InitializeBody is a minimal initialize request.
const InitializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`

// InitializedBody is the notification a client sends after a successful handshake.
const InitializedBody = `{"jsonrpc":"2.0","method":"notifications/initialized"}`

// ReadResponse returns the first JSON-RPC response in rec, from a JSON body or an SSE stream.
func ReadResponse(t testing.TB, rec *httptest.ResponseRecorder) *jsonrpc.Response {
	t.Helper()
	for _, payload := range payloads(t, rec) {
		msg, err := jsonrpc.DecodeMessage(payload)
		require.NoError(t, err, "payload %s", payload)
		if resp, ok := msg.(*jsonrpc.Response); ok {
			return resp
		}
	}
	require.FailNow(t, "no JSON-RPC response", "body: %s", rec.Body.String())
	return nil
}

// ReadError returns the error object of the first response in rec.
func ReadError(t testing.TB, rec *httptest.ResponseRecorder) *jsonrpc.Error {
	t.Helper()
	resp := ReadResponse(t, rec)
	var werr *jsonrpc.Error
	require.ErrorAs(t, resp.Error, &werr)
	return werr
}

// ReadHTTPError decodes a transport rejection, which carries no request id.
func ReadHTTPError(t testing.TB, rec *httptest.ResponseRecorder) *jsonrpc.Error {
	t.Helper()
	var body struct {
		Error *jsonrpc.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	require.NotNil(t, body.Error, "body: %s", rec.Body.String())
	return body.Error
}

// ReadToolResult decodes the tools/call result of the first response in rec.
func ReadToolResult(t testing.TB, rec *httptest.ResponseRecorder) *sdk.CallToolResult {
	t.Helper()
	resp := ReadResponse(t, rec)
	require.NoError(t, resp.Error)
	var res sdk.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	return &res
}

// Text returns the text of content block i.
func Text(t testing.TB, res *sdk.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(res.Content), i)
	tc, ok := res.Content[i].(*sdk.TextContent)
	require.True(t, ok, "content %d is %T", i, res.Content[i])
	return tc.Text
}

func payloads(t testing.TB, rec *httptest.ResponseRecorder) [][]byte {
	t.Helper()
	body := rec.Body.Bytes()
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
		return [][]byte{body}
	}

	var out [][]byte
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data:"); ok {
			if data = strings.TrimSpace(data); data != "" {
				out = append(out, []byte(data))
			}
		}
	}
	require.NoError(t, sc.Err())
	return out
}
