package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/searchgate/internal/mcp/mcptest"
)

const pingBody = `{"jsonrpc":"2.0","id":2,"method":"ping"}`

type transportFixture struct {
	server      *Server
	transport   *Transport
	initialized []string
	closed      []string
	mu          sync.Mutex
}

func newFixture(t *testing.T) *transportFixture {
	t.Helper()
	f := &transportFixture{server: newTestServer(t)}
	var n atomic.Int32
	tr, err := f.server.NewTransport(TransportOptions{
		SessionIDGenerator: func() string {
			return fmt.Sprintf("session-%d", n.Add(1))
		},
		OnInitialized: func(id string) {
			f.mu.Lock()
			f.initialized = append(f.initialized, id)
			f.mu.Unlock()
		},
		OnClose: func(id string) {
			f.mu.Lock()
			f.closed = append(f.closed, id)
			f.mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	f.transport = tr
	return f
}

func do(t *testing.T, h http.Handler, method, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (f *transportFixture) initialize(t *testing.T) string {
	t.Helper()
	rec := do(t, f.transport, http.MethodPost, "", mcptest.InitializeBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, id)
	return id
}

func TestTransport_Initialize(t *testing.T) {
	f := newFixture(t)
	require.Empty(t, f.transport.SessionID(), "id hidden before the handshake")

	id := f.initialize(t)

	require.Equal(t, "session-1", id)
	require.Equal(t, id, f.transport.SessionID())
	require.True(t, f.transport.Initialized())
	require.Equal(t, []string{id}, f.initialized)
}

func TestTransport_InitializeTwiceRejected(t *testing.T) {
	f := newFixture(t)
	id := f.initialize(t)

	rec := do(t, f.transport, http.MethodPost, id, mcptest.InitializeBody)
	werr := mcptest.ReadError(t, rec)
	require.Equal(t, int64(jsonrpc.CodeInvalidRequest), werr.Code)
	require.Len(t, f.initialized, 1)
}

func TestTransport_InitializeInBatchRejected(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.transport, http.MethodPost, "", `[`+mcptest.InitializeBody+`,`+pingBody+`]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(jsonrpc.CodeInvalidRequest), mcptest.ReadHTTPError(t, rec).Code)
	require.Empty(t, f.transport.SessionID())
	require.True(t, f.transport.Closed(), "failed handshake discards the session")
}

func TestTransport_RequestBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.transport, http.MethodPost, "", pingBody)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(CodeServerError), mcptest.ReadHTTPError(t, rec).Code)
	require.True(t, f.transport.Closed())
	require.Empty(t, f.closed)
}

func TestTransport_SessionHeader(t *testing.T) {
	f := newFixture(t)
	id := f.initialize(t)

	require.Equal(t, http.StatusBadRequest, do(t, f.transport, http.MethodPost, "", pingBody).Code)
	require.Equal(t, http.StatusNotFound, do(t, f.transport, http.MethodPost, "other", pingBody).Code)

	rec := do(t, f.transport, http.MethodPost, id, pingBody)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := mcptest.ReadResponse(t, rec)
	require.NoError(t, resp.Error)
	require.Equal(t, int64(2), resp.ID.Raw())
}

func TestTransport_NotificationAccepted(t *testing.T) {
	f := newFixture(t)
	id := f.initialize(t)

	rec := do(t, f.transport, http.MethodPost, id, mcptest.InitializedBody)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestTransport_ParseError(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.transport, http.MethodPost, "", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(jsonrpc.CodeParseError), mcptest.ReadHTTPError(t, rec).Code)
}

func TestTransport_HeaderChecks(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(mcptest.InitializeBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	f.transport.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotAcceptable, rec.Code)

	f = newFixture(t)
	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(mcptest.InitializeBody))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "*/*")
	rec = httptest.NewRecorder()
	f.transport.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	f = newFixture(t)
	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(mcptest.InitializeBody))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/*, text/*")
	rec = httptest.NewRecorder()
	f.transport.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTransport_BodyTooLarge(t *testing.T) {
	f := newFixture(t)
	big := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"pad":"` + strings.Repeat("x", maxBodyBytes) + `"}}`
	rec := do(t, f.transport, http.MethodPost, "", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTransport_Delete(t *testing.T) {
	f := newFixture(t)
	id := f.initialize(t)

	rec := do(t, f.transport, http.MethodDelete, id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, f.transport.Closed())
	require.Equal(t, []string{id}, f.closed)
	require.Equal(t, 0, f.server.Connected())

	rec = do(t, f.transport, http.MethodPost, id, pingBody)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransport_CloseIdempotent(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	f.transport.Close()
	f.transport.Close()

	require.Len(t, f.closed, 1)
	select {
	case <-f.transport.Done():
	default:
		t.Fatal("Done() not closed")
	}
}

func TestTransport_CloseBeforeInitializeSkipsCallback(t *testing.T) {
	f := newFixture(t)
	f.transport.Close()
	require.Empty(t, f.closed)
}

func TestTransport_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.transport, http.MethodPut, "", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Contains(t, rec.Header().Get("Allow"), "POST")
}

func TestTransport_SSEStream(t *testing.T) {
	f := newFixture(t)
	id := f.initialize(t)

	srv := httptest.NewServer(f.transport)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(HeaderSessionID, id)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, id, resp.Header.Get(HeaderSessionID))

	// second stream on the same session conflicts while the first is open
	second, err := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	second.Header = req.Header.Clone()
	resp2, err := http.DefaultClient.Do(second)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusConflict, resp2.StatusCode)

	// closing the session ends the stream
	f.transport.Close()
	_, err = io.Copy(io.Discard, bufio.NewReader(resp.Body))
	require.NoError(t, err)
}

func TestTransport_GetRequiresEventStream(t *testing.T) {
	f := newFixture(t)
	id := f.initialize(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", http.NoBody)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderSessionID, id)
	rec := httptest.NewRecorder()
	f.transport.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestTransport_GetBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/mcp", http.NoBody)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	f.transport.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransport_SerializesHandling(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	s := NewServer("searchgate", "test", nil)
	require.NoError(t, s.AddTool(Tool{
		Name: "slow",
		Handler: func(context.Context, json.RawMessage) (*sdk.CallToolResult, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return TextResult("done"), nil
		},
	}))
	tr, id := newSession(t, s)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"slow"}}`, i+10)
			rec := do(t, tr, http.MethodPost, id, body)
			if rec.Code != http.StatusOK {
				t.Errorf("status %d: %s", rec.Code, rec.Body.String())
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxInFlight.Load())
}

func TestTransport_DefaultGeneratorIsUUID(t *testing.T) {
	_, id := newSession(t, newTestServer(t))
	require.Len(t, id, 36)
}

func TestNewTransport_EmptyIDRejected(t *testing.T) {
	_, err := newTestServer(t).NewTransport(TransportOptions{SessionIDGenerator: func() string { return "" }})
	require.Error(t, err)
}
