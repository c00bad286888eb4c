package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// HeaderSessionID carries the session identifier in both directions.
const HeaderSessionID = "Mcp-Session-Id"

// CodeServerError marks transport-level rejections (bad session, not initialized).
const CodeServerError = -32000

const maxBodyBytes = 4 << 20

// TransportOptions configures a session transport.
type TransportOptions struct {
	// SessionIDGenerator returns a fresh unguessable id. Defaults to UUIDv4.
	SessionIDGenerator func() string
	// OnInitialized runs once, after initialize succeeds and before its response is written.
	OnInitialized func(sessionID string)
	// OnClose runs once when an initialized transport closes.
	OnClose func(sessionID string)
	Logger  *zap.Logger
}

// Transport is the streamable HTTP transport of one session: an SDK server
// session plus the handshake state the registry routes on.
type Transport struct {
	server *Server
	opts   TransportOptions
	logger *zap.Logger
	id     string

	stream  *sdk.StreamableServerTransport
	session *sdk.ServerSession

	// handleMu keeps one session's POSTs from overlapping, so they are handled in arrival order.
	handleMu sync.Mutex

	stateMu     sync.Mutex
	initialized bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewTransport connects a fresh SDK session. Its id is fixed now but only
// published once the initialize handshake succeeds.
func (s *Server) NewTransport(opts TransportOptions) (*Transport, error) {
	if opts.SessionIDGenerator == nil {
		opts.SessionIDGenerator = uuid.NewString
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}

	id := opts.SessionIDGenerator()
	if id == "" {
		return nil, errors.New("session id generator returned an empty id")
	}

	t := &Transport{
		server: s,
		opts:   opts,
		logger: l,
		id:     id,
		stream: &sdk.StreamableServerTransport{SessionID: id},
		done:   make(chan struct{}),
	}
	if err := s.connect(t); err != nil {
		return nil, err
	}
	go t.watch()
	return t, nil
}

// watch closes the transport when the SDK ends the session on its own.
func (t *Transport) watch() {
	_ = t.session.Wait()
	t.Close()
}

// SessionID returns the assigned id, empty before initialize.
func (t *Transport) SessionID() string {
	if !t.Initialized() {
		return ""
	}
	return t.id
}

// Initialized reports whether the initialize handshake has completed.
func (t *Transport) Initialized() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.initialized
}

func (t *Transport) markInitialized() {
	t.stateMu.Lock()
	if t.initialized {
		t.stateMu.Unlock()
		return
	}
	t.initialized = true
	t.stateMu.Unlock()

	if t.opts.OnInitialized != nil {
		t.opts.OnInitialized(t.id)
	}
}

// Done is closed when the transport closes.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Closed reports whether Close has run.
func (t *Transport) Closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Close tears the session down. It is idempotent; OnClose fires once for an initialized session.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		if err := t.session.Close(); err != nil {
			t.logger.Debug("mcp session close", zap.Error(err))
		}
		t.server.disconnect(t)

		if t.Initialized() && t.opts.OnClose != nil {
			t.opts.OnClose(t.id)
		}
	})
}

// ServeHTTP dispatches POST (messages), GET (SSE stream) and DELETE (terminate).
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		WriteError(w, http.StatusMethodNotAllowed, CodeServerError, "method not allowed")
	}
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	if t.Closed() {
		WriteError(w, http.StatusNotFound, CodeServerError, "session not found")
		return
	}
	// A session whose handshake did not succeed is discarded.
	defer func() {
		if !t.Initialized() {
			t.Close()
		}
	}()

	if !accepts(r, "application/json") || !accepts(r, "text/event-stream") {
		WriteError(w, http.StatusNotAcceptable, CodeServerError,
			"client must accept both application/json and text/event-stream")
		return
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		WriteError(w, http.StatusUnsupportedMediaType, CodeServerError, "content type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, jsonrpc.CodeInvalidRequest, "request body too large")
			return
		}
		WriteError(w, http.StatusBadRequest, jsonrpc.CodeParseError, "failed to read request body")
		return
	}

	if t.Initialized() {
		if ok := t.checkSession(w, r); !ok {
			return
		}
	} else {
		hasInit, err := containsInitialize(body)
		if errors.Is(err, errInitializeNotAlone) {
			WriteError(w, http.StatusBadRequest, jsonrpc.CodeInvalidRequest, err.Error())
			return
		}
		if err != nil {
			WriteError(w, http.StatusBadRequest, jsonrpc.CodeParseError, "parse error: invalid JSON-RPC message")
			return
		}
		if !hasInit {
			WriteError(w, http.StatusBadRequest, CodeServerError, "bad request: server not initialized")
			return
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	t.handleMu.Lock()
	defer t.handleMu.Unlock()
	t.stream.ServeHTTP(w, r)
}

// checkSession enforces a matching session header. It writes the rejection and returns false on failure.
func (t *Transport) checkSession(w http.ResponseWriter, r *http.Request) bool {
	got := r.Header.Get(HeaderSessionID)
	if got == "" {
		WriteError(w, http.StatusBadRequest, CodeServerError, "bad request: "+HeaderSessionID+" header is required")
		return false
	}
	if got != t.id {
		WriteError(w, http.StatusNotFound, CodeServerError, "session not found")
		return false
	}
	return true
}

func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	if t.Closed() || !t.Initialized() {
		WriteError(w, http.StatusNotFound, CodeServerError, "session not found")
		return
	}
	if !accepts(r, "text/event-stream") {
		WriteError(w, http.StatusNotAcceptable, CodeServerError, "client must accept text/event-stream")
		return
	}
	if ok := t.checkSession(w, r); !ok {
		return
	}

	// The stream stays open for the life of the session.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set(HeaderSessionID, t.id)
	t.stream.ServeHTTP(w, r)
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	if t.Closed() || !t.Initialized() {
		WriteError(w, http.StatusNotFound, CodeServerError, "session not found")
		return
	}
	if ok := t.checkSession(w, r); !ok {
		return
	}
	t.Close()
	w.WriteHeader(http.StatusOK)
}

var errInitializeNotAlone = errors.New("initialize must be sent alone")

// containsInitialize reports whether a single message or batch carries an initialize request.
func containsInitialize(body []byte) (bool, error) {
	body = bytes.TrimSpace(body)
	raws := []json.RawMessage{body}
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &raws); err != nil {
			return false, errors.Wrap(err, "decode batch")
		}
	}
	found := false
	for _, raw := range raws {
		msg, err := jsonrpc.DecodeMessage(raw)
		if err != nil {
			return false, errors.Wrap(err, "decode message")
		}
		if req, ok := msg.(*jsonrpc.Request); ok && req.Method == methodInitialize {
			found = true
		}
	}
	if found && len(raws) > 1 {
		return false, errInitializeNotAlone
	}
	return found, nil
}

func accepts(r *http.Request, mediaType string) bool {
	kind, _, _ := strings.Cut(mediaType, "/")
	for _, v := range r.Header.Values("Accept") {
		for _, part := range strings.Split(v, ",") {
			mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			mt = strings.TrimSpace(mt)
			if mt == mediaType || mt == "*/*" || mt == kind+"/*" {
				return true
			}
		}
	}
	return false
}

// WriteError writes a JSON-RPC error response without an id.
func WriteError(w http.ResponseWriter, status int, code int64, msg string) {
	body, err := jsonrpc.EncodeMessage(&jsonrpc.Response{Error: &jsonrpc.Error{Code: code, Message: msg}})
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
