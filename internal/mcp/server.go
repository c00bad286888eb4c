// Package mcp adapts the Model Context Protocol SDK to per-session transports
// that an external registry can route by session id.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const methodInitialize = "initialize"

// InternalErrorMessage is the JSON-RPC error message for a recovered handler panic.
const InternalErrorMessage = "Internal server error"

// Server holds the tool set shared by every session.
type Server struct {
	impl   *sdk.Server
	logger *zap.Logger

	mu       sync.Mutex
	tools    map[string]struct{}
	sessions map[*sdk.ServerSession]*Transport
}

// NewServer creates a server advertising name and version in initialize.
func NewServer(name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:   logger,
		tools:    make(map[string]struct{}),
		sessions: make(map[*sdk.ServerSession]*Transport),
	}
	s.impl = sdk.NewServer(&sdk.Implementation{Name: name, Version: version}, &sdk.ServerOptions{
		Capabilities: &sdk.ServerCapabilities{Tools: &sdk.ToolCapabilities{}},
	})
	s.impl.AddReceivingMiddleware(s.recoverPanics, s.trackHandshake)
	return s
}

// AddTool registers a tool. Names must be unique and the input schema must describe an object.
func (s *Server) AddTool(t Tool) error {
	if t.Name == "" {
		return errors.New("tool name is required")
	}
	if t.Handler == nil {
		return errors.Newf("tool %q has no handler", t.Name)
	}
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	var shape struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(schema, &shape); err != nil {
		return errors.Wrapf(err, "tool %q input schema", t.Name)
	}
	if shape.Type != "object" {
		return errors.Newf("tool %q input schema must have type object", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[t.Name]; ok {
		return errors.Newf("tool %q already registered", t.Name)
	}
	s.tools[t.Name] = struct{}{}

	s.impl.AddTool(&sdk.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}, s.toolHandler(t))
	return nil
}

func (s *Server) toolHandler(t Tool) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 || string(args) == "null" {
			args = json.RawMessage("{}")
		}

		res, err := t.Handler(ctx, args)
		if err != nil {
			s.logger.Warn("tool call failed", zap.String("tool", t.Name), zap.Error(err))
			return ErrorResult(err.Error()), nil
		}
		if res == nil {
			res = &sdk.CallToolResult{Content: []sdk.Content{}}
		}
		return res, nil
	}
}

// recoverPanics turns a handler panic into a JSON-RPC internal error on the same request.
func (s *Server) recoverPanics(next sdk.MethodHandler) sdk.MethodHandler {
	return func(ctx context.Context, method string, req sdk.Request) (res sdk.Result, err error) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.logger.Error("mcp handler panic",
					zap.String("method", method),
					zap.String("panic", fmt.Sprint(rvr)),
					zap.Stack("stacktrace"),
				)
				res, err = nil, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: InternalErrorMessage}
			}
		}()
		return next(ctx, method, req)
	}
}

// trackHandshake marks the owning transport initialized once initialize succeeds.
// It runs before the response is written, so the session is routable by the time
// the client sees its id.
func (s *Server) trackHandshake(next sdk.MethodHandler) sdk.MethodHandler {
	return func(ctx context.Context, method string, req sdk.Request) (sdk.Result, error) {
		if method != methodInitialize {
			return next(ctx, method, req)
		}

		t := s.transportFor(req.GetSession())
		if t != nil && t.Initialized() {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "server already initialized"}
		}

		res, err := next(ctx, method, req)
		if err != nil || t == nil {
			return res, err
		}
		t.markInitialized()
		if ir, ok := res.(*sdk.InitializeResult); ok {
			s.logger.Debug("mcp session initialized", zap.String("protocol_version", ir.ProtocolVersion))
		}
		return res, nil
	}
}

func (s *Server) transportFor(sess sdk.Session) *Transport {
	ss, ok := sess.(*sdk.ServerSession)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[ss]
}

func (s *Server) connect(t *Transport) error {
	// The connection outlives the request that created it.
	ss, err := s.impl.Connect(context.Background(), t.stream, nil)
	if err != nil {
		return errors.Wrap(err, "connect session")
	}
	s.mu.Lock()
	t.session = ss
	s.sessions[ss] = t
	s.mu.Unlock()
	return nil
}

func (s *Server) disconnect(t *Transport) {
	s.mu.Lock()
	delete(s.sessions, t.session)
	s.mu.Unlock()
}

// Connected returns the number of live SDK sessions, pending ones included.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
