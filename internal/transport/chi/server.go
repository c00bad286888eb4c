package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchgate/internal/domain"
	"github.com/kailas-cloud/searchgate/internal/logger"
	"github.com/kailas-cloud/searchgate/internal/mcp"
	healthuc "github.com/kailas-cloud/searchgate/internal/usecase/health"
	"github.com/kailas-cloud/searchgate/internal/usecase/searchtool"
	sessionuc "github.com/kailas-cloud/searchgate/internal/usecase/session"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the session endpoints, the single-shot action endpoints and health checks.
type Server struct {
	sessions      *sessionuc.Registry
	search        *searchtool.Service
	health        *healthuc.Service
	actionsKey    string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the gateway HTTP server. An empty actionsKey disables /gpt-actions.
func NewServer(
	sessions *sessionuc.Registry,
	search *searchtool.Service,
	health *healthuc.Service,
	actionsKey string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		sessions:   sessions,
		search:     search,
		health:     health,
		actionsKey: actionsKey,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionIDRequired, http.StatusBadRequest, "Missing mcp-session-id"),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, "Unknown session"),
	}
	return s
}

// ActionsEnabled reports whether the single-shot action endpoints are mounted.
func (s *Server) ActionsEnabled() bool { return s.actionsKey != "" }

// HandleSessionPost handles POST /mcp (initiate-or-continue).
func (s *Server) HandleSessionPost(w http.ResponseWriter, r *http.Request) {
	defer s.recoverRPC(w, r)

	sess, err := s.sessions.RouteOrCreate(r.Header.Get(mcp.HeaderSessionID))
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to create session", zap.Error(err))
		mcp.WriteError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, mcp.InternalErrorMessage)
		return
	}
	sess.ServeHTTP(w, r)
}

// HandleSessionStream handles GET /mcp (continue-stream).
func (s *Server) HandleSessionStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.RouteExisting(r.Header.Get(mcp.HeaderSessionID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, sessionError{Error: "Missing or invalid mcp-session-id"})
		return
	}
	sess.ServeHTTP(w, r)
}

// HandleSessionDelete handles DELETE /mcp (terminate).
func (s *Server) HandleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Header.Get(mcp.HeaderSessionID)); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Healthz handles GET /healthz. Liveness only, always 200.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Readyz handles GET /readyz.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if !report.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readinessResponse{Status: string(report.Status), Checks: report.Checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type sessionError struct {
	Error string `json:"error"`
}

type readinessResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// recoverRPC turns a handler panic into a JSON-RPC internal error instead of a dropped connection.
func (s *Server) recoverRPC(w http.ResponseWriter, r *http.Request) {
	rvr := recover()
	if rvr == nil {
		return
	}
	if rvr == http.ErrAbortHandler {
		panic(rvr)
	}
	logger.FromContext(r.Context()).Error("session handler panic",
		zap.Any("panic", rvr),
		zap.Stack("stacktrace"),
	)
	mcp.WriteError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, mcp.InternalErrorMessage)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, msg string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeJSON(w, status, sessionError{Error: msg})
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	logger.FromContext(r.Context()).Error("internal error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, sessionError{Error: "internal error"})
}
