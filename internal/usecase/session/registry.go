// Package session maps session identifiers to live per-session protocol state.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchgate/internal/domain"
	"github.com/kailas-cloud/searchgate/internal/mcp"
	"github.com/kailas-cloud/searchgate/internal/metrics"
)

const defaultStoreTimeout = 500 * time.Millisecond

// Session is one client's protocol session and its transport.
type Session struct {
	createdAt time.Time
	transport *mcp.Transport
}

// ID returns the identifier assigned by the handshake, empty while pending.
func (s *Session) ID() string { return s.transport.SessionID() }

// CreatedAt returns when the session object was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Transport returns the owned transport.
func (s *Session) Transport() *mcp.Transport { return s.transport }

// ServeHTTP forwards one HTTP exchange into the session transport.
func (s *Session) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.transport.ServeHTTP(w, r)
}

// Options configures a Registry.
type Options struct {
	// IDGenerator overrides the transport's UUIDv4 session ids.
	IDGenerator  func() string
	Store        PresenceStore // optional
	StoreTimeout time.Duration
	Logger       *zap.Logger
}

// Registry owns every active session of the process.
type Registry struct {
	server *mcp.Server
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry whose sessions are served by server.
func NewRegistry(server *mcp.Server, opts Options) *Registry {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Registry{
		server:   server,
		opts:     opts,
		logger:   l,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// RouteOrCreate returns the active session for id, or a new pending session.
// A pending session joins the registry only once its initialize handshake completes,
// under the id the handshake assigned.
func (r *Registry) RouteOrCreate(id string) (*Session, error) {
	if id != "" {
		if s, ok := r.lookup(id); ok {
			return s, nil
		}
	}
	return r.create()
}

// RouteExisting returns the active session for id. It never creates one.
func (r *Registry) RouteExisting(id string) (*Session, error) {
	if id == "" {
		return nil, domain.ErrSessionIDRequired
	}
	s, ok := r.lookup(id)
	if !ok {
		r.checkForeign(id)
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || s.transport.Closed() {
		return nil, false
	}
	return s, true
}

// checkForeign logs when an unknown id is still present in the shared store,
// which usually means the client was routed to a different instance.
func (r *Registry) checkForeign(id string) {
	if r.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.StoreTimeout)
	defer cancel()
	exists, err := r.opts.Store.Exists(ctx, id)
	if err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues("exists").Inc()
		r.logger.Warn("session store lookup failed", zap.Error(err))
		return
	}
	if exists {
		metrics.SessionEventsTotal.WithLabelValues("foreign").Inc()
		r.logger.Warn("session registered on another instance", zap.String("session_id", id))
	}
}

// Close tears down the session and removes it before returning.
func (r *Registry) Close(id string) error {
	if id == "" {
		return domain.ErrSessionIDRequired
	}
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	// transport.Close fires OnClose, which unregisters.
	s.transport.Close()
	return nil
}

// CloseAll closes every registered session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.transport.Close()
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) create() (*Session, error) {
	s := &Session{createdAt: r.now()}
	t, err := r.server.NewTransport(mcp.TransportOptions{
		SessionIDGenerator: r.opts.IDGenerator,
		OnInitialized:      func(id string) { r.register(id, s) },
		OnClose:            func(id string) { r.unregister(id, s) },
		Logger:             r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.transport = t
	return s, nil
}

func (r *Registry) register(id string, s *Session) {
	r.mu.Lock()
	displaced := r.sessions[id]
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	metrics.SessionEventsTotal.WithLabelValues("created").Inc()
	r.logger.Info("session registered", zap.String("session_id", id), zap.Int("active", n))

	if displaced != nil && displaced != s {
		metrics.SessionEventsTotal.WithLabelValues("replaced").Inc()
		r.logger.Warn("session id reused, previous session replaced", zap.String("session_id", id))
		displaced.transport.Close()
	}

	r.mirror("register", func(ctx context.Context) error {
		return r.opts.Store.Register(ctx, id, s.createdAt)
	})
}

// unregister removes the entry only if it still belongs to s.
func (r *Registry) unregister(id string, s *Session) {
	r.mu.Lock()
	current, ok := r.sessions[id]
	owned := ok && current == s
	if owned {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !owned {
		return
	}

	metrics.SessionsActive.Set(float64(n))
	metrics.SessionEventsTotal.WithLabelValues("closed").Inc()
	r.logger.Info("session closed",
		zap.String("session_id", id),
		zap.Duration("age", r.now().Sub(s.createdAt)),
		zap.Int("active", n),
	)

	r.mirror("remove", func(ctx context.Context) error {
		return r.opts.Store.Remove(ctx, id)
	})
}

func (r *Registry) mirror(op string, fn func(ctx context.Context) error) {
	if r.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.StoreTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues(op).Inc()
		r.logger.Warn("session store update failed", zap.String("op", op), zap.Error(err))
	}
}
