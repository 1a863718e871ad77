package session

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
)

// Manager keeps track of the active sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	total    int64
}

func NewManager() *Manager {
	m := &Manager{sessions: make(map[string]*Session)}
	m.setupMetrics()
	return m
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	m.total++
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.ID())
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ret = append(ret, id)
	}
	slices.Sort(ret)
	return ret
}

func (m *Manager) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("iss.session")
	read := func(f func() int64) metric.Int64Callback {
		return func(_ context.Context, o metric.Int64Observer) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			o.Observe(f())
			return nil
		}
	}
	if _, err := meter.Int64ObservableGauge("iss.session.active",
		metric.WithDescription("Number of connected sessions"),
		metric.WithUnit("{count}"),
		metric.WithInt64Callback(read(func() int64 { return int64(len(m.sessions)) })),
	); err != nil {
		log.Error("failed to register metric", log.ErrorField(err))
	}
	if _, err := meter.Int64ObservableCounter("iss.session.total",
		metric.WithDescription("Number of sessions since start"),
		metric.WithUnit("{count}"),
		metric.WithInt64Callback(read(func() int64 { return m.total })),
	); err != nil {
		log.Error("failed to register metric", log.ErrorField(err))
	}
}

// Handler upgrades requests to websocket connections and runs a session on each.
type Handler struct {
	manager    *Manager
	strategist Strategist
	upgrader   websocket.Upgrader
	baseCtx    context.Context
	opts       []Option
	logger     *log.Logger
}

type HandlerOption func(*Handler)

// WithBaseContext sets the context sessions run in. Hijacked connections are
// not covered by the server shutdown, cancel this context instead.
func WithBaseContext(ctx context.Context) HandlerOption {
	return func(h *Handler) {
		h.baseCtx = ctx
	}
}

// WithSessionOptions are applied to every new session.
func WithSessionOptions(opts ...Option) HandlerOption {
	return func(h *Handler) {
		h.opts = append(h.opts, opts...)
	}
}

func WithCheckOrigin(f func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = f
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewHandler(
	manager *Manager,
	strategist Strategist,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		manager:    manager,
		strategist: strategist,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		baseCtx: context.Background(),
		logger:  log.Default().Named("session"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.logger.Warn("websocket upgrade failed", log.ErrorField(err))
		return
	}
	defer conn.Close()

	s := New(conn, h.strategist, h.opts...)
	h.manager.add(s)
	defer h.manager.remove(s)
	h.logger.Info("client connected",
		log.String("session", s.ID()),
		log.String("remote", r.RemoteAddr))

	if err := s.Run(h.baseCtx); err != nil {
		h.logger.Warn("session terminated", log.String("session", s.ID()), log.ErrorField(err))
	}
}
