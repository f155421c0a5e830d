package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HerbHall/llmrelay/pkg/llm"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Readiness errors reported by Ready.
var (
	ErrDraining    = errors.New("relay is shutting down")
	ErrAtCapacity  = errors.New("relay is at connection capacity")
	errNilProvider = errors.New("ws: provider is required")
)

// Handler accepts relay WebSocket connections. Each connection runs its own
// read → complete → reply loop; connections share only the provider.
type Handler struct {
	cfg      Config
	provider llm.Provider
	hub      *Hub
	metrics  *Metrics
	logger   *zap.Logger

	slots *semaphore.Weighted // nil when connections are unlimited

	// mu orders the draining check against wg.Add so Shutdown never
	// waits on a handler it cannot see.
	mu       sync.Mutex
	draining atomic.Bool
	wg       sync.WaitGroup
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a relay handler. metrics may be nil.
func NewHandler(cfg Config, provider llm.Provider, metrics *Metrics, logger *zap.Logger) (*Handler, error) {
	if provider == nil {
		return nil, errNilProvider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Handler{
		cfg:      cfg,
		provider: provider,
		hub:      NewHub(logger),
		metrics:  metrics,
		logger:   logger,
	}
	if cfg.MaxConnections > 0 {
		h.slots = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	return h, nil
}

// RegisterRoutes mounts the relay on the configured path.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(h.cfg.Path, h)
}

// Ready reports whether the relay can take new connections.
func (h *Handler) Ready(_ context.Context) error {
	if h.draining.Load() {
		return ErrDraining
	}
	if h.cfg.MaxConnections > 0 && h.hub.ClientCount() >= h.cfg.MaxConnections {
		return ErrAtCapacity
	}
	return nil
}

// ActiveConnections returns the number of open relay connections.
func (h *Handler) ActiveConnections() int {
	return h.hub.ClientCount()
}

// ServeHTTP upgrades the request and runs the relay loop until the client
// goes away. It runs on the connection's own goroutine.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		h.metrics.connectionRejected()
		http.Error(w, ErrDraining.Error(), http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	if h.slots != nil {
		if !h.slots.TryAcquire(1) {
			h.metrics.connectionRejected()
			h.logger.Warn("rejecting relay connection at capacity",
				zap.String("remote", r.RemoteAddr),
				zap.Int("max_connections", h.cfg.MaxConnections),
			)
			http.Error(w, ErrAtCapacity.Error(), http.StatusServiceUnavailable)
			return
		}
		defer h.slots.Release(1)
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.metrics.handshakeFailed()
		h.logger.Warn("websocket accept failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	defer conn.CloseNow() //nolint:errcheck
	conn.SetReadLimit(h.cfg.ReadLimit)

	ctx := r.Context()
	callCtx, cancelCalls := context.WithCancel(ctx)
	defer cancelCalls()

	id := uuid.NewString()
	client := &Client{
		id:          id,
		remote:      r.RemoteAddr,
		conn:        conn,
		logger:      h.logger.With(zap.String("conn_id", id)),
		cancelCalls: cancelCalls,
	}

	h.hub.Register(client)
	h.metrics.connectionOpened()
	client.logger.Info("relay connection opened", zap.String("remote", client.remote))

	// Shutdown may have snapshotted the hub before Register.
	if h.draining.Load() {
		conn.Close(websocket.StatusGoingAway, "server shutting down") //nolint:errcheck
	} else {
		h.serve(ctx, callCtx, client)
	}

	h.hub.Unregister(client)
	h.metrics.connectionClosed()
	client.logger.Info("relay connection closed")
}

// serve is the per-connection relay loop. Exactly one upstream call is in
// flight at a time, so replies follow request order.
func (h *Handler) serve(ctx, callCtx context.Context, c *Client) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			logReadEnd(c.logger, err)
			return
		}

		if typ != websocket.MessageText {
			h.metrics.message(OutcomeIgnored)
			c.logger.Debug("ignoring non-text frame", zap.Int("bytes", len(data)))
			continue
		}

		reply, outcome := h.relay(callCtx, c.logger, string(data))
		h.metrics.message(outcome)

		if err := h.write(ctx, c.conn, reply); err != nil {
			c.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

// relay turns one prompt into the reply payload. Upstream error details
// are logged here and never returned to the client.
func (h *Handler) relay(ctx context.Context, logger *zap.Logger, prompt string) (string, Outcome) {
	logger.Debug("relaying prompt", zap.Int("bytes", len(prompt)))

	start := time.Now()
	resp, err := h.complete(ctx, logger, prompt)
	h.metrics.observeUpstream(time.Since(start))

	if err != nil {
		logger.Warn("upstream completion failed",
			zap.String("code", llm.Code(err)),
			zap.Error(err),
		)
		return ErrorReply, OutcomeError
	}
	if !resp.HasContent() {
		return successReply(NoContentReply), OutcomeNoContent
	}
	return successReply(resp.Content), OutcomeSuccess
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, reply string) error {
	if h.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.WriteTimeout)
		defer cancel()
	}
	return conn.Write(ctx, websocket.MessageText, []byte(reply))
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	if len(h.cfg.OriginPatterns) == 0 {
		// No inbound authentication; any origin may connect.
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns}
}

// Shutdown stops accepting new connections, closes open ones with
// StatusGoingAway, and waits for their handlers to return or ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining.Store(true)
	h.mu.Unlock()
	n := h.hub.ClientCount()
	h.logger.Info("draining relay connections", zap.Int("open", n))

	h.hub.CloseAll(websocket.StatusGoingAway, "server shutting down")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers a handler with the shutdown wait group unless the relay
// is draining.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining.Load() {
		return false
	}
	h.wg.Add(1)
	return true
}

// logReadEnd logs why a connection's read side ended.
func logReadEnd(logger *zap.Logger, err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		logger.Debug("client disconnected")
	case websocket.StatusMessageTooBig:
		logger.Info("closing connection: inbound frame exceeds read limit")
	default:
		logger.Debug("websocket read ended", zap.Error(err))
	}
}
