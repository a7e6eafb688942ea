// Package wstransport multiplexes requests to test servers over persistent
// websockets, correlating replies by sequence number.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	realsync "sync"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/syncbench/tdk/pkg/lib/validate"
	"github.com/syncbench/tdk/pkg/protocol"
)

const (
	DefaultMaxMessageSize = 16 << 20
	DefaultDialTimeout    = 30 * time.Second
	// test servers that dial in are addressed by this port on their host
	inboundServerPort = "5173"
)

var (
	ErrRouterClosed = errors.New("websocket router closed before a response was received")
	ErrNotConnected = errors.New("no websocket connection for test server")
)

// RouterParams configures a Router.
type RouterParams struct {
	Registry       *protocol.Registry
	Dialer         *websocket.Dialer
	MaxMessageSize int64
}

// Router owns every websocket connection of a client session and routes
// inbound frames to the request waiting for them. A single lock guards the
// connection table and the table of in-flight sequence numbers.
type Router struct {
	registry       *protocol.Registry
	dialer         *websocket.Dialer
	upgrader       websocket.Upgrader
	maxMessageSize int64

	mu      sync.Mutex
	conns   map[string]*conn
	waiters map[string][]chan struct{}
	pending map[uint64]*pendingRequest
	closed  bool

	loops realsync.WaitGroup
}

type pendingRequest struct {
	conn   *conn
	future *future
}

// NewRouter creates a router with no connections.
func NewRouter(params RouterParams) (*Router, error) {
	if err := validate.NotNil(params.Registry, "websocket router requires a registry"); err != nil {
		return nil, err
	}
	if params.Dialer == nil {
		params.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultDialTimeout,
		}
	}
	if params.MaxMessageSize <= 0 {
		params.MaxMessageSize = DefaultMaxMessageSize
	}
	r := &Router{
		registry:       params.Registry,
		dialer:         params.Dialer,
		upgrader:       websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		maxMessageSize: params.MaxMessageSize,
		conns:          make(map[string]*conn),
		waiters:        make(map[string][]chan struct{}),
		pending:        make(map[uint64]*pendingRequest),
	}
	r.mu.EnableTracerWithOpts(sync.Opts{
		Threshold: 10 * time.Millisecond,
		Id:        "wstransport.Router.mu",
	})
	return r, nil
}

// Start dials every url concurrently. Each connection is registered under
// its url. Start fails if any dial fails; connections already made stay open
// until Close.
func (r *Router) Start(ctx context.Context, urls ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			return r.Dial(ctx, u)
		})
	}
	return g.Wait()
}

// Dial opens a websocket to url and starts its receive loop.
func (r *Router) Dial(ctx context.Context, url string) error {
	log.Ctx(ctx).Info().Str("url", url).Msg("connecting to test server")
	ws, _, err := r.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connecting to test server at %s: %w", url, err)
	}
	if err := r.attach(ctx, url, ws); err != nil {
		_ = ws.Close()
		return err
	}
	log.Ctx(ctx).Info().Str("url", url).Msg("connected to test server")
	return nil
}

// ServeHTTP accepts a websocket from a test server that dials in, such as a
// browser-hosted one. The connection is registered as
// http://<remote host>:5173, the address requests for that server use.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Ctx(req.Context()).Error().Err(err).Msg("failed to accept websocket")
		return
	}
	key := inboundKey(req.RemoteAddr)
	if err := r.attach(req.Context(), key, ws); err != nil {
		log.Ctx(req.Context()).Error().Err(err).Str("key", key).Msg("rejecting websocket")
		_ = ws.Close()
		return
	}
	log.Ctx(req.Context()).Info().Str("key", key).Msg("websocket connection established")
}

// AwaitConnection blocks until a connection is registered under key.
func (r *Router) AwaitConnection(ctx context.Context, key string) error {
	r.mu.Lock()
	if _, ok := r.conns[key]; ok {
		r.mu.Unlock()
		return nil
	}
	if r.closed {
		r.mu.Unlock()
		return ErrRouterClosed
	}
	ch := make(chan struct{})
	r.waiters[key] = append(r.waiters[key], ch)
	r.mu.Unlock()

	select {
	case <-ch:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return ErrRouterClosed
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for test server %s to connect: %w", key, ctx.Err())
	}
}

// Connected reports whether a connection is registered under key.
func (r *Router) Connected(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[key]
	return ok
}

func (r *Router) attach(ctx context.Context, key string, ws *websocket.Conn) error {
	ws.SetReadLimit(r.maxMessageSize)
	c := newConn(key, ws)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRouterClosed
	}
	if _, exists := r.conns[key]; exists {
		return fmt.Errorf("test server %s is already connected", key)
	}
	r.conns[key] = c
	for _, ch := range r.waiters[key] {
		close(ch)
	}
	delete(r.waiters, key)

	r.loops.Add(1)
	go r.receiveLoop(log.Ctx(ctx).With().Str("ws", key).Logger().WithContext(context.Background()), c)
	return nil
}

// receiveLoop is the only reader of c. It hands each frame to the request
// registered under the frame's ts_id and drops frames nobody waits for.
func (r *Router) receiveLoop(ctx context.Context, c *conn) {
	defer r.loops.Done()
	for {
		msgType, frame, err := c.ws.ReadMessage()
		if err != nil {
			r.failConn(ctx, c, err)
			return
		}
		if msgType != websocket.TextMessage {
			log.Ctx(ctx).Debug().Int("type", msgType).Msg("ignoring non-text websocket frame")
			continue
		}

		seqField := gjson.GetBytes(frame, protocol.FieldSeq)
		if !seqField.Exists() {
			log.Ctx(ctx).Warn().Msg("dropping websocket frame without a sequence number")
			continue
		}
		seq := seqField.Uint()

		r.mu.Lock()
		p, ok := r.pending[seq]
		if ok && p.conn == c {
			delete(r.pending, seq)
			p.future.resolve(frame, nil)
		}
		r.mu.Unlock()

		if !ok || p.conn != c {
			log.Ctx(ctx).Warn().Uint64("seq", seq).Msg("dropping websocket frame for unknown sequence number")
		}
	}
}

// register records seq as in flight on the connection for key.
func (r *Router) register(key string, seq uint64) (*conn, *future, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, ErrRouterClosed
	}
	c, ok := r.conns[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotConnected, key)
	}
	if _, inflight := r.pending[seq]; inflight {
		return nil, nil, fmt.Errorf("sequence number %d is already in flight", seq)
	}
	f := newFuture()
	r.pending[seq] = &pendingRequest{conn: c, future: f}
	return c, f, nil
}

func (r *Router) unregister(seq uint64, f *future) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[seq]; ok && p.future == f {
		delete(r.pending, seq)
	}
}

// roundTrip writes frame on the connection for key and waits for the frame
// carrying the same sequence number.
func (r *Router) roundTrip(ctx context.Context, key string, seq uint64, frame []byte) ([]byte, error) {
	c, f, err := r.register(key, seq)
	if err != nil {
		return nil, err
	}
	if err := c.write(frame); err != nil {
		r.unregister(seq, f)
		return nil, fmt.Errorf("writing to test server %s: %w", key, err)
	}
	reply, err := f.wait(ctx)
	if err != nil {
		r.unregister(seq, f)
		return nil, err
	}
	return reply, nil
}

// failConn removes a broken connection and fails everything waiting on it.
func (r *Router) failConn(ctx context.Context, c *conn, cause error) {
	r.mu.Lock()
	if r.conns[c.key] == c {
		delete(r.conns, c.key)
	}
	failed := 0
	for seq, p := range r.pending {
		if p.conn == c {
			delete(r.pending, seq)
			p.future.resolve(nil, fmt.Errorf("connection to test server %s lost: %w", c.key, cause))
			failed++
		}
	}
	closed := r.closed
	r.mu.Unlock()

	if !closed {
		log.Ctx(ctx).Error().Err(cause).Int("failed_requests", failed).Msg("websocket connection closed")
	}
	_ = c.close()
}

// Close fails every outstanding request and connection wait, closes every
// connection and waits for the receive loops to exit. Closing twice is a no-op.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for seq, p := range r.pending {
		delete(r.pending, seq)
		p.future.resolve(nil, ErrRouterClosed)
	}
	for key, chs := range r.waiters {
		for _, ch := range chs {
			close(ch)
		}
		delete(r.waiters, key)
	}
	conns := make([]*conn, 0, len(r.conns))
	for key, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, key)
	}
	r.mu.Unlock()

	var result *multierror.Error
	for _, c := range conns {
		if err := c.close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("closing connection to %s: %w", c.key, err))
		}
	}
	r.loops.Wait()
	return result.ErrorOrNil()
}

// Transport returns a transport that sends over the connection for key.
func (r *Router) Transport(key string) *Transport {
	return &Transport{router: r, key: key}
}

func inboundKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "127.0.0.1" || host == "::1" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, inboundServerPort)
}
