// Package client drives a set of test servers: it negotiates the protocol
// version, builds and sends requests, and exposes handles for the servers,
// their databases and their replicators.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/syncbench/tdk/pkg/lib/validate"
	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/recorder"
	"github.com/syncbench/tdk/pkg/system"
	"github.com/syncbench/tdk/pkg/tdkerrors"
	"github.com/syncbench/tdk/pkg/transport"
	"github.com/syncbench/tdk/pkg/transport/httptransport"
	"github.com/syncbench/tdk/pkg/transport/wstransport"
)

const (
	DefaultWSListenAddress = ":10000"
	DefaultConnectTimeout  = 30 * time.Second
)

// ServerInfo locates one test server.
type ServerInfo struct {
	URL       string
	Transport transport.Type
}

// FactoryParams configures a Factory.
type FactoryParams struct {
	Servers []ServerInfo
	// MaxVersion caps the negotiated version. Zero means no cap.
	MaxVersion int
	Registry   *protocol.Registry
	HTTPClient *http.Client
	Recorder   *recorder.Recorder
	// WSListenAddress is where test servers that dial in connect to.
	WSListenAddress  string
	WSMaxMessageSize int64
	ConnectTimeout   time.Duration
	PollSpec         system.PollSpec
	Clock            clock.Clock
}

// Factory owns the client session: its id, the negotiated protocol version
// and one transport per test server.
type Factory struct {
	sessionID  uuid.UUID
	registry   *protocol.Registry
	servers    []ServerInfo
	transports []transport.Transport
	recorder   *recorder.Recorder
	maxVersion int
	pollSpec   system.PollSpec
	clock      clock.Clock

	router         *wstransport.Router
	listenAddress  string
	connectTimeout time.Duration
	listener       *http.Server

	seq atomic.Uint64

	mu       sync.Mutex
	version  int
	sessions map[int]*TestServer
}

// NewFactory creates a factory with a fresh session id. Call Start before
// sending requests to websocket test servers.
func NewFactory(params FactoryParams) (*Factory, error) {
	if err := validate.NotEmpty(params.Servers, "at least one test server is required"); err != nil {
		return nil, err
	}
	if params.Registry == nil {
		registry, err := protocol.NewRegistry()
		if err != nil {
			return nil, err
		}
		params.Registry = registry
	}
	if params.WSListenAddress == "" {
		params.WSListenAddress = DefaultWSListenAddress
	}
	if params.ConnectTimeout <= 0 {
		params.ConnectTimeout = DefaultConnectTimeout
	}

	f := newFactory(params.Registry, nil, params)
	for i, server := range params.Servers {
		t, err := f.newTransport(server, params)
		if err != nil {
			return nil, fmt.Errorf("test server %d: %w", i, err)
		}
		f.transports = append(f.transports, t)
	}

	log.Info().Stringer("session", f.sessionID).Int("servers", len(f.servers)).Msg("request factory created")
	return f, nil
}

func newFactory(registry *protocol.Registry, transports []transport.Transport, params FactoryParams) *Factory {
	if params.PollSpec == (system.PollSpec{}) {
		params.PollSpec = system.DefaultPollSpec()
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	f := &Factory{
		sessionID:      uuid.New(),
		registry:       registry,
		servers:        params.Servers,
		transports:     transports,
		recorder:       params.Recorder,
		maxVersion:     params.MaxVersion,
		pollSpec:       params.PollSpec,
		clock:          params.Clock,
		listenAddress:  params.WSListenAddress,
		connectTimeout: params.ConnectTimeout,
		sessions:       map[int]*TestServer{},
	}
	f.mu.EnableTracerWithOpts(sync.Opts{
		Threshold: 10 * time.Millisecond,
		Id:        "client.Factory.mu",
	})
	return f
}

func (f *Factory) newTransport(server ServerInfo, params FactoryParams) (transport.Transport, error) {
	switch server.Transport {
	case transport.TypeHTTP, "":
		return httptransport.New(server.URL, f.registry, params.HTTPClient)
	case transport.TypeWebSocket:
		if f.router == nil {
			router, err := wstransport.NewRouter(wstransport.RouterParams{
				Registry:       f.registry,
				MaxMessageSize: params.WSMaxMessageSize,
			})
			if err != nil {
				return nil, err
			}
			f.router = router
		}
		return f.router.Transport(websocketKey(server.URL)), nil
	}
	return nil, fmt.Errorf("unknown transport %q", server.Transport)
}

// websocketKey is the router key for a test server url. Servers given by a
// ws:// or wss:// url are dialed; any other url names a server that dials in.
func websocketKey(raw string) string {
	return strings.TrimSuffix(raw, "/")
}

func dialsOut(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "ws" || u.Scheme == "wss")
}

// Start connects to every websocket test server. Servers addressed by a
// ws:// url are dialed; for the others a listener is started and Start waits
// until each has connected.
func (f *Factory) Start(ctx context.Context) error {
	if f.router == nil {
		return nil
	}

	var dial, await []string
	for _, server := range f.servers {
		if server.Transport != transport.TypeWebSocket {
			continue
		}
		if dialsOut(server.URL) {
			dial = append(dial, websocketKey(server.URL))
		} else {
			await = append(await, websocketKey(server.URL))
		}
	}

	if err := f.router.Start(ctx, dial...); err != nil {
		return err
	}
	if len(await) == 0 {
		return nil
	}

	ln, err := net.Listen("tcp", f.listenAddress)
	if err != nil {
		return fmt.Errorf("listening for test servers on %s: %w", f.listenAddress, err)
	}
	f.listener = &http.Server{Handler: f.router, ReadHeaderTimeout: f.connectTimeout}
	go func() {
		if err := f.listener.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("websocket listener stopped")
		}
	}()
	log.Ctx(ctx).Info().Str("address", ln.Addr().String()).Int("servers", len(await)).
		Msg("waiting for test servers to connect")

	ctx, cancel := context.WithTimeout(ctx, f.connectTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range await {
		key := key
		g.Go(func() error {
			return f.router.AwaitConnection(gctx, key)
		})
	}
	return g.Wait()
}

// SessionID identifies this client to the test servers.
func (f *Factory) SessionID() uuid.UUID {
	return f.sessionID
}

// ServerCount is the number of configured test servers.
func (f *Factory) ServerCount() int {
	return len(f.transports)
}

// PollSpec is the default used by waits that are given a zero PollSpec.
func (f *Factory) PollSpec() system.PollSpec {
	return f.pollSpec
}

func (f *Factory) pollSpecOr(spec system.PollSpec) system.PollSpec {
	if spec == (system.PollSpec{}) {
		return f.pollSpec
	}
	return spec
}

// Version is the negotiated protocol version, or 0 before negotiation.
func (f *Factory) Version() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

// SetVersion fixes the protocol version. It can be set only once.
func (f *Factory) SetVersion(version int) error {
	if version < 1 || version > protocol.MaxSupportedVersion {
		return tdkerrors.NewProtocolError("unsupported protocol version %d", version)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.version != 0 {
		return fmt.Errorf("protocol version already set to %d", f.version)
	}
	f.version = version
	log.Info().Stringer("session", f.sessionID).Int("version", version).Msg("request factory initialized")
	return nil
}

// Negotiate asks every test server for its root information concurrently
// and settles on the highest version all of them speak.
func (f *Factory) Negotiate(ctx context.Context) ([]protocol.RootInfo, error) {
	infos := make([]protocol.RootInfo, len(f.transports))
	g, gctx := errgroup.WithContext(ctx)
	for i := range f.transports {
		i := i
		g.Go(func() error {
			info, err := f.Server(i).GetInfo(gctx)
			if err != nil {
				return fmt.Errorf("negotiating with test server %d: %w", i, err)
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	version := protocol.MaxSupportedVersion
	if f.maxVersion > 0 && f.maxVersion < version {
		version = f.maxVersion
	}
	for i, info := range infos {
		if v := protocol.AvailableVersion(info.APIVersion); v < version {
			log.Ctx(ctx).Debug().Int("server", i).Int("version", v).Msg("test server limits protocol version")
			version = v
		}
	}
	if version < 1 {
		return nil, tdkerrors.NewProtocolError("test servers share no supported protocol version")
	}
	if err := f.SetVersion(version); err != nil {
		return nil, err
	}
	return infos, nil
}

// CreateRequest builds a request for payload at the negotiated version. The
// root request is always unversioned.
func (f *Factory) CreateRequest(ctx context.Context, payload protocol.Payload) (*protocol.Request, error) {
	if err := validate.NotNil(payload, "request payload is required"); err != nil {
		return nil, err
	}
	version := 0
	if payload.Kind() != protocol.KindRoot {
		if version = f.Version(); version == 0 {
			return nil, fmt.Errorf("cannot create %s request: protocol version not negotiated", payload.Kind())
		}
	}
	return f.registry.CreateRequest(ctx, payload.Kind(), version, f.sessionID, payload)
}

// SendRequest sends req to the test server at index and records the
// exchange. Each call gets the next sequence number.
func (f *Factory) SendRequest(ctx context.Context, index int, req *protocol.Request) (*protocol.Response, error) {
	if index < 0 || index >= len(f.transports) {
		return nil, fmt.Errorf("no test server at index %d (have %d)", index, len(f.transports))
	}
	seq := f.seq.Add(1)
	body, _ := req.Body()
	exchange := f.recorder.Begin(seq, fmt.Sprintf("%s @ TS-%d", req, index), body)

	resp, err := f.transports[index].Send(ctx, req, seq)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Uint64("seq", seq).Int("server", index).
			Msgf("failed to send %s", req.Kind())
		var detail []byte
		if bad, ok := tdkerrors.AsBadResponse(err); ok {
			if r, ok := bad.Response.(*protocol.Response); ok && r != nil {
				detail = []byte(r.Serialize())
			}
		}
		exchange.Fail(err, detail)
		return nil, err
	}

	exchange.End(resp.String(), []byte(resp.Serialize()))
	return resp, nil
}

// send creates and sends a request in one step.
func (f *Factory) send(ctx context.Context, index int, payload protocol.Payload) (*protocol.Response, error) {
	req, err := f.CreateRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	return f.SendRequest(ctx, index, req)
}

// Close tears down websocket connections and the listener.
func (f *Factory) Close() error {
	var result *multierror.Error
	if f.listener != nil {
		if err := f.listener.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if f.router != nil {
		if err := f.router.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
