// Package httptransport sends each request as its own HTTP exchange.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/tdkerrors"
	"github.com/syncbench/tdk/pkg/transport"
)

const DefaultTimeout = 300 * time.Second

// Transport is a request-per-call transport to a single test server.
type Transport struct {
	baseURL  *url.URL
	client   *http.Client
	registry *protocol.Registry
}

// NewClient returns an HTTP client whose requests are traced.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(nil),
	}
}

// New returns a transport for the test server at baseURL. A nil client
// gets NewClient(DefaultTimeout).
func New(baseURL string, registry *protocol.Registry, client *http.Client) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid test server url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid test server url %q: scheme and host are required", baseURL)
	}
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	return &Transport{baseURL: u, client: client, registry: registry}, nil
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, req *protocol.Request, seq uint64) (*protocol.Response, error) {
	payload, err := req.Body()
	if err != nil {
		return nil, err
	}

	addr := t.baseURL.JoinPath(req.Path()).String()
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), addr, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", req.Kind(), err)
	}
	setHeaders(httpReq, req, payload != nil)

	log.Ctx(ctx).Debug().Uint64("seq", seq).Stringer("request", req).Str("url", addr).Msg("sending request")

	res, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending %s to %s: %w", req.Kind(), t.baseURL, err)
	}
	defer res.Body.Close()

	serverID := res.Header.Get(protocol.HeaderServerID)
	if serverID == "" {
		return nil, tdkerrors.NewProtocolError("%s response from %s is missing the %s header",
			req.Kind(), t.baseURL, protocol.HeaderServerID)
	}

	echoed, _ := strconv.Atoi(res.Header.Get(protocol.HeaderAPIVersion))
	version := protocol.ResolveVersion(ctx, req.Version(), echoed, req)

	body, err := readBody(ctx, res, req)
	if err != nil {
		return nil, err
	}

	resp, err := t.registry.CreateResponse(req.Kind(), version, res.StatusCode, serverID, body)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, tdkerrors.NewBadResponseError(res.StatusCode, resp,
			"%s to %s returned status %d", req.Kind(), t.baseURL, res.StatusCode)
	}
	return resp, nil
}

func setHeaders(httpReq *http.Request, req *protocol.Request, hasBody bool) {
	httpReq.Header.Set("Accept", protocol.ContentTypeJSON)
	if hasBody {
		httpReq.Header.Set("Content-Type", protocol.ContentTypeJSON)
	}
	if req.Version() > 0 {
		httpReq.Header.Set(protocol.HeaderAPIVersion, strconv.Itoa(req.Version()))
		httpReq.Header.Set(protocol.HeaderClientID, req.SessionID().String())
		httpReq.Header.Set(protocol.HeaderRequestID, uuid.NewString())
	}
	if name, ok := req.TestName(); ok {
		httpReq.Header.Set(protocol.HeaderTestName, name)
	}
}

// readBody decodes a JSON object body. Non-JSON content is logged and
// treated as absent.
func readBody(ctx context.Context, res *http.Response, req *protocol.Request) (map[string]any, error) {
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.Kind(), err)
	}
	contentType := res.Header.Get("Content-Type")
	if !protocol.IsJSONContentType(contentType) {
		if len(raw) > 0 {
			log.Ctx(ctx).Warn().
				Stringer("request", req).
				Str("content_type", contentType).
				Int("status", res.StatusCode).
				Msg("ignoring non-JSON response body")
		}
		return nil, nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, tdkerrors.NewProtocolError("%s response is not a JSON object: %s", req.Kind(), err)
	}
	return body, nil
}

// compile-time check
var _ transport.Transport = (*Transport)(nil)
