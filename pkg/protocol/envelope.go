package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/syncbench/tdk/pkg/tdkerrors"
)

// Request is an immutable, fully validated request ready to be sent by any
// transport. It is built only by Registry.CreateRequest.
type Request struct {
	kind      Kind
	version   int
	sessionID uuid.UUID
	testName  string
	payload   Payload
}

func (r *Request) Kind() Kind           { return r.kind }
func (r *Request) Version() int         { return r.version }
func (r *Request) SessionID() uuid.UUID { return r.sessionID }
func (r *Request) Payload() Payload     { return r.payload }
func (r *Request) Method() string       { return r.kind.Method() }
func (r *Request) Path() string         { return r.kind.Path() }

// TestName returns the name of the test that issued the request, if any.
func (r *Request) TestName() (string, bool) {
	return r.testName, r.testName != ""
}

// HasBody reports whether the request carries a JSON body on the wire.
func (r *Request) HasBody() bool {
	return r.Method() != http.MethodGet
}

// Body serializes the payload. Requests without a body yield nil.
func (r *Request) Body() ([]byte, error) {
	if !r.HasBody() {
		return nil, nil
	}
	b, err := json.Marshal(r.payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", r.kind, err)
	}
	return b, nil
}

func (r *Request) String() string {
	return fmt.Sprintf("-> %s v%d %s /%s", r.sessionID, r.version, r.Method(), r.Path())
}

// Response is a parsed reply from a test server. It is built only by
// Registry.CreateResponse, so both transports produce identical envelopes.
type Response struct {
	kind       Kind
	version    int
	statusCode int
	serverID   string
	raw        map[string]any
	peerError  *tdkerrors.ErrorBody
	body       ResponseBody
}

func (r *Response) Kind() Kind                     { return r.kind }
func (r *Response) Version() int                   { return r.version }
func (r *Response) StatusCode() int                { return r.statusCode }
func (r *Response) ServerID() string               { return r.serverID }
func (r *Response) PeerError() *tdkerrors.ErrorBody { return r.peerError }

// Raw returns the decoded JSON body, or nil when the server sent none.
func (r *Response) Raw() map[string]any { return r.raw }

// Body returns the typed body. It is nil for unsuccessful responses.
func (r *Response) Body() ResponseBody { return r.body }

// Serialize renders the raw body for diagnostics.
func (r *Response) Serialize() string {
	if r.raw == nil {
		return ""
	}
	b, err := json.MarshalIndent(r.raw, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.raw)
	}
	return string(b)
}

func (r *Response) String() string {
	return fmt.Sprintf("<- %s v%d %s /%s %d", r.serverID, r.version, r.kind.Method(), r.kind.Path(), r.statusCode)
}

// Success reports a 2xx status.
func (r *Response) Success() bool {
	return r.statusCode >= 200 && r.statusCode < 300
}

// BodyAs returns the typed body of resp as T, or a ProtocolError when the
// response does not carry a T.
func BodyAs[T ResponseBody](resp *Response) (T, error) {
	body, ok := resp.Body().(T)
	if !ok {
		var zero T
		return zero, tdkerrors.NewProtocolError("%s response carries %T, expected %T", resp.Kind(), resp.Body(), zero)
	}
	return body, nil
}

// IsJSONContentType reports whether a Content-Type header value denotes JSON.
func IsJSONContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), ContentTypeJSON)
}
