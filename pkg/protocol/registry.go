package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/syncbench/tdk/pkg/lib/validate"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

type routeKey struct {
	kind    Kind
	version int
}

type registration struct {
	shape       string
	accepts     func(Payload) bool
	newResponse ResponseConstructor
}

// Registry maps (operation kind, protocol version) to the payload shape the
// request must carry and the constructor of its response body. It is filled
// once at startup and read-only afterwards.
type Registry struct {
	routes map[routeKey]registration
}

// NewEmptyRegistry returns a registry with nothing registered.
func NewEmptyRegistry() *Registry {
	return &Registry{routes: make(map[routeKey]registration)}
}

// Register declares that kind, at each of versions, takes payloads of type B
// and answers with bodies built by newResponse. Registering the same
// (kind, version) twice is an error.
func Register[B Payload](r *Registry, kind Kind, versions []int, newResponse ResponseConstructor) error {
	var shape B
	errs := []error{
		validate.NotEmpty(versions, "%s: no versions given", kind),
		validate.NotNil(newResponse, "%s: response constructor cannot be nil", kind),
	}
	if shape.Kind() != kind {
		errs = append(errs, fmt.Errorf("%s: payload %T belongs to %s", kind, shape, shape.Kind()))
	}
	for _, v := range versions {
		errs = append(errs, validate.KeyNotInMap(routeKey{kind, v}, r.routes,
			"%s: version %d already registered", kind, v))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to register operation: %w", err)
	}

	reg := registration{
		shape: fmt.Sprintf("%T", shape),
		accepts: func(p Payload) bool {
			_, ok := p.(B)
			return ok
		},
		newResponse: newResponse,
	}
	for _, v := range versions {
		r.routes[routeKey{kind, v}] = reg
	}
	return nil
}

// Supports reports whether kind is registered at version.
func (r *Registry) Supports(kind Kind, version int) bool {
	_, ok := r.routes[routeKey{kind, version}]
	return ok
}

// CreateRequest validates payload against the registered shape and builds an
// immutable request. The test name is taken from ctx.
func (r *Registry) CreateRequest(
	ctx context.Context, kind Kind, version int, sessionID uuid.UUID, payload Payload,
) (*Request, error) {
	reg, ok := r.routes[routeKey{kind, version}]
	if !ok {
		return nil, tdkerrors.NewProtocolError("unregistered operation %s for version %d", kind, version)
	}
	if payload == nil || !reg.accepts(payload) {
		return nil, tdkerrors.NewProtocolError("payload type mismatch for %s v%d: got %T, expected %s",
			kind, version, payload, reg.shape)
	}
	testName, _ := TestNameFromContext(ctx)
	return &Request{
		kind:      kind,
		version:   version,
		sessionID: sessionID,
		testName:  testName,
		payload:   payload,
	}, nil
}

// CreateResponse builds a response envelope from wire data. The typed body
// is resolved only for successful responses; the peer's error object is
// always extracted.
func (r *Registry) CreateResponse(kind Kind, version, status int, serverID string, body map[string]any) (*Response, error) {
	if serverID == "" {
		return nil, tdkerrors.NewProtocolError("response to %s is missing the server id", kind)
	}
	resp := &Response{
		kind:       kind,
		version:    version,
		statusCode: status,
		serverID:   serverID,
		raw:        body,
		peerError:  tdkerrors.ParseErrorBody(body),
	}
	if !resp.Success() {
		return resp, nil
	}

	reg, ok := r.routes[routeKey{kind, version}]
	if !ok {
		// the root response reports its own version, which need not be registered
		reg, ok = r.routes[routeKey{kind, 0}]
	}
	if !ok {
		return nil, tdkerrors.NewProtocolError("no response registered for %s version %d", kind, version)
	}
	if body == nil {
		body = map[string]any{}
	}
	typed, err := reg.newResponse(body)
	if err != nil {
		return nil, tdkerrors.NewProtocolError("malformed %s response: %s", kind, err)
	}
	resp.body = typed
	return resp, nil
}
