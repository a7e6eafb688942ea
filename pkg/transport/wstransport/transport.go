package wstransport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/tdkerrors"
	"github.com/syncbench/tdk/pkg/transport"
)

const defaultErrorStatus = 500

// Transport sends requests for one test server through a shared Router.
type Transport struct {
	router *Router
	key    string
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, req *protocol.Request, seq uint64) (*protocol.Response, error) {
	frame, err := encodeFrame(req, seq)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().Uint64("seq", seq).Stringer("request", req).Str("ws", t.key).Msg("sending request")

	reply, err := t.router.roundTrip(ctx, t.key, seq, frame)
	if err != nil {
		return nil, err
	}
	return t.decodeFrame(ctx, req, reply)
}

type frameField struct {
	key   string
	value any
}

// encodeFrame merges the routing fields into the top level of the payload.
func encodeFrame(req *protocol.Request, seq uint64) ([]byte, error) {
	frame, err := req.Body()
	if err != nil {
		return nil, err
	}
	if frame == nil {
		frame = []byte("{}")
	}

	fields := []frameField{
		{protocol.FieldSeq, seq},
		{protocol.FieldCommand, "/" + req.Path()},
	}
	if req.Version() > 0 {
		fields = append(fields,
			frameField{protocol.FieldClientID, req.SessionID().String()},
			frameField{protocol.FieldAPIVersion, req.Version()},
			frameField{protocol.FieldRequestID, uuid.NewString()},
		)
	}
	if name, ok := req.TestName(); ok {
		fields = append(fields, frameField{protocol.FieldTestName, name})
	}

	for _, f := range fields {
		if frame, err = sjson.SetBytes(frame, f.key, f.value); err != nil {
			return nil, fmt.Errorf("encoding %s frame: %w", req.Kind(), err)
		}
	}
	return frame, nil
}

func (t *Transport) decodeFrame(ctx context.Context, req *protocol.Request, frame []byte) (*protocol.Response, error) {
	var body map[string]any
	if err := json.Unmarshal(frame, &body); err != nil {
		return nil, tdkerrors.NewProtocolError("%s reply from %s is not a JSON object: %s", req.Kind(), t.key, err)
	}

	serverID, _ := body[protocol.FieldServerID].(string)
	if serverID == "" {
		return nil, tdkerrors.NewProtocolError("%s reply from %s is missing %s", req.Kind(), t.key, protocol.FieldServerID)
	}
	echoed, _ := body[protocol.FieldAPIVersion].(float64)
	version := protocol.ResolveVersion(ctx, req.Version(), int(echoed), req)

	status := 200
	if tsErr, ok := body[protocol.FieldError].(map[string]any); ok {
		status = defaultErrorStatus
		if code, ok := tsErr["code"].(float64); ok && code > 0 {
			status = int(code)
		}
		if _, has := body["error"]; !has {
			body["error"] = tsErr
		}
	}
	// replies carry the same body the HTTP backend would see
	for _, field := range protocol.FrameFields {
		delete(body, field)
	}

	resp, err := t.router.registry.CreateResponse(req.Kind(), version, status, serverID, body)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, tdkerrors.NewBadResponseError(status, resp, "%s to %s returned status %d", req.Kind(), t.key, status)
	}
	return resp, nil
}

// compile-time check
var _ transport.Transport = (*Transport)(nil)
