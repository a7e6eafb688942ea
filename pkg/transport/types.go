// Package transport defines how a request reaches a test server.
package transport

//go:generate mockgen --source types.go --destination mocks.go --package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/syncbench/tdk/pkg/protocol"
)

// Transport delivers one request to one test server and returns its parsed
// response. seq identifies the exchange for correlation and logging.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, req *protocol.Request, seq uint64) (*protocol.Response, error)
}

// Type selects a transport backend for a test server.
type Type string

const (
	TypeHTTP      Type = "http"
	TypeWebSocket Type = "ws"
)

// ParseType accepts "http" or "ws" in any case. An empty string means http.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(s)) {
	case "", TypeHTTP:
		return TypeHTTP, nil
	case TypeWebSocket:
		return TypeWebSocket, nil
	}
	return "", fmt.Errorf("unknown transport %q (expected %q or %q)", s, TypeHTTP, TypeWebSocket)
}
