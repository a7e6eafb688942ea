package client

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/syncbench/tdk/pkg/logger"
)

// SessionSpec describes the session to open on one test server.
type SessionSpec struct {
	Index          int
	DatasetVersion string
	LogURL         string
	Tag            string
}

// StartSessions opens a session on each listed server concurrently. Only the
// registration of each server with the factory is serialized; the session
// requests themselves run in parallel. A server can be registered once per
// factory. Version 1 servers have no sessions and are only registered.
func (f *Factory) StartSessions(ctx context.Context, specs ...SessionSpec) ([]*TestServer, error) {
	ctx = logger.ContextWithSessionLogger(ctx, f.sessionID.String())
	servers := make([]*TestServer, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			ts, err := f.register(spec.Index)
			if err != nil {
				return err
			}
			servers[i] = ts

			if f.Version() < 2 {
				return nil
			}
			tag := spec.Tag
			if tag == "" {
				tag = fmt.Sprintf("test-server[%d]", spec.Index)
			}
			if err := ts.NewSession(gctx, spec.DatasetVersion, spec.LogURL, tag); err != nil {
				return fmt.Errorf("starting session on test server %d: %w", spec.Index, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return servers, nil
}

func (f *Factory) register(index int) (*TestServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.transports) {
		return nil, fmt.Errorf("no test server at index %d (have %d)", index, len(f.transports))
	}
	if _, ok := f.sessions[index]; ok {
		return nil, fmt.Errorf("test server %d already has a session", index)
	}
	ts := f.Server(index)
	f.sessions[index] = ts
	return ts, nil
}

// Session returns the registered handle for the server at index.
func (f *Factory) Session(index int) (*TestServer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.sessions[index]
	return ts, ok
}

