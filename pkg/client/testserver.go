package client

import (
	"context"
	"errors"

	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/system"
)

// TestServer is a handle to one test server.
type TestServer struct {
	factory *Factory
	index   int
	url     string
	info    *protocol.RootInfo
}

// Server returns a handle to the test server at index.
func (f *Factory) Server(index int) *TestServer {
	ts := &TestServer{factory: f, index: index}
	if index >= 0 && index < len(f.servers) {
		ts.url = f.servers[index].URL
	}
	return ts
}

// Servers returns a handle to every test server in configuration order.
func (f *Factory) Servers() []*TestServer {
	out := make([]*TestServer, f.ServerCount())
	for i := range out {
		out[i] = f.Server(i)
	}
	return out
}

func (ts *TestServer) Index() int  { return ts.index }
func (ts *TestServer) URL() string { return ts.url }

func (ts *TestServer) String() string {
	return "TS-" + ts.url
}

// GetInfo retrieves the server's description. It is valid before the
// protocol version is negotiated.
func (ts *TestServer) GetInfo(ctx context.Context) (protocol.RootInfo, error) {
	ctx, span := system.NewSpan(ctx, "get_info", ts.index)
	defer span.End()

	resp, err := ts.factory.send(ctx, ts.index, protocol.GetRoot{})
	if err != nil {
		return protocol.RootInfo{}, err
	}
	info, err := protocol.BodyAs[protocol.RootInfo](resp)
	if err != nil {
		return protocol.RootInfo{}, err
	}
	ts.info = &info
	return info, nil
}

// Variant is the platform the server runs on, fetched on first use. A
// server built on an unrecognised library is an error here only.
func (ts *TestServer) Variant(ctx context.Context) (protocol.ServerVariant, error) {
	if ts.info == nil {
		if _, err := ts.GetInfo(ctx); err != nil {
			return "", err
		}
	}
	return ts.info.ServerVariant()
}

// ResetOptions selects how CreateAndResetDB creates its databases: from a
// dataset, or empty with some collections. Setting both is an error.
type ResetOptions struct {
	Dataset     string
	Collections []string
}

// CreateAndResetDB recreates the named databases and returns handles to them.
func (ts *TestServer) CreateAndResetDB(ctx context.Context, dbNames []string, opts ResetOptions) ([]*Database, error) {
	if opts.Dataset != "" && len(opts.Collections) > 0 {
		return nil, errors.New("dataset and collections cannot both be specified")
	}
	ctx, span := system.NewSpan(ctx, "create_and_reset_db", ts.index)
	defer span.End()

	var payload protocol.Payload
	if ts.factory.Version() == 1 {
		if len(opts.Collections) > 0 {
			return nil, errors.New("empty databases with collections need protocol version 2")
		}
		reset := protocol.ResetV1{}
		if opts.Dataset != "" {
			reset.AddDataset(opts.Dataset, dbNames...)
		}
		payload = reset
	} else {
		reset := protocol.Reset{}
		reset.TestName, _ = protocol.TestNameFromContext(ctx)
		if opts.Dataset != "" {
			reset.AddDataset(opts.Dataset, dbNames...)
		} else {
			for _, name := range dbNames {
				reset.AddEmpty(name, opts.Collections...)
			}
		}
		payload = reset
	}

	if _, err := ts.factory.send(ctx, ts.index, payload); err != nil {
		return nil, err
	}
	dbs := make([]*Database, 0, len(dbNames))
	for _, name := range dbNames {
		dbs = append(dbs, ts.Database(name))
	}
	return dbs, nil
}

// Database returns a handle to an existing database on the server.
func (ts *TestServer) Database(name string) *Database {
	return newDatabase(ts, name)
}

// NewSession starts a client session on the server, optionally logging to
// a log collector at logURL under tag.
func (ts *TestServer) NewSession(ctx context.Context, datasetVersion, logURL, tag string) error {
	ctx, span := system.NewSpan(ctx, "new_session", ts.index)
	defer span.End()

	payload := protocol.NewSession{ID: ts.factory.sessionID.String(), DatasetVersion: datasetVersion}
	if logURL != "" {
		payload.Logging = &protocol.SessionLogging{URL: logURL, Tag: tag}
	}
	_, err := ts.factory.send(ctx, ts.index, payload)
	return err
}

// Cleanup resets the server, dropping every database.
func (ts *TestServer) Cleanup(ctx context.Context) error {
	ctx, span := system.NewSpan(ctx, "cleanup", ts.index)
	defer span.End()

	var payload protocol.Payload = protocol.Reset{}
	if ts.factory.Version() == 1 {
		payload = protocol.ResetV1{}
	}
	_, err := ts.factory.send(ctx, ts.index, payload)
	return err
}

// Log writes msg into the server's log.
func (ts *TestServer) Log(ctx context.Context, msg string) error {
	_, err := ts.factory.send(ctx, ts.index, protocol.Log{Message: msg})
	return err
}
