//go:build unit || !integration

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/syncbench/tdk/pkg/keypath"
	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/snapshot"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

// fakeServer is an in-memory test server behind the Transport interface.
type fakeServer struct {
	registry   *protocol.Registry
	id         string
	apiVersion int
	variant    string

	mu        sync.Mutex
	requests  []*protocol.Request
	docs      map[snapshot.DocumentEntry]map[string]any
	snapshots int
	statuses  []map[string]any
	peers     []map[string]any
}

func newFakeServer(registry *protocol.Registry, id string, apiVersion int) *fakeServer {
	return &fakeServer{
		registry:   registry,
		id:         id,
		apiVersion: apiVersion,
		variant:    "couchbase-lite-c",
		docs:       map[snapshot.DocumentEntry]map[string]any{},
	}
}

func (f *fakeServer) put(collection, id string, body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[snapshot.Entry(collection, id)] = body
}

func (f *fakeServer) kinds() []protocol.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Kind, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Kind())
	}
	return out
}

func (f *fakeServer) Send(_ context.Context, req *protocol.Request, _ uint64) (*protocol.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	status, body := f.handle(req.Payload())
	body, err := decoded(body)
	if err != nil {
		return nil, err
	}
	version := req.Version()
	if req.Kind() == protocol.KindRoot {
		version = f.apiVersion
	}
	resp, err := f.registry.CreateResponse(req.Kind(), version, status, f.id, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, tdkerrors.NewBadResponseError(status, resp, "%s returned status %d", req.Kind(), status)
	}
	return resp, nil
}

func (f *fakeServer) handle(payload protocol.Payload) (int, map[string]any) {
	ok := map[string]any{}
	switch p := payload.(type) {
	case protocol.GetRoot:
		return http.StatusOK, map[string]any{
			"version":    "3.2.0-143",
			"apiVersion": float64(f.apiVersion),
			"cbl":        f.variant,
			"device":     map[string]any{"model": "fake"},
		}
	case protocol.SnapshotDocuments:
		f.snapshots++
		return http.StatusOK, map[string]any{"id": fmt.Sprintf("snap-%d", f.snapshots)}
	case protocol.GetDocument:
		doc, found := f.docs[p.Document]
		if !found {
			return http.StatusNotFound, map[string]any{"error": map[string]any{
				"domain": "CBL", "code": 7.0, "message": "not found",
			}}
		}
		out := keypath.CopyDocument(doc)
		out["_id"] = p.Document.ID
		out["_revs"] = "1-abc"
		return http.StatusOK, out
	case protocol.UpdateDatabase:
		for _, u := range p.Updates {
			f.apply(u)
		}
		return http.StatusOK, ok
	case protocol.StartReplicator, protocol.StartMultipeerReplicator:
		return http.StatusOK, map[string]any{"id": "repl-1"}
	case protocol.GetReplicatorStatus:
		next := f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
		return http.StatusOK, next
	case protocol.GetMultipeerReplicatorStatus:
		return http.StatusOK, map[string]any{"replicators": toAnySlice(f.peers)}
	case protocol.VerifyDocuments:
		return http.StatusOK, map[string]any{"result": true}
	case protocol.StartListener:
		return http.StatusOK, map[string]any{"id": "listener-1", "port": 59840.0}
	case protocol.RunQuery:
		return http.StatusOK, map[string]any{"results": []any{map[string]any{"count": float64(len(f.docs))}}}
	}
	return http.StatusOK, ok
}

func (f *fakeServer) apply(u protocol.DatabaseUpdateEntry) {
	entry := snapshot.Entry(u.Collection, u.DocumentID)
	switch u.Type {
	case protocol.UpdateTypeDelete, protocol.UpdateTypePurge:
		delete(f.docs, entry)
	case protocol.UpdateTypeUpdate:
		doc, found := f.docs[entry]
		if !found {
			doc = map[string]any{}
		}
		for _, props := range u.UpdatedProperties {
			for path, value := range props {
				_ = keypath.Set(doc, path, value)
			}
		}
		for _, path := range u.RemovedProperties {
			_ = keypath.Remove(doc, path)
		}
		f.docs[entry] = doc
	}
}

// decoded gives body the shape a transport produces after reading JSON.
func decoded(body map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, json.Unmarshal(raw, &out)
}

func toAnySlice(in []map[string]any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func replicatorStatus(activity string, docs ...map[string]any) map[string]any {
	return map[string]any{
		"activity":  activity,
		"progress":  map[string]any{"completed": activity == "STOPPED"},
		"documents": toAnySlice(docs),
	}
}
