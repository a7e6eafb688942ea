//go:build unit || !integration

package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/syncbench/tdk/pkg/keypath"
	"github.com/syncbench/tdk/pkg/logger"
	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

const collection = "_default._default"

// memoryStore is a DocumentStore that applies wire-form updates the way a
// test server does.
type memoryStore struct {
	mu        sync.Mutex
	docs      map[DocumentEntry]DocumentState
	snapshots int
	fetchErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: map[DocumentEntry]DocumentState{}}
}

func (m *memoryStore) put(id string, body map[string]any) {
	m.docs[Entry(collection, id)] = DocumentState{Exists: true, Body: body}
}

func (m *memoryStore) CreateSnapshot(_ context.Context, _ []DocumentEntry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
	return fmt.Sprintf("snapshot-%d", m.snapshots), nil
}

func (m *memoryStore) FetchDocument(_ context.Context, entry DocumentEntry) (DocumentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return DocumentState{}, m.fetchErr
	}
	state := m.docs[entry]
	state.Body = keypath.CopyDocument(state.Body)
	return state, nil
}

// apply performs changes after a trip through JSON, as a server would see them.
func (m *memoryStore) apply(changes []protocol.DatabaseUpdateEntry) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	var wire []protocol.DatabaseUpdateEntry
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, change := range wire {
		entry := Entry(change.Collection, change.DocumentID)
		switch change.Type {
		case protocol.UpdateTypeDelete:
			m.docs[entry] = DocumentState{Exists: true, Deleted: true}
		case protocol.UpdateTypePurge:
			delete(m.docs, entry)
		case protocol.UpdateTypeUpdate:
			state := m.docs[entry]
			if !state.Resolvable() || state.Body == nil {
				state = DocumentState{Exists: true, Body: map[string]any{}}
			}
			for _, props := range change.UpdatedProperties {
				for path, value := range props {
					if err := keypath.Set(state.Body, path, value); err != nil {
						return err
					}
				}
			}
			for _, path := range change.RemovedProperties {
				if err := keypath.Remove(state.Body, path); err != nil {
					return err
				}
			}
			for path, url := range change.UpdatedBlobs {
				blob := map[string]any{"@type": "blob", "digest": "sha1-" + url[len(url)-8:], "length": 1024.0}
				if err := keypath.Set(state.Body, path, blob); err != nil {
					return err
				}
			}
			m.docs[entry] = state
		}
	}
	return nil
}

type SnapshotSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memoryStore
	engine *Engine
}

func TestSnapshotSuite(t *testing.T) {
	suite.Run(t, new(SnapshotSuite))
}

func (s *SnapshotSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.store = newMemoryStore()
	s.store.put("name_1", map[string]any{
		"name":    map[string]any{"first": "Ada", "last": "Lovelace"},
		"contact": map[string]any{"email": []any{"ada@example.com"}},
		"age":     36.0,
	})
	s.store.put("name_2", map[string]any{"name": map[string]any{"first": "Alan"}})

	engine, err := NewEngine(s.store)
	s.Require().NoError(err)
	s.engine = engine
}

func (s *SnapshotSuite) capture(ids ...string) *Snapshot {
	entries := make([]DocumentEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, Entry(collection, id))
	}
	snap, err := s.engine.Capture(s.ctx, entries)
	s.Require().NoError(err)
	return snap
}

func (s *SnapshotSuite) verify(snap *Snapshot, u *Updater) VerifyResult {
	result, err := s.engine.Verify(s.ctx, snap, u)
	s.Require().NoError(err)
	return result
}

func (s *SnapshotSuite) requireClientError(err error) {
	bad, ok := tdkerrors.AsBadResponse(err)
	s.Require().True(ok, "expected a bad response error, got %v", err)
	s.Equal(400, bad.Code)
}

func (s *SnapshotSuite) TestCaptureRecordsBaseline() {
	snap := s.capture("name_1", "missing", "name_1")
	s.Equal("snapshot-1", snap.ID())
	s.Equal([]DocumentEntry{Entry(collection, "name_1"), Entry(collection, "missing")}, snap.Entries())

	base, ok := snap.Baseline(Entry(collection, "name_1"))
	s.Require().True(ok)
	s.True(base.Exists)
	s.Equal("Ada", base.Body["name"].(map[string]any)["first"])

	absent, ok := snap.Baseline(Entry(collection, "missing"))
	s.Require().True(ok)
	s.False(absent.Exists)

	// later writes to the store do not reach the baseline
	s.Require().NoError(s.store.apply([]protocol.DatabaseUpdateEntry{{
		Type: protocol.UpdateTypeUpdate, Collection: collection, DocumentID: "name_1",
		UpdatedProperties: []map[string]any{{"name.first": "Grace"}},
	}}))
	base, _ = snap.Baseline(Entry(collection, "name_1"))
	s.Equal("Ada", base.Body["name"].(map[string]any)["first"])
}

func (s *SnapshotSuite) TestCaptureRequiresEntries() {
	_, err := s.engine.Capture(s.ctx, nil)
	s.Error(err)
}

func (s *SnapshotSuite) TestCapturePropagatesFetchErrors() {
	s.store.fetchErr = errors.New("store unavailable")
	_, err := s.engine.Capture(s.ctx, []DocumentEntry{Entry(collection, "name_1")})
	s.ErrorIs(err, s.store.fetchErr)
}

func (s *SnapshotSuite) TestRoundTrip() {
	snap := s.capture("name_1")
	u := snap.Updater()
	u.UpsertDocument(collection, "name_1", []SetOp{Set("test", "value")}, nil, nil)

	s.Require().NoError(s.store.apply(u.Entries()))
	s.Equal(VerifyResult{Result: true}, s.verify(snap, u))
}

func (s *SnapshotSuite) TestRoundTripMixedMutations() {
	snap := s.capture("name_1", "name_2", "new_doc")
	u := snap.Updater()
	u.UpsertDocument(collection, "name_1",
		[]SetOp{Set("contact.email[2]", "second@example.com"), Set("tags", []string{"a", "b"}), Set("age", 37)},
		[]string{"name.last", "does.not.exist"},
		map[string]string{"avatar": "s10.jpg"})
	u.DeleteDocument(collection, "name_2")
	u.UpsertDocument(collection, "new_doc", []SetOp{Set("nested[1].x", true)}, nil, nil)

	s.Require().NoError(s.store.apply(u.Entries()))
	s.Equal(VerifyResult{Result: true}, s.verify(snap, u))
}

func (s *SnapshotSuite) TestSingleDivergence() {
	snap := s.capture("name_1")
	u := snap.Updater()
	u.UpsertDocument(collection, "name_1", []SetOp{Set("contact.email[0]", "foo@bar.com")}, nil, nil)

	s.Require().NoError(s.store.apply([]protocol.DatabaseUpdateEntry{{
		Type: protocol.UpdateTypeUpdate, Collection: collection, DocumentID: "name_1",
		UpdatedProperties: []map[string]any{{"contact.email[1]": "foo@bar.com"}},
	}}))

	result := s.verify(snap, u)
	s.False(result.Result)
	s.Contains(result.Description, "$.contact.email[0]")
	s.Equal(protocol.Present("foo@bar.com"), result.Expected)
	s.Equal(protocol.Present("ada@example.com"), result.Actual)
	s.Require().NotNil(result.Document)
	s.Equal([]any{"ada@example.com", "foo@bar.com"}, result.Document["contact"].(map[string]any)["email"])
}

func (s *SnapshotSuite) TestOutsideBaselineIsClientError() {
	snap := s.capture("name_2")
	u := snap.Updater()
	u.DeleteDocument(collection, "name_1")

	_, err := s.engine.Verify(s.ctx, snap, u)
	s.requireClientError(err)
}

func (s *SnapshotSuite) TestUpdaterIsSingleUse() {
	snap := s.capture("name_1")
	u := snap.Updater()
	s.True(s.verify(snap, u).Result)

	_, err := s.engine.Verify(s.ctx, snap, u)
	s.requireClientError(err)
}

func (s *SnapshotSuite) TestUpdaterMustMatchSnapshot() {
	first := s.capture("name_1")
	second := s.capture("name_1")

	_, err := s.engine.Verify(s.ctx, second, first.Updater())
	s.requireClientError(err)
}

func (s *SnapshotSuite) TestRemoveIsIdempotent() {
	snap := s.capture("name_1")
	u := snap.Updater()
	u.UpsertDocument(collection, "name_1", nil, []string{"age", "age", "never.there"}, nil)

	s.Require().NoError(s.store.apply([]protocol.DatabaseUpdateEntry{{
		Type: protocol.UpdateTypeUpdate, Collection: collection, DocumentID: "name_1",
		RemovedProperties: []string{"age"},
	}}))
	s.True(s.verify(snap, u).Result)
}

func (s *SnapshotSuite) TestLastSetWins() {
	snap := s.capture("name_1")
	u := snap.Updater()
	u.UpsertDocument(collection, "name_1", []SetOp{Set("name.first", "Grace")}, nil, nil)
	u.UpsertDocument(collection, "name_1", []SetOp{Set("name.first", "Hedy")}, nil, nil)

	s.Require().NoError(s.store.apply([]protocol.DatabaseUpdateEntry{{
		Type: protocol.UpdateTypeUpdate, Collection: collection, DocumentID: "name_1",
		UpdatedProperties: []map[string]any{{"name.first": "Hedy"}},
	}}))
	s.True(s.verify(snap, u).Result)
}

func (s *SnapshotSuite) TestExtraPropertyIsMismatch() {
	snap := s.capture("name_2")
	u := snap.Updater()

	s.Require().NoError(s.store.apply([]protocol.DatabaseUpdateEntry{{
		Type: protocol.UpdateTypeUpdate, Collection: collection, DocumentID: "name_2",
		UpdatedProperties: []map[string]any{{"surprise": 1}},
	}}))
	u.UpsertDocument(collection, "name_2", []SetOp{Set("name.first", "Alan")}, nil, nil)

	result := s.verify(snap, u)
	s.False(result.Result)
	s.Equal(protocol.Missing, result.Expected)
	s.Equal(protocol.Present(1.0), result.Actual)
}

func (s *SnapshotSuite) TestDeleteNotPerformed() {
	snap := s.capture("name_1")
	u := snap.Updater()
	u.DeleteDocument(collection, "name_1")

	result := s.verify(snap, u)
	s.False(result.Result)
	s.Contains(result.Description, "deleted")
	s.Equal(protocol.Missing, result.Expected)
	s.True(result.Actual.Exists)
}

func (s *SnapshotSuite) TestPurgeRequiresAbsence() {
	snap := s.capture("name_1", "name_2")
	u := snap.Updater()
	u.PurgeDocument(collection, "name_1")
	u.PurgeDocument(collection, "name_2")

	// a tombstone is not a purge
	s.Require().NoError(s.store.apply([]protocol.DatabaseUpdateEntry{
		{Type: protocol.UpdateTypePurge, Collection: collection, DocumentID: "name_1"},
		{Type: protocol.UpdateTypeDelete, Collection: collection, DocumentID: "name_2"},
	}))

	result := s.verify(snap, u)
	s.False(result.Result)
	s.Contains(result.Description, `"name_2"`)
	s.Contains(result.Description, "purged")
}

func (s *SnapshotSuite) TestMissingDocument() {
	snap := s.capture("name_1")
	u := snap.Updater()
	u.UpsertDocument(collection, "name_1", []SetOp{Set("x", 1)}, nil, nil)

	s.Require().NoError(s.store.apply([]protocol.DatabaseUpdateEntry{
		{Type: protocol.UpdateTypePurge, Collection: collection, DocumentID: "name_1"},
	}))

	result := s.verify(snap, u)
	s.False(result.Result)
	s.Equal(protocol.Missing, result.Actual)
	s.Nil(result.Document)
}

func (s *SnapshotSuite) TestFirstMismatchInTouchOrder() {
	snap := s.capture("name_1", "name_2")
	u := snap.Updater()
	u.UpsertDocument(collection, "name_2", []SetOp{Set("b", 1), Set("a", 1)}, nil, nil)
	u.UpsertDocument(collection, "name_1", []SetOp{Set("a", 1)}, nil, nil)

	result := s.verify(snap, u)
	s.False(result.Result)
	s.Contains(result.Description, `"name_2"`)
	s.Contains(result.Description, `"$.a"`)
}

func (s *SnapshotSuite) TestFetchErrorIsNotAResult() {
	snap := s.capture("name_1")
	u := snap.Updater()
	u.DeleteDocument(collection, "name_1")
	s.store.fetchErr = errors.New("connection reset")

	_, err := s.engine.Verify(s.ctx, snap, u)
	s.ErrorIs(err, s.store.fetchErr)
}

func (s *SnapshotSuite) TestChangesWireForm() {
	var c Changes
	c.UpsertDocument(collection, "doc", []SetOp{Set("a.b", 1), Set("c[0]", "x")}, []string{"d"}, map[string]string{"img": "s1.jpg"})
	c.DeleteDocument(collection, "gone")
	c.PurgeDocument(collection, "erased")

	s.Equal(3, c.Len())
	s.Equal([]protocol.DatabaseUpdateEntry{
		{
			Type:              protocol.UpdateTypeUpdate,
			Collection:        collection,
			DocumentID:        "doc",
			UpdatedProperties: []map[string]any{{"a.b": 1}, {"c[0]": "x"}},
			RemovedProperties: []string{"d"},
			UpdatedBlobs:      map[string]string{"img": BlobBaseURL + "s1.jpg"},
		},
		{Type: protocol.UpdateTypeDelete, Collection: collection, DocumentID: "gone"},
		{Type: protocol.UpdateTypePurge, Collection: collection, DocumentID: "erased"},
	}, c.Entries())
}

func (s *SnapshotSuite) TestFromOutcome() {
	s.Equal(VerifyResult{Result: true}, FromOutcome(protocol.VerifyOutcome{Result: true, Description: "ignored"}))

	failed := FromOutcome(protocol.VerifyOutcome{
		Description: "mismatch",
		Expected:    protocol.Present("a"),
		Actual:      protocol.Missing,
		Document:    map[string]any{"k": "v"},
	})
	s.False(failed.Result)
	s.Equal("mismatch", failed.Description)
	s.Equal(protocol.Present("a"), failed.Expected)
	s.Equal(protocol.Missing, failed.Actual)
}
