// Package snapshot captures baselines of documents on a test server and
// verifies that the live documents match the baseline plus a declared list
// of mutations.
package snapshot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/syncbench/tdk/pkg/keypath"
	"github.com/syncbench/tdk/pkg/lib/validate"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

const statusBadRequest = 400

// DocumentState is what a store reports for one document.
type DocumentState struct {
	Exists  bool
	Deleted bool
	Body    map[string]any
}

// Resolvable reports whether the document can currently be read.
func (s DocumentState) Resolvable() bool {
	return s.Exists && !s.Deleted
}

// DocumentStore is the live store a snapshot is taken from and verified
// against.
type DocumentStore interface {
	// CreateSnapshot records the listed documents under a new snapshot id.
	CreateSnapshot(ctx context.Context, entries []DocumentEntry) (string, error)
	// FetchDocument reports the current state of one document. A document
	// that does not exist is not an error.
	FetchDocument(ctx context.Context, entry DocumentEntry) (DocumentState, error)
}

// Snapshot is an immutable baseline of a set of documents.
type Snapshot struct {
	id       string
	entries  []DocumentEntry
	baseline map[DocumentEntry]DocumentState
}

// ID is the opaque id the store assigned to the snapshot.
func (s *Snapshot) ID() string {
	return s.id
}

// Entries returns the captured documents in capture order.
func (s *Snapshot) Entries() []DocumentEntry {
	return append([]DocumentEntry(nil), s.entries...)
}

// Contains reports whether entry is part of the baseline.
func (s *Snapshot) Contains(entry DocumentEntry) bool {
	_, ok := s.baseline[entry]
	return ok
}

// Baseline returns a copy of the captured state of entry.
func (s *Snapshot) Baseline(entry DocumentEntry) (DocumentState, bool) {
	state, ok := s.baseline[entry]
	if !ok {
		return DocumentState{}, false
	}
	state.Body = keypath.CopyDocument(state.Body)
	return state, true
}

// Updater starts a new list of mutations to verify against this snapshot.
func (s *Snapshot) Updater() *Updater {
	return &Updater{snapshotID: s.id}
}

// Updater collects the mutations expected to have happened since a snapshot
// was taken. It can be verified once.
type Updater struct {
	Changes
	snapshotID string
	consumed   bool
}

// SnapshotID is the id of the snapshot the updater belongs to.
func (u *Updater) SnapshotID() string {
	return u.snapshotID
}

// Engine takes snapshots from a DocumentStore and verifies them.
type Engine struct {
	store DocumentStore
}

// NewEngine returns an engine backed by store.
func NewEngine(store DocumentStore) (*Engine, error) {
	if err := validate.NotNil(store, "snapshot engine requires a document store"); err != nil {
		return nil, err
	}
	return &Engine{store: store}, nil
}

// Capture asks the store for a snapshot of entries and records each
// document's current state as the baseline.
func (e *Engine) Capture(ctx context.Context, entries []DocumentEntry) (*Snapshot, error) {
	if err := validate.NotEmpty(entries, "snapshot requires at least one document"); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		entries:  make([]DocumentEntry, 0, len(entries)),
		baseline: make(map[DocumentEntry]DocumentState, len(entries)),
	}
	for _, entry := range entries {
		if _, dup := snap.baseline[entry]; dup {
			continue
		}
		snap.entries = append(snap.entries, entry)
		snap.baseline[entry] = DocumentState{}
	}

	id, err := e.store.CreateSnapshot(ctx, snap.entries)
	if err != nil {
		return nil, err
	}
	snap.id = id

	states := make([]DocumentState, len(snap.entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range snap.entries {
		i, entry := i, entry
		g.Go(func() error {
			state, err := e.store.FetchDocument(gctx, entry)
			if err != nil {
				return fmt.Errorf("capturing baseline of %s/%s: %w", entry.Collection, entry.ID, err)
			}
			state.Body = keypath.CopyDocument(state.Body)
			states[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, entry := range snap.entries {
		snap.baseline[entry] = states[i]
	}

	log.Ctx(ctx).Debug().Str("snapshot", id).Int("documents", len(snap.entries)).Msg("captured snapshot")
	return snap, nil
}

// Consume checks that u can be verified against s and marks it used. Both
// local and server-side verification go through it.
func (s *Snapshot) Consume(u *Updater) error {
	if u.snapshotID != s.id {
		return tdkerrors.NewBadResponseError(statusBadRequest, nil,
			"updater belongs to snapshot %q, not %q", u.snapshotID, s.id)
	}
	if u.consumed {
		return tdkerrors.NewBadResponseError(statusBadRequest, nil,
			"updater for snapshot %q was already verified", s.id)
	}
	for _, m := range u.mutations {
		target := m.Target()
		if !s.Contains(target) {
			return tdkerrors.NewBadResponseError(statusBadRequest, nil,
				"document %q in collection %q is not part of snapshot %q", target.ID, target.Collection, s.id)
		}
	}
	u.consumed = true
	return nil
}
