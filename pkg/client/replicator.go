package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/rs/zerolog/log"

	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/snapshot"
	"github.com/syncbench/tdk/pkg/system"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

const docEventsRetryDelay = 500 * time.Millisecond

// ReplicatorConfig describes a replicator to start on a test server.
type ReplicatorConfig struct {
	Endpoint               string
	Type                   protocol.ReplicatorType
	Continuous             bool
	Reset                  bool
	Collections            []protocol.ReplicatorCollection
	Authenticator          *protocol.ReplicatorAuthenticator
	EnableDocumentListener bool
	EnableAutoPurge        bool
}

// DefaultCollection replicates the default collection with no filters.
func DefaultCollection() protocol.ReplicatorCollection {
	return protocol.ReplicatorCollection{Names: []string{"_default._default"}}
}

// Replicator is a handle to a replicator running on a test server.
type Replicator struct {
	db     *Database
	config ReplicatorConfig

	mu        sync.Mutex
	id        string
	documents []protocol.ReplicatedDocument
}

// NewReplicator prepares a replicator for db. It does nothing on the
// server until Start is called.
func NewReplicator(db *Database, config ReplicatorConfig) *Replicator {
	if config.Type == "" {
		config.Type = protocol.ReplicatorPushAndPull
	}
	return &Replicator{db: db, config: config}
}

func (r *Replicator) Database() *Database { return r.db }
func (r *Replicator) Endpoint() string    { return r.config.Endpoint }

// ID is the server-assigned id, empty until Start succeeds.
func (r *Replicator) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Start asks the server to start the replicator.
func (r *Replicator) Start(ctx context.Context) error {
	ctx, span := system.NewSpan(ctx, "start_replicator", r.db.server.index)
	defer span.End()

	resp, err := r.db.send(ctx, protocol.StartReplicator{
		Database:               r.db.name,
		Endpoint:               r.config.Endpoint,
		ReplicatorType:         r.config.Type,
		Continuous:             r.config.Continuous,
		Reset:                  r.config.Reset,
		Collections:            r.config.Collections,
		Authenticator:          r.config.Authenticator,
		EnableDocumentListener: r.config.EnableDocumentListener,
		EnableAutoPurge:        r.config.EnableAutoPurge,
	})
	if err != nil {
		return err
	}
	created, err := protocol.BodyAs[protocol.Created](resp)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.id = created.ID
	r.mu.Unlock()
	log.Ctx(ctx).Debug().Str("replicator", created.ID).Str("endpoint", r.config.Endpoint).Msg("replicator started")
	return nil
}

// GetStatus polls the replicator once. Document events in the reply are
// kept and available from DocumentUpdates.
func (r *Replicator) GetStatus(ctx context.Context) (protocol.ReplicatorStatus, error) {
	id := r.ID()
	if id == "" {
		return protocol.ReplicatorStatus{}, errors.New("replicator has not been started")
	}
	resp, err := r.db.send(ctx, protocol.GetReplicatorStatus{ID: id})
	if err != nil {
		return protocol.ReplicatorStatus{}, err
	}
	status, err := protocol.BodyAs[protocol.ReplicatorStatus](resp)
	if err != nil {
		return protocol.ReplicatorStatus{}, err
	}

	r.mu.Lock()
	r.documents = append(r.documents, status.Documents...)
	r.mu.Unlock()
	return status, nil
}

// DocumentUpdates returns every document event seen so far.
func (r *Replicator) DocumentUpdates() []protocol.ReplicatedDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.ReplicatedDocument(nil), r.documents...)
}

// ClearDocumentUpdates forgets the document events seen so far.
func (r *Replicator) ClearDocumentUpdates() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = nil
}

// WaitFor polls until the replicator reports level. A zero spec uses the
// factory's PollSpec.
func (r *Replicator) WaitFor(ctx context.Context, level protocol.ActivityLevel, spec system.PollSpec) (protocol.ReplicatorStatus, error) {
	ctx, span := system.NewSpan(ctx, "wait_for_replicator", r.db.server.index)
	defer span.End()

	waiter := &system.StateWaiter[protocol.ReplicatorStatus]{
		Name:      fmt.Sprintf("replicator %s to become %s", r.ID(), level),
		Fetch:     r.GetStatus,
		Predicate: ActivityIs(level),
		Spec:      r.db.server.factory.pollSpecOr(spec),
		Clock:     r.db.server.factory.clock,
	}
	return waiter.Wait(ctx)
}

// WaitForDocEvents waits for a continuous replicator to go idle and checks
// that every entry in events has been reported as replicated. When the
// replicator goes idle before all events arrived it waits for idle again, up
// to maxRetries times.
func (r *Replicator) WaitForDocEvents(
	ctx context.Context, events []snapshot.DocumentEntry, maxRetries int, spec system.PollSpec,
) (protocol.ReplicatorStatus, error) {
	if !r.config.Continuous {
		return protocol.ReplicatorStatus{}, errors.New("waiting for document events needs a continuous replicator")
	}
	remaining := make(map[snapshot.DocumentEntry]struct{}, len(events))
	for _, e := range events {
		remaining[e] = struct{}{}
	}

	var status protocol.ReplicatorStatus
	processed := 0
	for attempt := 0; attempt < maxRetries; attempt++ {
		var err error
		if status, err = r.WaitFor(ctx, protocol.ActivityIdle, spec); err != nil {
			return status, err
		}
		if status.Error != nil {
			return status, fmt.Errorf("replicator %s reported an error: %w", r.ID(), status.Error)
		}

		updates := r.DocumentUpdates()
		if processed > len(updates) {
			processed = 0
		}
		for _, doc := range updates[processed:] {
			delete(remaining, snapshot.Entry(doc.Collection, doc.DocumentID))
		}
		processed = len(updates)
		if len(remaining) == 0 {
			return status, nil
		}

		timer := r.db.server.factory.clock.Timer(docEventsRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, ctx.Err()
		case <-timer.C:
		}
	}
	return status, tdkerrors.NewTimeoutError(status, "%d document events not seen after %d idle states", len(remaining), maxRetries)
}
