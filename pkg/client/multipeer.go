package client

import (
	"context"
	"errors"
	"fmt"

	sync "github.com/bacalhau-project/golang-mutex-tracer"

	"github.com/syncbench/tdk/pkg/lib/validate"
	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/system"
)

var errNotStarted = errors.New("not started")

// MultipeerConfig describes a multipeer replicator.
type MultipeerConfig struct {
	PeerGroupID   string
	Collections   []protocol.ReplicatorCollection
	Identity      *protocol.MultipeerIdentity
	Authenticator map[string]any
}

// MultipeerReplicator is a handle to a replicator that syncs with every peer
// of a group.
type MultipeerReplicator struct {
	db     *Database
	config MultipeerConfig

	mu sync.Mutex
	id string
}

// NewMultipeerReplicator prepares a multipeer replicator for db.
func NewMultipeerReplicator(db *Database, config MultipeerConfig) (*MultipeerReplicator, error) {
	if err := validate.NotBlank(config.PeerGroupID, "peer group id is required"); err != nil {
		return nil, err
	}
	if err := validate.NotEmpty(config.Collections, "at least one collection is required"); err != nil {
		return nil, err
	}
	return &MultipeerReplicator{db: db, config: config}, nil
}

func (m *MultipeerReplicator) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Start joins the peer group.
func (m *MultipeerReplicator) Start(ctx context.Context) error {
	ctx, span := system.NewSpan(ctx, "start_multipeer_replicator", m.db.server.index)
	defer span.End()

	resp, err := m.db.send(ctx, protocol.StartMultipeerReplicator{
		PeerGroupID:   m.config.PeerGroupID,
		Database:      m.db.name,
		Collections:   m.config.Collections,
		Identity:      m.config.Identity,
		Authenticator: m.config.Authenticator,
	})
	if err != nil {
		return err
	}
	created, err := protocol.BodyAs[protocol.Created](resp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.id = created.ID
	m.mu.Unlock()
	return nil
}

// Stop leaves the peer group.
func (m *MultipeerReplicator) Stop(ctx context.Context) error {
	ctx, span := system.NewSpan(ctx, "stop_multipeer_replicator", m.db.server.index)
	defer span.End()

	id := m.ID()
	if id == "" {
		return fmt.Errorf("multipeer replicator %w", errNotStarted)
	}
	if _, err := m.db.send(ctx, protocol.StopMultipeerReplicator{ID: id}); err != nil {
		return err
	}
	m.mu.Lock()
	m.id = ""
	m.mu.Unlock()
	return nil
}

// GetStatus polls the state towards every peer once.
func (m *MultipeerReplicator) GetStatus(ctx context.Context) (protocol.MultipeerStatus, error) {
	id := m.ID()
	if id == "" {
		return protocol.MultipeerStatus{}, fmt.Errorf("multipeer replicator %w", errNotStarted)
	}
	resp, err := m.db.send(ctx, protocol.GetMultipeerReplicatorStatus{ID: id})
	if err != nil {
		return protocol.MultipeerStatus{}, err
	}
	return protocol.BodyAs[protocol.MultipeerStatus](resp)
}

// WaitForIdle polls until at least one peer is known and every peer is idle.
// A zero spec uses the factory's PollSpec.
func (m *MultipeerReplicator) WaitForIdle(ctx context.Context, spec system.PollSpec) (protocol.MultipeerStatus, error) {
	ctx, span := system.NewSpan(ctx, "wait_for_multipeer_idle", m.db.server.index)
	defer span.End()

	waiter := &system.StateWaiter[protocol.MultipeerStatus]{
		Name:      fmt.Sprintf("peer group %s to become idle", m.config.PeerGroupID),
		Fetch:     m.GetStatus,
		Predicate: AllPeersIn(protocol.ActivityIdle),
		Spec:      m.db.server.factory.pollSpecOr(spec),
		Clock:     m.db.server.factory.clock,
	}
	return waiter.Wait(ctx)
}

// Listener is a handle to a passive peer-to-peer listener.
type Listener struct {
	db          *Database
	collections []string
	requested   int

	mu   sync.Mutex
	id   string
	port int
}

// NewListener prepares a listener serving collections of db. A zero port
// lets the server choose.
func NewListener(db *Database, collections []string, port int) *Listener {
	return &Listener{db: db, collections: collections, requested: port, port: port}
}

// Port is the bound port once started, and the requested one otherwise.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// Start begins listening.
func (l *Listener) Start(ctx context.Context) error {
	ctx, span := system.NewSpan(ctx, "start_listener", l.db.server.index)
	defer span.End()

	resp, err := l.db.send(ctx, protocol.StartListener{Database: l.db.name, Collections: l.collections, Port: l.requested})
	if err != nil {
		return err
	}
	started, err := protocol.BodyAs[protocol.ListenerStarted](resp)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.id, l.port = started.ID, started.Port
	l.mu.Unlock()
	return nil
}

// Stop stops listening.
func (l *Listener) Stop(ctx context.Context) error {
	ctx, span := system.NewSpan(ctx, "stop_listener", l.db.server.index)
	defer span.End()

	l.mu.Lock()
	id := l.id
	l.mu.Unlock()
	if id == "" {
		return fmt.Errorf("listener %w", errNotStarted)
	}
	if _, err := l.db.send(ctx, protocol.StopListener{ID: id}); err != nil {
		return err
	}
	l.mu.Lock()
	l.id, l.port = "", l.requested
	l.mu.Unlock()
	return nil
}
