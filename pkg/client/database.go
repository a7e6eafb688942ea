package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/snapshot"
	"github.com/syncbench/tdk/pkg/system"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

// Database is a handle to a database on a test server. It is also the
// document store snapshots are captured from and verified against.
type Database struct {
	server *TestServer
	name   string
	engine *snapshot.Engine
}

func newDatabase(ts *TestServer, name string) *Database {
	db := &Database{server: ts, name: name}
	db.engine, _ = snapshot.NewEngine(db)
	return db
}

func (db *Database) Name() string        { return db.name }
func (db *Database) Server() *TestServer { return db.server }

func (db *Database) send(ctx context.Context, payload protocol.Payload) (*protocol.Response, error) {
	return db.server.factory.send(ctx, db.server.index, payload)
}

// GetAllDocuments lists the documents of the given collections.
func (db *Database) GetAllDocuments(ctx context.Context, collections ...string) (protocol.AllDocuments, error) {
	ctx, span := system.NewSpan(ctx, "get_all_documents", db.server.index)
	defer span.End()

	resp, err := db.send(ctx, protocol.GetAllDocumentIDs{Database: db.name, Collections: collections})
	if err != nil {
		return protocol.AllDocuments{}, err
	}
	return protocol.BodyAs[protocol.AllDocuments](resp)
}

// GetDocument fetches one document.
func (db *Database) GetDocument(ctx context.Context, entry snapshot.DocumentEntry) (protocol.Document, error) {
	ctx, span := system.NewSpan(ctx, "get_document", db.server.index)
	defer span.End()

	resp, err := db.send(ctx, protocol.GetDocument{Database: db.name, Document: entry})
	if err != nil {
		return protocol.Document{}, err
	}
	return protocol.BodyAs[protocol.Document](resp)
}

// FetchDocument implements snapshot.DocumentStore. A 404 from the server
// means the document does not exist.
func (db *Database) FetchDocument(ctx context.Context, entry snapshot.DocumentEntry) (snapshot.DocumentState, error) {
	doc, err := db.GetDocument(ctx, entry)
	if err != nil {
		if bad, ok := tdkerrors.AsBadResponse(err); ok && bad.Code == http.StatusNotFound {
			return snapshot.DocumentState{}, nil
		}
		return snapshot.DocumentState{}, err
	}
	return snapshot.DocumentState{Exists: true, Body: doc.Body}, nil
}

// CreateSnapshot implements snapshot.DocumentStore.
func (db *Database) CreateSnapshot(ctx context.Context, entries []snapshot.DocumentEntry) (string, error) {
	ctx, span := system.NewSpan(ctx, "create_snapshot", db.server.index)
	defer span.End()

	resp, err := db.send(ctx, protocol.SnapshotDocuments{Database: db.name, Entries: entries})
	if err != nil {
		return "", err
	}
	created, err := protocol.BodyAs[protocol.Created](resp)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// CaptureSnapshot snapshots the listed documents and records their current
// bodies as the baseline for VerifyDocuments.
func (db *Database) CaptureSnapshot(ctx context.Context, entries ...snapshot.DocumentEntry) (*snapshot.Snapshot, error) {
	return db.engine.Capture(ctx, entries)
}

// VerifyDocuments replays u against the snapshot baseline and compares the
// result with the live documents.
func (db *Database) VerifyDocuments(ctx context.Context, snap *snapshot.Snapshot, u *snapshot.Updater) (snapshot.VerifyResult, error) {
	ctx, span := system.NewSpan(ctx, "verify_documents", db.server.index)
	defer span.End()
	return db.engine.Verify(ctx, snap, u)
}

// VerifyDocumentsRemote has the test server perform the verification.
func (db *Database) VerifyDocumentsRemote(ctx context.Context, snap *snapshot.Snapshot, u *snapshot.Updater) (snapshot.VerifyResult, error) {
	ctx, span := system.NewSpan(ctx, "verify_documents_remote", db.server.index)
	defer span.End()

	if err := snap.Consume(u); err != nil {
		return snapshot.VerifyResult{}, err
	}
	resp, err := db.send(ctx, protocol.VerifyDocuments{Database: db.name, Snapshot: snap.ID(), Changes: u.Entries()})
	if err != nil {
		return snapshot.VerifyResult{}, err
	}
	outcome, err := protocol.BodyAs[protocol.VerifyOutcome](resp)
	if err != nil {
		return snapshot.VerifyResult{}, err
	}
	return snapshot.FromOutcome(outcome), nil
}

// UpdateDocuments applies a batch of changes.
func (db *Database) UpdateDocuments(ctx context.Context, changes *snapshot.Changes) error {
	if changes == nil || changes.Len() == 0 {
		return errors.New("no changes to apply")
	}
	ctx, span := system.NewSpan(ctx, "update_database", db.server.index)
	defer span.End()

	resp, err := db.send(ctx, protocol.UpdateDatabase{Database: db.name, Updates: changes.Entries()})
	if err != nil {
		return err
	}
	if peerErr := resp.PeerError(); peerErr != nil {
		log.Ctx(ctx).Error().Str("database", db.name).Stringer("error", peerErr).Msg("failed to update database")
	}
	return nil
}

// RunQuery runs query and returns its rows.
func (db *Database) RunQuery(ctx context.Context, query string) ([]map[string]any, error) {
	ctx, span := system.NewSpan(ctx, "run_query", db.server.index)
	defer span.End()

	resp, err := db.send(ctx, protocol.RunQuery{Database: db.name, Query: query})
	if err != nil {
		return nil, err
	}
	results, err := protocol.BodyAs[protocol.QueryResults](resp)
	if err != nil {
		return nil, err
	}
	return results.Results, nil
}

// PerformMaintenance runs a maintenance operation.
func (db *Database) PerformMaintenance(ctx context.Context, maintenance protocol.MaintenanceType) error {
	ctx, span := system.NewSpan(ctx, "perform_maintenance", db.server.index)
	defer span.End()

	_, err := db.send(ctx, protocol.PerformMaintenance{Database: db.name, MaintenanceType: maintenance})
	return err
}

var _ snapshot.DocumentStore = (*Database)(nil)
