package protocol

import "errors"

var (
	v1     = []int{1}
	v2     = []int{2}
	v1v2   = []int{1, 2}
	rootV0 = []int{0}
)

// NewRegistry builds the registry of every operation this client speaks.
func NewRegistry() (*Registry, error) {
	r := NewEmptyRegistry()
	err := errors.Join(
		Register[GetRoot](r, KindRoot, rootV0, newRootInfo),
		Register[ResetV1](r, KindReset, v1, emptyFor(KindReset)),
		Register[Reset](r, KindReset, v2, emptyFor(KindReset)),
		Register[NewSession](r, KindNewSession, v2, emptyFor(KindNewSession)),
		Register[GetAllDocumentIDs](r, KindAllDocumentIDs, v1v2, newAllDocuments),
		Register[UpdateDatabase](r, KindUpdateDatabase, v1v2, emptyFor(KindUpdateDatabase)),
		Register[SnapshotDocuments](r, KindSnapshotDocuments, v1v2, createdFor(KindSnapshotDocuments)),
		Register[VerifyDocuments](r, KindVerifyDocuments, v1v2, newVerifyOutcome),
		Register[StartReplicator](r, KindStartReplicator, v1v2, createdFor(KindStartReplicator)),
		Register[GetReplicatorStatus](r, KindReplicatorStatus, v1v2, newReplicatorStatus),
		Register[PerformMaintenance](r, KindPerformMaintenance, v1v2, emptyFor(KindPerformMaintenance)),
		Register[RunQuery](r, KindRunQuery, v1v2, newQueryResults),
		Register[GetDocument](r, KindGetDocument, v1v2, newDocument),
		Register[Log](r, KindLog, v1v2, emptyFor(KindLog)),
		Register[StartListener](r, KindStartListener, v2, newListenerStarted),
		Register[StopListener](r, KindStopListener, v2, emptyFor(KindStopListener)),
		Register[StartMultipeerReplicator](r, KindStartMultipeerReplicator, v2, createdFor(KindStartMultipeerReplicator)),
		Register[StopMultipeerReplicator](r, KindStopMultipeerReplicator, v2, emptyFor(KindStopMultipeerReplicator)),
		Register[GetMultipeerReplicatorStatus](r, KindMultipeerReplicatorStatus, v2, newMultipeerStatus),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on a configuration error.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}
