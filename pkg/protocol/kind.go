package protocol

import (
	"fmt"
	"net/http"
)

// Kind identifies an operation of the control protocol.
type Kind int

const (
	KindRoot Kind = iota
	KindReset
	KindAllDocumentIDs
	KindUpdateDatabase
	KindStartReplicator
	KindReplicatorStatus
	KindSnapshotDocuments
	KindVerifyDocuments
	KindPerformMaintenance
	KindRunQuery
	KindGetDocument
	KindNewSession
	KindLog
	KindStartListener
	KindStopListener
	KindStartMultipeerReplicator
	KindStopMultipeerReplicator
	KindMultipeerReplicatorStatus
)

type route struct {
	name   string
	method string
	path   string
}

var routes = map[Kind]route{
	KindRoot:                      {"GetRoot", http.MethodGet, ""},
	KindReset:                     {"Reset", http.MethodPost, "reset"},
	KindAllDocumentIDs:            {"GetAllDocuments", http.MethodPost, "getAllDocuments"},
	KindUpdateDatabase:            {"UpdateDatabase", http.MethodPost, "updateDatabase"},
	KindStartReplicator:           {"StartReplicator", http.MethodPost, "startReplicator"},
	KindReplicatorStatus:          {"GetReplicatorStatus", http.MethodPost, "getReplicatorStatus"},
	KindSnapshotDocuments:         {"SnapshotDocuments", http.MethodPost, "snapshotDocuments"},
	KindVerifyDocuments:           {"VerifyDocuments", http.MethodPost, "verifyDocuments"},
	KindPerformMaintenance:        {"PerformMaintenance", http.MethodPost, "performMaintenance"},
	KindRunQuery:                  {"RunQuery", http.MethodPost, "runQuery"},
	KindGetDocument:               {"GetDocument", http.MethodPost, "getDocument"},
	KindNewSession:                {"NewSession", http.MethodPost, "newSession"},
	KindLog:                       {"Log", http.MethodPost, "log"},
	KindStartListener:             {"StartListener", http.MethodPost, "startListener"},
	KindStopListener:              {"StopListener", http.MethodPost, "stopListener"},
	KindStartMultipeerReplicator:  {"StartMultipeerReplicator", http.MethodPost, "startMultipeerReplicator"},
	KindStopMultipeerReplicator:   {"StopMultipeerReplicator", http.MethodPost, "stopMultipeerReplicator"},
	KindMultipeerReplicatorStatus: {"GetMultipeerReplicatorStatus", http.MethodPost, "getMultipeerReplicatorStatus"},
}

func (k Kind) String() string {
	if r, ok := routes[k]; ok {
		return r.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Method returns the HTTP method used for the operation.
func (k Kind) Method() string {
	return routes[k].method
}

// Path returns the operation's route relative to the server root, without a
// leading slash. Root is the empty path.
func (k Kind) Path() string {
	return routes[k].path
}

// Kinds returns every known operation kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(routes))
	for k := KindRoot; k <= KindMultipeerReplicatorStatus; k++ {
		out = append(out, k)
	}
	return out
}
