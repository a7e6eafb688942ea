package protocol

// Payload is the body of a request. The set of payloads is closed: every
// implementation lives in this package and names the operation it belongs to.
type Payload interface {
	Kind() Kind
	payload()
}

// GetRoot asks a test server to describe itself. It has no body on the wire.
type GetRoot struct{}

// ResetV1 recreates databases from named datasets, protocol version 1.
type ResetV1 struct {
	Datasets map[string][]string `json:"datasets"`
}

// AddDataset requests that each of dbNames be created from dataset.
func (r *ResetV1) AddDataset(dataset string, dbNames ...string) {
	if r.Datasets == nil {
		r.Datasets = map[string][]string{}
	}
	r.Datasets[dataset] = append(r.Datasets[dataset], dbNames...)
}

// Reset recreates databases and tags the new state with a test name,
// protocol version 2.
type Reset struct {
	Databases map[string]ResetDatabase `json:"databases,omitempty"`
	TestName  string                   `json:"test,omitempty"`
}

// ResetDatabase describes how one database is recreated: from a named
// dataset, or empty with the given collections.
type ResetDatabase struct {
	Dataset     string   `json:"dataset,omitempty"`
	Collections []string `json:"collections,omitempty"`
}

// AddDataset requests that each of dbNames be created from dataset. The
// server resolves the name against the session's dataset version.
func (r *Reset) AddDataset(dataset string, dbNames ...string) {
	r.ensure()
	for _, name := range dbNames {
		r.Databases[name] = ResetDatabase{Dataset: dataset}
	}
}

// AddEmpty requests an empty database with the given collections.
func (r *Reset) AddEmpty(dbName string, collections ...string) {
	r.ensure()
	r.Databases[dbName] = ResetDatabase{Collections: collections}
}

func (r *Reset) ensure() {
	if r.Databases == nil {
		r.Databases = map[string]ResetDatabase{}
	}
}

// GetAllDocumentIDs lists the documents of some collections.
type GetAllDocumentIDs struct {
	Database    string   `json:"database"`
	Collections []string `json:"collections"`
}

// UpdateType is the kind of change a DatabaseUpdateEntry performs.
type UpdateType string

const (
	UpdateTypeUpdate UpdateType = "UPDATE"
	UpdateTypeDelete UpdateType = "DELETE"
	UpdateTypePurge  UpdateType = "PURGE"
)

// DatabaseUpdateEntry is one document change in an UpdateDatabase or
// VerifyDocuments request. UpdatedProperties holds single-entry maps of
// keypath to value, applied in order.
type DatabaseUpdateEntry struct {
	Type              UpdateType        `json:"type"`
	Collection        string            `json:"collection"`
	DocumentID        string            `json:"documentID"`
	UpdatedProperties []map[string]any  `json:"updatedProperties,omitempty"`
	RemovedProperties []string          `json:"removedProperties,omitempty"`
	UpdatedBlobs      map[string]string `json:"updatedBlobs,omitempty"`
}

// Valid reports whether the entry would change anything. DELETE and PURGE
// always do; UPDATE needs at least one property or blob.
func (e DatabaseUpdateEntry) Valid() bool {
	if e.Type != UpdateTypeUpdate {
		return true
	}
	return len(e.UpdatedProperties) > 0 || len(e.RemovedProperties) > 0 || len(e.UpdatedBlobs) > 0
}

// UpdateDatabase applies a batch of document changes.
type UpdateDatabase struct {
	Database string                `json:"database"`
	Updates  []DatabaseUpdateEntry `json:"updates"`
}

// DocumentRef is the fully qualified name of a document in a database.
type DocumentRef struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// SnapshotDocuments captures a baseline of the listed documents.
type SnapshotDocuments struct {
	Database string        `json:"database"`
	Entries  []DocumentRef `json:"entries"`
}

// VerifyDocuments asks the server to compare a snapshot plus changes against
// the current contents of the database.
type VerifyDocuments struct {
	Database string                `json:"database"`
	Snapshot string                `json:"snapshot"`
	Changes  []DatabaseUpdateEntry `json:"changes"`
}

// ReplicatorType is the direction of a replication.
type ReplicatorType string

const (
	ReplicatorPush        ReplicatorType = "push"
	ReplicatorPull        ReplicatorType = "pull"
	ReplicatorPushAndPull ReplicatorType = "pushAndPull"
)

// ReplicatorFilter names a server-side filter and its parameters.
type ReplicatorFilter struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// ReplicatorCollection configures replication of a set of collections.
type ReplicatorCollection struct {
	Names       []string          `json:"names"`
	Channels    []string          `json:"channels,omitempty"`
	DocumentIDs []string          `json:"documentIDs,omitempty"`
	PushFilter  *ReplicatorFilter `json:"pushFilter,omitempty"`
	PullFilter  *ReplicatorFilter `json:"pullFilter,omitempty"`
}

// ReplicatorAuthenticator is either basic credentials or a session cookie.
type ReplicatorAuthenticator struct {
	Type       string `json:"type"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	SessionID  string `json:"sessionID,omitempty"`
	CookieName string `json:"cookieName,omitempty"`
}

// BasicAuthenticator builds a username/password authenticator.
func BasicAuthenticator(username, password string) *ReplicatorAuthenticator {
	return &ReplicatorAuthenticator{Type: "BASIC", Username: username, Password: password}
}

// SessionAuthenticator builds a session cookie authenticator. An empty
// cookie name selects the gateway default.
func SessionAuthenticator(sessionID, cookieName string) *ReplicatorAuthenticator {
	if cookieName == "" {
		cookieName = "SyncGatewaySession"
	}
	return &ReplicatorAuthenticator{Type: "SESSION", SessionID: sessionID, CookieName: cookieName}
}

// StartReplicator starts a replicator between a local database and a
// remote endpoint.
type StartReplicator struct {
	Database               string                   `json:"database"`
	Endpoint               string                   `json:"endpoint"`
	ReplicatorType         ReplicatorType           `json:"replicatorType"`
	Continuous             bool                     `json:"continuous"`
	Reset                  bool                     `json:"reset"`
	Collections            []ReplicatorCollection   `json:"collections,omitempty"`
	Authenticator          *ReplicatorAuthenticator `json:"authenticator,omitempty"`
	EnableDocumentListener bool                     `json:"enableDocumentListener,omitempty"`
	EnableAutoPurge        bool                     `json:"enableAutoPurge,omitempty"`
}

// GetReplicatorStatus polls a replicator started with StartReplicator.
type GetReplicatorStatus struct {
	ID string `json:"id"`
}

// MaintenanceType is a database maintenance operation.
type MaintenanceType string

const (
	MaintenanceCompact        MaintenanceType = "compact"
	MaintenanceIntegrityCheck MaintenanceType = "integrityCheck"
	MaintenanceOptimize       MaintenanceType = "optimize"
	MaintenanceFullOptimize   MaintenanceType = "fullOptimize"
)

// PerformMaintenance runs a maintenance operation on a database.
type PerformMaintenance struct {
	Database        string          `json:"database"`
	MaintenanceType MaintenanceType `json:"maintenanceType"`
}

// RunQuery runs a query against a database.
type RunQuery struct {
	Database string `json:"database"`
	Query    string `json:"query"`
}

// GetDocument fetches a single document.
type GetDocument struct {
	Database string      `json:"database"`
	Document DocumentRef `json:"document"`
}

// SessionLogging points the test server at a remote log collector.
type SessionLogging struct {
	URL string `json:"url"`
	Tag string `json:"tag"`
}

// NewSession starts a client session on a test server.
type NewSession struct {
	ID             string          `json:"id"`
	DatasetVersion string          `json:"dataset_version,omitempty"`
	Logging        *SessionLogging `json:"logging,omitempty"`
}

// Log writes a message into the test server's log.
type Log struct {
	Message string `json:"message"`
}

// StartListener starts a passive peer-to-peer listener.
type StartListener struct {
	Database    string   `json:"database"`
	Collections []string `json:"collections"`
	Port        int      `json:"port,omitempty"`
}

// StopListener stops a listener started with StartListener.
type StopListener struct {
	ID string `json:"id"`
}

// MultipeerIdentity is the TLS identity a multipeer replicator presents.
type MultipeerIdentity struct {
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
	Password string `json:"password,omitempty"`
}

// StartMultipeerReplicator joins a peer group and replicates with every
// discovered peer.
type StartMultipeerReplicator struct {
	PeerGroupID   string                 `json:"peerGroupID"`
	Database      string                 `json:"database"`
	Collections   []ReplicatorCollection `json:"collections"`
	Identity      *MultipeerIdentity     `json:"identity,omitempty"`
	Authenticator map[string]any         `json:"authenticator,omitempty"`
}

// StopMultipeerReplicator leaves a peer group.
type StopMultipeerReplicator struct {
	ID string `json:"id"`
}

// GetMultipeerReplicatorStatus polls a multipeer replicator.
type GetMultipeerReplicatorStatus struct {
	ID string `json:"id"`
}

func (GetRoot) Kind() Kind                      { return KindRoot }
func (ResetV1) Kind() Kind                      { return KindReset }
func (Reset) Kind() Kind                        { return KindReset }
func (GetAllDocumentIDs) Kind() Kind            { return KindAllDocumentIDs }
func (UpdateDatabase) Kind() Kind               { return KindUpdateDatabase }
func (SnapshotDocuments) Kind() Kind            { return KindSnapshotDocuments }
func (VerifyDocuments) Kind() Kind              { return KindVerifyDocuments }
func (StartReplicator) Kind() Kind              { return KindStartReplicator }
func (GetReplicatorStatus) Kind() Kind          { return KindReplicatorStatus }
func (PerformMaintenance) Kind() Kind           { return KindPerformMaintenance }
func (RunQuery) Kind() Kind                     { return KindRunQuery }
func (GetDocument) Kind() Kind                  { return KindGetDocument }
func (NewSession) Kind() Kind                   { return KindNewSession }
func (Log) Kind() Kind                          { return KindLog }
func (StartListener) Kind() Kind                { return KindStartListener }
func (StopListener) Kind() Kind                 { return KindStopListener }
func (StartMultipeerReplicator) Kind() Kind     { return KindStartMultipeerReplicator }
func (StopMultipeerReplicator) Kind() Kind      { return KindStopMultipeerReplicator }
func (GetMultipeerReplicatorStatus) Kind() Kind { return KindMultipeerReplicatorStatus }

func (GetRoot) payload()                      {}
func (ResetV1) payload()                      {}
func (Reset) payload()                        {}
func (GetAllDocumentIDs) payload()            {}
func (UpdateDatabase) payload()               {}
func (SnapshotDocuments) payload()            {}
func (VerifyDocuments) payload()              {}
func (StartReplicator) payload()              {}
func (GetReplicatorStatus) payload()          {}
func (PerformMaintenance) payload()           {}
func (RunQuery) payload()                     {}
func (GetDocument) payload()                  {}
func (NewSession) payload()                   {}
func (Log) payload()                          {}
func (StartListener) payload()                {}
func (StopListener) payload()                 {}
func (StartMultipeerReplicator) payload()     {}
func (StopMultipeerReplicator) payload()      {}
func (GetMultipeerReplicatorStatus) payload() {}
