package protocol

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"

	"github.com/syncbench/tdk/pkg/tdkerrors"
)

// ResponseBody is the typed form of a response payload.
type ResponseBody interface {
	Kind() Kind
}

// ResponseConstructor builds the typed body for a successful response.
type ResponseConstructor func(body map[string]any) (ResponseBody, error)

// Empty is the body of operations that return nothing of interest.
type Empty struct {
	kind Kind
}

func (e Empty) Kind() Kind { return e.kind }

func emptyFor(kind Kind) ResponseConstructor {
	return func(map[string]any) (ResponseBody, error) {
		return Empty{kind: kind}, nil
	}
}

// ServerVariant identifies the platform a test server is built on.
type ServerVariant string

const (
	VariantAndroid ServerVariant = "ANDROID"
	VariantC       ServerVariant = "C"
	VariantDotNet  ServerVariant = "DOTNET"
	VariantIOS     ServerVariant = "IOS"
	VariantJVM     ServerVariant = "JVM"
	VariantJS      ServerVariant = "JS"
)

var variants = map[string]ServerVariant{
	"couchbase-lite-android": VariantAndroid,
	"couchbase-lite-c":       VariantC,
	"couchbase-lite-net":     VariantDotNet,
	"couchbase-lite-ios":     VariantIOS,
	"couchbase-lite-java":    VariantJVM,
	"couchbase-lite-swift":   VariantIOS,
	"couchbase-lite-js":      VariantJS,
}

// RootInfo describes a test server. It is the only unversioned response and
// carries the API version the server speaks.
type RootInfo struct {
	LibraryVersion *semver.Version
	RawVersion     string
	APIVersion     int
	CBL            string
	Variant        ServerVariant
	Device         map[string]any
	AdditionalInfo string
}

func (RootInfo) Kind() Kind { return KindRoot }

// ServerVariant returns Variant, or an error when the server reported a
// library this client does not recognise.
func (i RootInfo) ServerVariant() (ServerVariant, error) {
	if i.Variant == "" {
		return "", fmt.Errorf("unknown test server variant %q", i.CBL)
	}
	return i.Variant, nil
}

func newRootInfo(body map[string]any) (ResponseBody, error) {
	var err error
	info := RootInfo{}
	if info.RawVersion, err = required[string](body, "version"); err != nil {
		return nil, err
	}
	apiVersion, err := required[float64](body, "apiVersion")
	if err != nil {
		return nil, err
	}
	info.APIVersion = int(apiVersion)
	if info.CBL, err = required[string](body, "cbl"); err != nil {
		return nil, err
	}
	if info.Device, err = required[map[string]any](body, "device"); err != nil {
		return nil, err
	}
	info.AdditionalInfo, _ = body["additionalInfo"].(string)

	// unrecognised libraries stay readable; ServerVariant reports them
	info.Variant = variants[info.CBL]

	// builds are reported as "3.2.0-143"; keep only the release part
	release, _, _ := strings.Cut(info.RawVersion, "-")
	if v, err := semver.NewVersion(release); err == nil {
		info.LibraryVersion = v
	}
	return info, nil
}

// DocumentRevision is one entry of an all-documents listing.
type DocumentRevision struct {
	ID  string
	Rev string
}

// AllDocuments maps collection names to their documents.
type AllDocuments struct {
	Collections map[string][]DocumentRevision
}

func (AllDocuments) Kind() Kind { return KindAllDocumentIDs }

func newAllDocuments(body map[string]any) (ResponseBody, error) {
	out := AllDocuments{Collections: map[string][]DocumentRevision{}}
	for collection, raw := range body {
		entries, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("invalid document entry in collection %s", collection)
			}
			id, err := required[string](entry, "id")
			if err != nil {
				return nil, err
			}
			rev, err := required[string](entry, "rev")
			if err != nil {
				return nil, err
			}
			out.Collections[collection] = append(out.Collections[collection], DocumentRevision{ID: id, Rev: rev})
		}
	}
	return out, nil
}

// Created carries the identifier of a remote object the server created:
// a snapshot, a replicator or a multipeer replicator.
type Created struct {
	kind Kind
	ID   string
}

func (c Created) Kind() Kind { return c.kind }

func createdFor(kind Kind) ResponseConstructor {
	return func(body map[string]any) (ResponseBody, error) {
		id, err := required[string](body, "id")
		if err != nil {
			return nil, err
		}
		return Created{kind: kind, ID: id}, nil
	}
}

// ValueOrMissing distinguishes an explicit null from an absent value.
type ValueOrMissing struct {
	Value  any
	Exists bool
}

// Present wraps a value that exists, even if it is nil.
func Present(v any) ValueOrMissing { return ValueOrMissing{Value: v, Exists: true} }

// Missing is the absent value.
var Missing = ValueOrMissing{}

func (v ValueOrMissing) String() string {
	if !v.Exists {
		return "<missing>"
	}
	return fmt.Sprintf("%v", v.Value)
}

// VerifyOutcome is the server's answer to VerifyDocuments.
type VerifyOutcome struct {
	Result      bool
	Description string
	Expected    ValueOrMissing
	Actual      ValueOrMissing
	Document    map[string]any
}

func (VerifyOutcome) Kind() Kind { return KindVerifyDocuments }

func newVerifyOutcome(body map[string]any) (ResponseBody, error) {
	result, err := required[bool](body, "result")
	if err != nil {
		return nil, err
	}
	out := VerifyOutcome{Result: result}
	out.Description, _ = body["description"].(string)
	if v, ok := body["expected"]; ok {
		out.Expected = Present(v)
	}
	if v, ok := body["actual"]; ok {
		out.Actual = Present(v)
	}
	out.Document, _ = body["document"].(map[string]any)
	return out, nil
}

// ActivityLevel is the coarse state of a replicator.
type ActivityLevel string

const (
	ActivityStopped    ActivityLevel = "STOPPED"
	ActivityOffline    ActivityLevel = "OFFLINE"
	ActivityConnecting ActivityLevel = "CONNECTING"
	ActivityIdle       ActivityLevel = "IDLE"
	ActivityBusy       ActivityLevel = "BUSY"
)

// ParseActivityLevel accepts any casing of a known level.
func ParseActivityLevel(s string) (ActivityLevel, error) {
	level := ActivityLevel(strings.ToUpper(s))
	switch level {
	case ActivityStopped, ActivityOffline, ActivityConnecting, ActivityIdle, ActivityBusy:
		return level, nil
	}
	return "", fmt.Errorf("unknown activity level %q", s)
}

// ReplicatedDocument is a document event reported by a replicator.
type ReplicatedDocument struct {
	Collection string
	DocumentID string
	IsPush     bool
	Flags      []string
	Error      *tdkerrors.ErrorBody
}

// ReplicatorStatus is the polled state of a replicator.
type ReplicatorStatus struct {
	Activity  ActivityLevel
	Completed bool
	Error     *tdkerrors.ErrorBody
	Documents []ReplicatedDocument
}

func (ReplicatorStatus) Kind() Kind { return KindReplicatorStatus }

func (s ReplicatorStatus) String() string {
	if s.Error != nil {
		return fmt.Sprintf("%s (%s)", s.Activity, s.Error)
	}
	return string(s.Activity)
}

func newReplicatorStatus(body map[string]any) (ResponseBody, error) {
	return parseReplicatorStatus(body)
}

func parseReplicatorStatus(body map[string]any) (ReplicatorStatus, error) {
	raw, err := required[string](body, "activity")
	if err != nil {
		return ReplicatorStatus{}, err
	}
	activity, err := ParseActivityLevel(raw)
	if err != nil {
		return ReplicatorStatus{}, err
	}
	status := ReplicatorStatus{Activity: activity}
	if progress, ok := body["progress"].(map[string]any); ok {
		status.Completed, _ = progress["completed"].(bool)
	}
	if e, ok := body["error"].(map[string]any); ok {
		status.Error = tdkerrors.ParseErrorBody(map[string]any{"error": e})
	}
	docs, _ := body["documents"].([]any)
	for _, d := range docs {
		entry, ok := d.(map[string]any)
		if !ok {
			continue
		}
		doc := ReplicatedDocument{}
		doc.Collection, _ = entry["collection"].(string)
		doc.DocumentID, _ = entry["documentID"].(string)
		doc.IsPush, _ = entry["isPush"].(bool)
		flags, _ := entry["flags"].([]any)
		for _, f := range flags {
			if s, ok := f.(string); ok {
				doc.Flags = append(doc.Flags, s)
			}
		}
		if e, ok := entry["error"].(map[string]any); ok {
			doc.Error = tdkerrors.ParseErrorBody(map[string]any{"error": e})
		}
		status.Documents = append(status.Documents, doc)
	}
	return status, nil
}

// QueryResults holds the rows returned by RunQuery.
type QueryResults struct {
	Results []map[string]any
}

func (QueryResults) Kind() Kind { return KindRunQuery }

func newQueryResults(body map[string]any) (ResponseBody, error) {
	rows, err := required[[]any](body, "results")
	if err != nil {
		return nil, err
	}
	out := QueryResults{Results: make([]map[string]any, 0, len(rows))}
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("query row is %T, not an object", r)
		}
		out.Results = append(out.Results, row)
	}
	return out, nil
}

// Document is a single fetched document: its id, revision history and body
// with the metadata keys removed.
type Document struct {
	ID   string
	Revs string
	Body map[string]any
}

func (Document) Kind() Kind { return KindGetDocument }

func newDocument(body map[string]any) (ResponseBody, error) {
	id, err := required[string](body, "_id")
	if err != nil {
		return nil, err
	}
	doc := Document{ID: id, Body: map[string]any{}}
	doc.Revs, _ = body["_revs"].(string)
	for k, v := range body {
		if k == "_id" || k == "_revs" {
			continue
		}
		doc.Body[k] = v
	}
	return doc, nil
}

// ListenerStarted identifies a started listener and the port it bound.
type ListenerStarted struct {
	ID   string
	Port int
}

func (ListenerStarted) Kind() Kind { return KindStartListener }

func newListenerStarted(body map[string]any) (ResponseBody, error) {
	id, err := required[string](body, "id")
	if err != nil {
		return nil, err
	}
	port, err := required[float64](body, "port")
	if err != nil {
		return nil, err
	}
	return ListenerStarted{ID: id, Port: int(port)}, nil
}

// PeerStatus is the replication state towards one peer of a group.
type PeerStatus struct {
	PeerID string
	Status ReplicatorStatus
}

// MultipeerStatus lists the per-peer state of a multipeer replicator.
type MultipeerStatus struct {
	Replicators []PeerStatus
}

func (MultipeerStatus) Kind() Kind { return KindMultipeerReplicatorStatus }

func newMultipeerStatus(body map[string]any) (ResponseBody, error) {
	entries, err := required[[]any](body, "replicators")
	if err != nil {
		return nil, err
	}
	out := MultipeerStatus{}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("multipeer status entry is %T, not an object", e)
		}
		peerID, err := required[string](entry, "peerID")
		if err != nil {
			return nil, err
		}
		rawStatus, _ := entry["status"].(map[string]any)
		status, err := parseReplicatorStatus(rawStatus)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", peerID, err)
		}
		out.Replicators = append(out.Replicators, PeerStatus{PeerID: peerID, Status: status})
	}
	return out, nil
}

func required[T any](body map[string]any, key string) (T, error) {
	var zero T
	raw, ok := body[key]
	if !ok {
		return zero, fmt.Errorf("missing required key %q", key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("key %q is %T, expected %T", key, raw, zero)
	}
	return v, nil
}
