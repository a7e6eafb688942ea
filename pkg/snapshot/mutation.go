package snapshot

import (
	"github.com/syncbench/tdk/pkg/protocol"
)

// BlobBaseURL is where the blob dataset is published. Blob names given to
// UpsertDocument are resolved against it.
const BlobBaseURL = "https://media.githubusercontent.com/media/couchbaselabs/couchbase-lite-tests/refs/heads/main/dataset/server/blobs/"

// DocumentEntry names a document by collection and id.
type DocumentEntry = protocol.DocumentRef

// Entry is shorthand for a DocumentEntry literal.
func Entry(collection, id string) DocumentEntry {
	return DocumentEntry{Collection: collection, ID: id}
}

// SetOp assigns Value at the keypath Path.
type SetOp struct {
	Path  string
	Value any
}

// Set is shorthand for a SetOp literal.
func Set(path string, value any) SetOp {
	return SetOp{Path: path, Value: value}
}

// Mutation is one declared change to a document. The implementations are
// Upsert, Delete and Purge.
type Mutation interface {
	Target() DocumentEntry
	UpdateEntry() protocol.DatabaseUpdateEntry
}

// Upsert creates the document if needed and then applies Sets in order,
// Removes, and finally Blobs (keypath to blob url).
type Upsert struct {
	Document DocumentEntry
	Sets     []SetOp
	Removes  []string
	Blobs    map[string]string
}

// Delete tombstones a document.
type Delete struct {
	Document DocumentEntry
}

// Purge removes every trace of a document.
type Purge struct {
	Document DocumentEntry
}

func (m Upsert) Target() DocumentEntry { return m.Document }
func (m Delete) Target() DocumentEntry { return m.Document }
func (m Purge) Target() DocumentEntry  { return m.Document }

func (m Upsert) UpdateEntry() protocol.DatabaseUpdateEntry {
	entry := protocol.DatabaseUpdateEntry{
		Type:       protocol.UpdateTypeUpdate,
		Collection: m.Document.Collection,
		DocumentID: m.Document.ID,
	}
	for _, op := range m.Sets {
		entry.UpdatedProperties = append(entry.UpdatedProperties, map[string]any{op.Path: op.Value})
	}
	if len(m.Removes) > 0 {
		entry.RemovedProperties = append([]string(nil), m.Removes...)
	}
	if len(m.Blobs) > 0 {
		entry.UpdatedBlobs = make(map[string]string, len(m.Blobs))
		for path, url := range m.Blobs {
			entry.UpdatedBlobs[path] = url
		}
	}
	return entry
}

func (m Delete) UpdateEntry() protocol.DatabaseUpdateEntry {
	return protocol.DatabaseUpdateEntry{
		Type:       protocol.UpdateTypeDelete,
		Collection: m.Document.Collection,
		DocumentID: m.Document.ID,
	}
}

func (m Purge) UpdateEntry() protocol.DatabaseUpdateEntry {
	return protocol.DatabaseUpdateEntry{
		Type:       protocol.UpdateTypePurge,
		Collection: m.Document.Collection,
		DocumentID: m.Document.ID,
	}
}

// Changes is an append-only list of mutations. It backs both snapshot
// updaters and plain batch updates.
type Changes struct {
	mutations []Mutation
}

// UpsertDocument declares that the document is created or merged with the
// given property sets, removals and blobs. blobs maps keypaths to blob names
// from the blob dataset. Any argument may be nil.
func (c *Changes) UpsertDocument(collection, id string, sets []SetOp, removes []string, blobs map[string]string) {
	m := Upsert{
		Document: Entry(collection, id),
		Sets:     append([]SetOp(nil), sets...),
		Removes:  append([]string(nil), removes...),
	}
	if len(blobs) > 0 {
		m.Blobs = make(map[string]string, len(blobs))
		for path, name := range blobs {
			m.Blobs[path] = BlobBaseURL + name
		}
	}
	c.mutations = append(c.mutations, m)
}

// DeleteDocument declares that the document is deleted.
func (c *Changes) DeleteDocument(collection, id string) {
	c.mutations = append(c.mutations, Delete{Document: Entry(collection, id)})
}

// PurgeDocument declares that the document is purged.
func (c *Changes) PurgeDocument(collection, id string) {
	c.mutations = append(c.mutations, Purge{Document: Entry(collection, id)})
}

// Mutations returns the declared mutations in order.
func (c *Changes) Mutations() []Mutation {
	return append([]Mutation(nil), c.mutations...)
}

// Len is the number of declared mutations.
func (c *Changes) Len() int {
	return len(c.mutations)
}

// Entries renders the mutations in wire form.
func (c *Changes) Entries() []protocol.DatabaseUpdateEntry {
	out := make([]protocol.DatabaseUpdateEntry, 0, len(c.mutations))
	for _, m := range c.mutations {
		out = append(out, m.UpdateEntry())
	}
	return out
}
