package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/syncbench/tdk/pkg/keypath"
	"github.com/syncbench/tdk/pkg/protocol"
)

// ValueOrMissing distinguishes an explicit null from an absent value.
type ValueOrMissing = protocol.ValueOrMissing

// VerifyResult is the outcome of a verification. The diagnostic fields are
// set only when Result is false and describe the first mismatch found.
type VerifyResult struct {
	Result      bool
	Description string
	Expected    ValueOrMissing
	Actual      ValueOrMissing
	Document    map[string]any
}

// FromOutcome converts a server-side verification outcome.
func FromOutcome(o protocol.VerifyOutcome) VerifyResult {
	if o.Result {
		return VerifyResult{Result: true}
	}
	return VerifyResult{
		Result:      false,
		Description: o.Description,
		Expected:    o.Expected,
		Actual:      o.Actual,
		Document:    o.Document,
	}
}

func (r VerifyResult) String() string {
	if r.Result {
		return "verified"
	}
	return fmt.Sprintf("%s (expected %s, actual %s)", r.Description, r.Expected, r.Actual)
}

// blobRef stands in for a blob in an expected body. The server replaces the
// url with a blob dictionary, so only the presence of an object is checked.
type blobRef string

type expectedDoc struct {
	entry   DocumentEntry
	exists  bool
	deleted bool
	purged  bool
	body    map[string]any
}

// Verify replays u against the baseline of snap, reads the current state of
// every document u touches and compares the two. Mismatches are reported in
// the result; an error means verification could not be performed. The
// updater is consumed even when verification fails.
func (e *Engine) Verify(ctx context.Context, snap *Snapshot, u *Updater) (VerifyResult, error) {
	if err := snap.Consume(u); err != nil {
		return VerifyResult{}, err
	}

	expected, err := replay(snap, u.mutations)
	if err != nil {
		return VerifyResult{}, err
	}

	for _, exp := range expected {
		actual, err := e.store.FetchDocument(ctx, exp.entry)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("fetching %s/%s for verification: %w", exp.entry.Collection, exp.entry.ID, err)
		}
		if result, ok := compareDocument(exp, actual); !ok {
			log.Ctx(ctx).Debug().Str("snapshot", snap.id).Str("document", exp.entry.ID).
				Str("description", result.Description).Msg("verification failed")
			return result, nil
		}
	}
	return VerifyResult{Result: true}, nil
}

// replay applies mutations to a copy of the baseline and returns the expected
// state of each touched document in first-touch order.
func replay(snap *Snapshot, mutations []Mutation) ([]*expectedDoc, error) {
	var order []*expectedDoc
	byEntry := map[DocumentEntry]*expectedDoc{}

	for _, m := range mutations {
		target := m.Target()
		doc, ok := byEntry[target]
		if !ok {
			base, _ := snap.Baseline(target)
			doc = &expectedDoc{entry: target, exists: base.Exists, deleted: base.Deleted, body: base.Body}
			byEntry[target] = doc
			order = append(order, doc)
		}

		switch m := m.(type) {
		case Delete:
			doc.deleted, doc.body = true, nil
		case Purge:
			doc.purged, doc.exists, doc.deleted, doc.body = true, false, false, nil
		case Upsert:
			if !doc.exists || doc.deleted || doc.purged || doc.body == nil {
				doc.body = map[string]any{}
			}
			doc.exists, doc.deleted, doc.purged = true, false, false
			if err := applyUpsert(doc.body, m); err != nil {
				return nil, fmt.Errorf("replaying upsert of %s/%s: %w", target.Collection, target.ID, err)
			}
		default:
			return nil, fmt.Errorf("unsupported mutation %T", m)
		}
	}
	return order, nil
}

func applyUpsert(body map[string]any, m Upsert) error {
	for _, op := range m.Sets {
		value, err := normalize(op.Value)
		if err != nil {
			return fmt.Errorf("value for %s: %w", op.Path, err)
		}
		if err := keypath.Set(body, op.Path, value); err != nil {
			return err
		}
	}
	for _, path := range m.Removes {
		if err := keypath.Remove(body, path); err != nil {
			return err
		}
	}
	paths := maps.Keys(m.Blobs)
	slices.Sort(paths)
	for _, path := range paths {
		if err := keypath.Set(body, path, blobRef(m.Blobs[path])); err != nil {
			return err
		}
	}
	return nil
}

func compareDocument(exp *expectedDoc, actual DocumentState) (VerifyResult, bool) {
	name := fmt.Sprintf("document %q in collection %q", exp.entry.ID, exp.entry.Collection)
	switch {
	case exp.purged:
		if actual.Exists {
			return VerifyResult{
				Description: fmt.Sprintf("%s was expected to be purged but still exists", name),
				Expected:    protocol.Missing,
				Actual:      protocol.Present(actual.Body),
				Document:    actual.Body,
			}, false
		}
		return VerifyResult{}, true
	case exp.deleted || !exp.exists:
		if actual.Resolvable() {
			return VerifyResult{
				Description: fmt.Sprintf("%s was expected to be deleted but still exists", name),
				Expected:    protocol.Missing,
				Actual:      protocol.Present(actual.Body),
				Document:    actual.Body,
			}, false
		}
		return VerifyResult{}, true
	case !actual.Resolvable():
		return VerifyResult{
			Description: fmt.Sprintf("%s was expected to exist but was not found", name),
			Expected:    protocol.Present(exp.body),
			Actual:      protocol.Missing,
		}, false
	}

	diff := compareValues(keypath.Path{}, protocol.Present(exp.body), protocol.Present(actual.Body))
	if diff == nil {
		return VerifyResult{}, true
	}
	return VerifyResult{
		Description: fmt.Sprintf("%s had unexpected properties at key %q", name, diff.path.String()),
		Expected:    diff.expected,
		Actual:      diff.actual,
		Document:    actual.Body,
	}, false
}

type mismatch struct {
	path     keypath.Path
	expected ValueOrMissing
	actual   ValueOrMissing
}

// compareValues walks both values in a fixed order: object keys sorted,
// array elements by index and then length. It returns the first difference.
func compareValues(path keypath.Path, expected, actual ValueOrMissing) *mismatch {
	differ := &mismatch{path: path, expected: expected, actual: actual}
	if !expected.Exists || !actual.Exists {
		if expected.Exists == actual.Exists {
			return nil
		}
		return differ
	}

	switch exp := expected.Value.(type) {
	case blobRef:
		if _, ok := actual.Value.(map[string]any); ok {
			return nil
		}
		return &mismatch{path: path, expected: protocol.Present(string(exp)), actual: actual}
	case map[string]any:
		act, ok := actual.Value.(map[string]any)
		if !ok {
			return differ
		}
		for _, key := range unionKeys(exp, act) {
			e, eok := exp[key]
			a, aok := act[key]
			if d := compareValues(path.Child(keypath.Field(key)), present(e, eok), present(a, aok)); d != nil {
				return d
			}
		}
		return nil
	case []any:
		act, ok := actual.Value.([]any)
		if !ok {
			return differ
		}
		n := len(exp)
		if len(act) < n {
			n = len(act)
		}
		for i := 0; i < n; i++ {
			if d := compareValues(path.Child(keypath.Index(i)), protocol.Present(exp[i]), protocol.Present(act[i])); d != nil {
				return d
			}
		}
		switch {
		case len(exp) > n:
			return &mismatch{path: path.Child(keypath.Index(n)), expected: protocol.Present(exp[n]), actual: protocol.Missing}
		case len(act) > n:
			return &mismatch{path: path.Child(keypath.Index(n)), expected: protocol.Missing, actual: protocol.Present(act[n])}
		}
		return nil
	}

	if scalarEqual(expected.Value, actual.Value) {
		return nil
	}
	return differ
}

func present(v any, ok bool) ValueOrMissing {
	if !ok {
		return protocol.Missing
	}
	return protocol.Present(v)
}

func unionKeys(a, b map[string]any) []string {
	keys := maps.Keys(a)
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// scalarEqual compares leaf values that are not containers on the
// expected side.
func scalarEqual(a, b any) bool {
	switch b.(type) {
	case []any, map[string]any:
		return false
	}
	return reflect.DeepEqual(a, b)
}

// normalize converts a caller-supplied value into the shape decoded JSON
// has, so that it compares equal to what the store returns.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
