// Package keypath implements SET, REMOVE and GET over JSON-like documents
// addressed by dotted keypaths with array indices.
//
// Documents are the values produced by encoding/json decoding into any:
// map[string]any, []any, string, float64, bool and nil.
package keypath

import "fmt"

// MaxPadding is how many nulls a single Set may insert to reach an index past
// the end of an array.
const MaxPadding = 1024

// PaddingError is returned by Set when an index lies more than MaxPadding
// elements past the end of its array.
type PaddingError struct {
	Path   Path
	Length int
}

func (e *PaddingError) Error() string {
	return fmt.Sprintf("cannot set %s: index is more than %d past the array length %d", e.Path, MaxPadding, e.Length)
}

// TypeMismatchError is returned by Set when a path traverses a value that is
// not the container its next segment requires.
type TypeMismatchError struct {
	Path  Path
	Found any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot traverse %s: found %T", e.Path, e.Found)
}

// Set assigns value at raw inside doc, creating missing objects and arrays.
// Writing past the end of an array pads the gap with nulls, up to MaxPadding
// of them. A JSON null on the
// way is replaced by the container the path requires. value is deep-copied.
func Set(doc map[string]any, raw string, value any) error {
	p, err := Parse(raw)
	if err != nil {
		return err
	}
	return p.Set(doc, value)
}

// Remove deletes the value at raw. Removing an absent path is a no-op.
// Removing an array element shifts the following elements down.
func Remove(doc map[string]any, raw string) error {
	p, err := Parse(raw)
	if err != nil {
		return err
	}
	p.Remove(doc)
	return nil
}

// Get returns the value at raw and whether it exists.
func Get(doc map[string]any, raw string) (any, bool, error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, false, err
	}
	v, ok := p.Get(doc)
	return v, ok, nil
}

// Set assigns value at p inside doc.
func (p Path) Set(doc map[string]any, value any) error {
	if p[0].IsIndex {
		return &TypeMismatchError{Path: p[:1], Found: doc}
	}
	_, err := setIn(doc, p, 0, DeepCopy(value))
	return err
}

// Remove deletes the value at p inside doc, if present.
func (p Path) Remove(doc map[string]any) {
	if p[0].IsIndex {
		return
	}
	removeIn(doc, p)
}

// Get returns the value at p inside doc and whether it exists.
func (p Path) Get(doc map[string]any) (any, bool) {
	var node any = doc
	for _, seg := range p {
		next, ok := step(node, seg)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

func step(node any, seg Segment) (any, bool) {
	if seg.IsIndex {
		arr, ok := node.([]any)
		if !ok || seg.Index >= len(arr) {
			return nil, false
		}
		return arr[seg.Index], true
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[seg.Field]
	return v, ok
}

// setIn returns the (possibly reallocated) container holding the update.
func setIn(node any, p Path, depth int, value any) (any, error) {
	seg := p[depth]
	last := depth == len(p)-1

	if seg.IsIndex {
		var arr []any
		switch n := node.(type) {
		case nil:
		case []any:
			arr = n
		default:
			return nil, &TypeMismatchError{Path: p[:depth+1], Found: node}
		}
		if seg.Index-len(arr) > MaxPadding {
			return nil, &PaddingError{Path: p[:depth+1], Length: len(arr)}
		}
		for len(arr) <= seg.Index {
			arr = append(arr, nil)
		}
		if last {
			arr[seg.Index] = value
			return arr, nil
		}
		child, err := setIn(arr[seg.Index], p, depth+1, value)
		if err != nil {
			return nil, err
		}
		arr[seg.Index] = child
		return arr, nil
	}

	var obj map[string]any
	switch n := node.(type) {
	case nil:
		obj = map[string]any{}
	case map[string]any:
		obj = n
	default:
		return nil, &TypeMismatchError{Path: p[:depth+1], Found: node}
	}
	if last {
		obj[seg.Field] = value
		return obj, nil
	}
	child, err := setIn(obj[seg.Field], p, depth+1, value)
	if err != nil {
		return nil, err
	}
	obj[seg.Field] = child
	return obj, nil
}

// removeIn returns the updated container and whether anything changed.
func removeIn(node any, p Path) (any, bool) {
	seg := p[0]
	last := len(p) == 1

	switch n := node.(type) {
	case map[string]any:
		if seg.IsIndex {
			return node, false
		}
		child, ok := n[seg.Field]
		if !ok {
			return node, false
		}
		if last {
			delete(n, seg.Field)
			return n, true
		}
		updated, changed := removeIn(child, p[1:])
		if changed {
			n[seg.Field] = updated
		}
		return n, changed
	case []any:
		if !seg.IsIndex || seg.Index >= len(n) {
			return node, false
		}
		if last {
			return append(n[:seg.Index], n[seg.Index+1:]...), true
		}
		updated, changed := removeIn(n[seg.Index], p[1:])
		if changed {
			n[seg.Index] = updated
		}
		return n, changed
	default:
		return node, false
	}
}

// DeepCopy clones the JSON-like value v so that later writes to either copy
// are not visible through the other.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = DeepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	default:
		return v
	}
}

// CopyDocument is DeepCopy for a document root. A nil document yields nil.
func CopyDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	return DeepCopy(doc).(map[string]any)
}
