//go:build unit || !integration

package keypath

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type KeypathSuite struct {
	suite.Suite
}

func TestKeypathSuite(t *testing.T) {
	suite.Run(t, new(KeypathSuite))
}

func (s *KeypathSuite) TestParse() {
	cases := []struct {
		raw  string
		want Path
	}{
		{"name", Path{Field("name")}},
		{"$.name.first", Path{Field("name"), Field("first")}},
		{"contact.email[0]", Path{Field("contact"), Field("email"), Index(0)}},
		{"a[1][2].b", Path{Field("a"), Index(1), Index(2), Field("b")}},
		{"[3]", Path{Index(3)}},
		{`dotted\.key`, Path{Field("dotted.key")}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		s.Require().NoError(err, tc.raw)
		s.Equal(tc.want, got, tc.raw)
	}
}

func (s *KeypathSuite) TestParseErrors() {
	for _, raw := range []string{"", "$", "$x", "$.", "a..b", ".a", "a[", "a[]", "a[x]", "a]", "a[1]b", `a\`} {
		_, err := Parse(raw)
		var syntaxErr *SyntaxError
		s.Require().ErrorAs(err, &syntaxErr, raw)
	}
}

func (s *KeypathSuite) TestStringRoundTrip() {
	for _, raw := range []string{"$.a", "$.a[0].b", `$.x\.y[2]`} {
		s.Equal(raw, MustParse(raw).String())
	}
}

func (s *KeypathSuite) TestSetCreatesIntermediates() {
	doc := map[string]any{}
	s.Require().NoError(Set(doc, "name.first", "Ada"))
	s.Require().NoError(Set(doc, "contact.email[1]", "a@b.c"))

	expected := map[string]any{
		"name":    map[string]any{"first": "Ada"},
		"contact": map[string]any{"email": []any{nil, "a@b.c"}},
	}
	s.Nil(deep.Equal(expected, doc))
}

func (s *KeypathSuite) TestSetPaddingLimit() {
	doc := map[string]any{"a": []any{"x"}}

	var padding *PaddingError
	s.Require().ErrorAs(Set(doc, "a[1000000000]", 1.0), &padding)
	s.Equal(1, padding.Length)
	s.Equal([]any{"x"}, doc["a"])

	s.Require().NoError(Set(doc, "a[1025]", 1.0))
	s.Len(doc["a"], 1026)

	s.ErrorAs(Set(map[string]any{}, "b[1025]", 1.0), &padding)
}

func (s *KeypathSuite) TestSetLastWriteWins() {
	doc := map[string]any{}
	s.Require().NoError(Set(doc, "a.b", 1.0))
	s.Require().NoError(Set(doc, "a.b", 2.0))
	v, ok, err := Get(doc, "a.b")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(2.0, v)
}

func (s *KeypathSuite) TestSetTypeMismatch() {
	doc := map[string]any{"a": "scalar", "arr": []any{1.0}}

	var mismatch *TypeMismatchError
	s.ErrorAs(Set(doc, "a.b", 1), &mismatch)
	s.ErrorAs(Set(doc, "arr.b", 1), &mismatch)
	s.ErrorAs(Set(doc, "[0]", 1), &mismatch)
	s.Equal("scalar", doc["a"])
}

func (s *KeypathSuite) TestSetCopiesValue() {
	value := map[string]any{"k": "v"}
	doc := map[string]any{}
	s.Require().NoError(Set(doc, "x", value))
	value["k"] = "changed"
	s.Equal("v", doc["x"].(map[string]any)["k"])
}

func (s *KeypathSuite) TestRemoveAbsentIsNoop() {
	doc := map[string]any{"a": map[string]any{"b": 1.0}, "list": []any{1.0}}
	before := CopyDocument(doc)

	for _, raw := range []string{"missing", "a.c", "a.b.c", "list[5]", "list.x", "a[0]"} {
		s.Require().NoError(Remove(doc, raw))
	}
	s.Nil(deep.Equal(before, doc))
}

func (s *KeypathSuite) TestRemoveIsIdempotent() {
	doc := map[string]any{"a": map[string]any{"b": 1.0, "c": 2.0}}
	s.Require().NoError(Remove(doc, "a.b"))
	once := CopyDocument(doc)
	s.Require().NoError(Remove(doc, "a.b"))
	s.Nil(deep.Equal(once, doc))
	s.Equal(map[string]any{"a": map[string]any{"c": 2.0}}, doc)
}

func (s *KeypathSuite) TestRemoveIndexShifts() {
	doc := map[string]any{"tags": []any{"x", "y", "z"}}
	s.Require().NoError(Remove(doc, "tags[1]"))
	s.Equal([]any{"x", "z"}, doc["tags"])
}

func (s *KeypathSuite) TestRemoveNested() {
	doc := map[string]any{"list": []any{map[string]any{"a": 1.0, "b": 2.0}}}
	s.Require().NoError(Remove(doc, "list[0].a"))
	s.Equal([]any{map[string]any{"b": 2.0}}, doc["list"])
}

func TestSetThenRemoveOrdering(t *testing.T) {
	doc := map[string]any{}
	require.NoError(t, Set(doc, "a", "x"))
	require.NoError(t, Remove(doc, "a"))
	_, ok, _ := Get(doc, "a")
	require.False(t, ok)

	require.NoError(t, Remove(doc, "b"))
	require.NoError(t, Set(doc, "b", "y"))
	v, ok, _ := Get(doc, "b")
	require.True(t, ok)
	require.Equal(t, "y", v)
}
