package keypath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a keypath: either an object field or an array index.
type Segment struct {
	Field   string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return escapeField(s.Field)
}

// Path is a parsed keypath.
type Path []Segment

// SyntaxError is returned by Parse for malformed keypaths.
type SyntaxError struct {
	Path   string
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid keypath %q at %d: %s", e.Path, e.Pos, e.Reason)
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse parses a keypath such as "$.name.first", "contact.email[0]" or
// "[1].tags[2]". A backslash escapes the next character inside a field name.
func Parse(raw string) (Path, error) {
	s := &scanner{raw: raw}
	if s.eof() {
		return nil, s.fail("empty keypath")
	}
	if strings.HasPrefix(raw, "$") {
		if len(raw) < 2 || raw[1] != '.' {
			return nil, s.fail("expecting '.' after '$'")
		}
		s.pos = 2
	}

	var path Path
	first := true
	for !s.eof() {
		switch s.peek() {
		case '[':
			seg, err := s.index()
			if err != nil {
				return nil, err
			}
			path = append(path, seg)
		case '.':
			if first {
				return nil, s.fail("unexpected '.'")
			}
			s.pos++
			seg, err := s.field()
			if err != nil {
				return nil, err
			}
			path = append(path, seg)
		case ']':
			return nil, s.fail("unexpected ']'")
		default:
			if !first {
				return nil, s.fail("expecting '.' or '['")
			}
			seg, err := s.field()
			if err != nil {
				return nil, err
			}
			path = append(path, seg)
		}
		first = false
	}
	if len(path) == 0 {
		return nil, s.fail("empty keypath")
	}
	return path, nil
}

func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range p {
		if !seg.IsIndex {
			sb.WriteByte('.')
		}
		sb.WriteString(seg.String())
	}
	return sb.String()
}

// Child returns a copy of p extended by seg.
func (p Path) Child(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Field and Index build single segments.
func Field(name string) Segment { return Segment{Field: name} }
func Index(i int) Segment       { return Segment{Index: i, IsIndex: true} }

type scanner struct {
	raw string
	pos int
}

func (s *scanner) eof() bool  { return s.pos >= len(s.raw) }
func (s *scanner) peek() byte { return s.raw[s.pos] }

func (s *scanner) fail(reason string) *SyntaxError {
	return &SyntaxError{Path: s.raw, Pos: s.pos, Reason: reason}
}

func (s *scanner) field() (Segment, error) {
	var sb strings.Builder
	for !s.eof() {
		c := s.peek()
		if c == '.' || c == '[' || c == ']' {
			break
		}
		if c == '\\' {
			s.pos++
			if s.eof() {
				return Segment{}, s.fail("dangling escape")
			}
			c = s.peek()
		}
		sb.WriteByte(c)
		s.pos++
	}
	if sb.Len() == 0 {
		return Segment{}, s.fail("empty property")
	}
	return Field(sb.String()), nil
}

func (s *scanner) index() (Segment, error) {
	s.pos++ // '['
	start := s.pos
	for !s.eof() && s.peek() >= '0' && s.peek() <= '9' {
		s.pos++
	}
	digits := s.raw[start:s.pos]
	if s.eof() || s.peek() != ']' {
		return Segment{}, s.fail("expecting ']'")
	}
	if digits == "" {
		return Segment{}, s.fail("empty index")
	}
	s.pos++
	i, err := strconv.Atoi(digits)
	if err != nil {
		return Segment{}, s.fail("unparsable index " + digits)
	}
	return Index(i), nil
}

func escapeField(name string) string {
	if !strings.ContainsAny(name, `.[]\`) {
		return name
	}
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteByte(name[i])
	}
	return sb.String()
}
