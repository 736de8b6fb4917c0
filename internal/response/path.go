package response

import (
	"strconv"
	"strings"
)

// Segment is one step of a response path: either a mapping key or a list
// index.
type Segment struct {
	key     string
	index   int
	indexed bool
}

// Key returns a segment addressing a mapping entry.
func Key(k string) Segment { return Segment{key: k} }

// Index returns a segment addressing a list element.
func Index(i int) Segment { return Segment{index: i, indexed: true} }

func (s Segment) IsIndex() bool  { return s.indexed }
func (s Segment) Key() string    { return s.key }
func (s Segment) Index() int     { return s.index }
func (s Segment) String() string { return s.render(true) }

func (s Segment) render(first bool) string {
	if s.indexed {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	if first {
		return s.key
	}
	return "." + s.key
}

// Any returns the segment as a JSON-friendly value (string or int), the shape
// GraphQL error paths use.
func (s Segment) Any() any {
	if s.indexed {
		return s.index
	}
	return s.key
}

// Path addresses a value inside a response tree. Paths are treated as
// immutable: every helper returns a fresh slice.
type Path []Segment

// Keys builds a path made only of mapping keys.
func Keys(keys ...string) Path {
	p := make(Path, len(keys))
	for i, k := range keys {
		p[i] = Key(k)
	}
	return p
}

// WithPrefix returns a new path with prefix placed in front of p.
func (p Path) WithPrefix(prefix ...Segment) Path {
	out := make(Path, 0, len(prefix)+len(p))
	out = append(out, prefix...)
	return append(out, p...)
}

// Concat returns a new path with other appended to p.
func (p Path) Concat(other Path) Path {
	out := make(Path, 0, len(p)+len(other))
	out = append(out, p...)
	return append(out, other...)
}

// Append returns a new path with segs appended.
func (p Path) Append(segs ...Segment) Path { return p.Concat(Path(segs)) }

// Equal reports whether both paths address the same value.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Slice returns the path as []any of strings and ints.
func (p Path) Slice() []any {
	out := make([]any, len(p))
	for i, s := range p {
		out[i] = s.Any()
	}
	return out
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		b.WriteString(s.render(i == 0))
	}
	return b.String()
}
