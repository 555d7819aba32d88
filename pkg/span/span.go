// Package span provides half-open byte ranges and the coordinate spaces they
// live in. A component file is the root space; the script body re-parsed as
// its own document is a child space whose origin is recorded explicitly.
package span

import "fmt"

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// New returns the span [start, end). It panics when end precedes start.
func New(start, end int) Span {
	if end < start {
		panic(fmt.Sprintf("span: end %d precedes start %d", end, start))
	}

	return Span{Start: start, End: end}
}

// At returns the empty span at offset.
func At(offset int) Span {
	return Span{Start: offset, End: offset}
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Empty reports whether the span covers no bytes.
func (s Span) Empty() bool {
	return s.Start == s.End
}

// Contains reports whether offset lies inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Cover returns the smallest span covering both spans.
func (s Span) Cover(other Span) Span {
	if other.Start < s.Start {
		s.Start = other.Start
	}

	if other.End > s.End {
		s.End = other.End
	}

	return s
}

// Shift moves the span by delta bytes.
func (s Span) Shift(delta int) Span {
	return Span{Start: s.Start + delta, End: s.End + delta}
}

// Text returns the slice of src covered by the span.
func (s Span) Text(src string) string {
	return src[s.Start:s.End]
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// Space is a coordinate space nested in a parent document.
// Origin is the parent offset of the space's offset zero.
type Space struct {
	Name   string
	Origin int
}

// Root is the coordinate space of the component file itself.
var Root = Space{Name: "root"}

// Sub returns a space named name whose offset zero sits at origin in s.
func (s Space) Sub(name string, origin int) Space {
	return Space{Name: name, Origin: s.Origin + origin}
}

// ToParent converts a span expressed in s into the root space.
func (s Space) ToParent(sp Span) Span {
	return sp.Shift(s.Origin)
}

// OffsetToParent converts an offset expressed in s into the root space.
func (s Space) OffsetToParent(offset int) int {
	return offset + s.Origin
}
