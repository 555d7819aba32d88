// Package patch implements an ordered edit list over an immutable source text.
//
// Edits never mutate the original. A Set collects inserts, overwrites and
// removals and Apply walks the original once, splicing edit content in and
// recording breakpoints that relate generated offsets to original offsets.
package patch

import (
	"errors"
	"fmt"

	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
)

// Sentinel errors for patch application. All of them indicate a defect in the
// code that built the Set, never a problem with user input.
var (
	ErrOverlap       = errors.New("patch: overlapping range edits")
	ErrInsertInRange = errors.New("patch: insert inside an edited range")
	ErrOutOfBounds   = errors.New("patch: position out of bounds")
	ErrEmptyRange    = errors.New("patch: range edit covers no bytes")
)

// Kind is the type of edit a Patch performs.
type Kind uint8

// Patch kinds.
const (
	Insert Kind = iota
	Overwrite
	Remove
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Overwrite:
		return "overwrite"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Bias decides which neighbour an insert sticks to.
type Bias uint8

// Insert biases.
const (
	// Right attaches the insert to the text starting at its offset. Openers
	// such as a template prefix or the expression sigil are right-biased.
	Right Bias = iota
	// Left attaches the insert to the text ending at its offset. Closers are
	// left-biased so they stay before any opener sharing the offset.
	Left
)

// Patch is a single edit against the original text.
type Patch struct {
	Pos     int
	End     int
	Kind    Kind
	Bias    Bias
	Content string
	Order   int
}

// Span returns the original range the patch covers. Inserts cover nothing.
func (p Patch) Span() span.Span {
	return span.Span{Start: p.Pos, End: p.End}
}

func (p Patch) isRange() bool {
	return p.Kind != Insert
}

// Set is an append-only list of patches in insertion order.
// The zero value is ready to use.
type Set struct {
	patches []Patch
}

// NewSet creates an empty patch set.
func NewSet() *Set {
	return &Set{}
}

// Len returns the number of patches in the set.
func (s *Set) Len() int {
	return len(s.patches)
}

// Patches returns a copy of the patches in insertion order.
func (s *Set) Patches() []Patch {
	out := make([]Patch, len(s.patches))
	copy(out, s.patches)

	return out
}

func (s *Set) add(p Patch) {
	p.Order = len(s.patches)
	s.patches = append(s.patches, p)
}

// Insert adds content at pos with the given bias.
func (s *Set) Insert(pos int, bias Bias, content string) {
	s.add(Patch{Pos: pos, End: pos, Kind: Insert, Bias: bias, Content: content})
}

// Prepend inserts an opener at pos.
func (s *Set) Prepend(pos int, content string) {
	s.Insert(pos, Right, content)
}

// Append inserts a closer at pos.
func (s *Set) Append(pos int, content string) {
	s.Insert(pos, Left, content)
}

// Overwrite replaces the bytes of sp with content.
func (s *Set) Overwrite(sp span.Span, content string) {
	s.add(Patch{Pos: sp.Start, End: sp.End, Kind: Overwrite, Content: content})
}

// Remove deletes the bytes of sp.
func (s *Set) Remove(sp span.Span) {
	s.add(Patch{Pos: sp.Start, End: sp.End, Kind: Remove})
}

// Wrap surrounds sp with open and close. Wrapping an inner span after an
// outer one that shares a boundary nests the inner wrap inside the outer.
func (s *Set) Wrap(sp span.Span, open, closing string) {
	s.Prepend(sp.Start, open)
	s.Append(sp.End, closing)
}

// Merge appends the patches of other, which are expressed in space, after the
// receiver's own patches. Positions are converted to the root space.
func (s *Set) Merge(other *Set, space span.Space) {
	if other == nil {
		return
	}

	for _, p := range other.patches {
		p.Pos = space.OffsetToParent(p.Pos)
		p.End = space.OffsetToParent(p.End)
		s.add(p)
	}
}
