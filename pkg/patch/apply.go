package patch

import (
	"fmt"
	"sort"
	"strings"
)

// BreakpointKind classifies the generated text that follows a breakpoint.
type BreakpointKind uint8

// Breakpoint kinds.
const (
	// Copied text is a verbatim copy of the original starting at Original.
	Copied BreakpointKind = iota
	// Replaced text is overwrite content standing in for the range at Original.
	Replaced
	// Synthetic text has no original counterpart.
	Synthetic
)

// Breakpoint marks the generated offset where a run of one kind starts.
// Original is -1 for synthetic runs.
type Breakpoint struct {
	Generated int
	Original  int
	Kind      BreakpointKind
}

// Result is the output of Apply.
type Result struct {
	Text        string
	Breakpoints []Breakpoint
}

// Apply produces the edited text in one pass over original.
//
// At a single offset the emission order is: left-biased inserts with the
// latest insert first, right-biased inserts with the earliest insert first,
// then the content of a range edit starting at that offset.
func Apply(original string, set *Set) (*Result, error) {
	var patches []Patch
	if set != nil {
		patches = set.patches
	}

	ranges, inserts, err := partition(original, patches)
	if err != nil {
		return nil, err
	}

	if err = checkRanges(ranges, inserts); err != nil {
		return nil, err
	}

	events := make([]int, 0, len(ranges)+len(inserts))
	byPos := make(map[int][]Patch, len(inserts))

	for _, ins := range inserts {
		if _, seen := byPos[ins.Pos]; !seen {
			events = append(events, ins.Pos)
		}

		byPos[ins.Pos] = append(byPos[ins.Pos], ins)
	}

	rangeAt := make(map[int]Patch, len(ranges))

	for _, r := range ranges {
		rangeAt[r.Pos] = r

		if _, seen := byPos[r.Pos]; !seen {
			events = append(events, r.Pos)
			byPos[r.Pos] = nil
		}
	}

	sort.Ints(events)

	w := &writer{original: original}
	cursor := 0

	for _, pos := range events {
		w.copy(cursor, pos)
		cursor = pos

		for _, ins := range orderInserts(byPos[pos]) {
			w.synthetic(ins.Content)
		}

		if r, ok := rangeAt[pos]; ok {
			if r.Kind == Overwrite {
				w.replaced(r.Pos, r.Content)
			}

			cursor = r.End
		}
	}

	w.copy(cursor, len(original))

	return &Result{Text: w.out.String(), Breakpoints: w.breakpoints}, nil
}

func partition(original string, patches []Patch) (ranges, inserts []Patch, err error) {
	for _, p := range patches {
		if p.Pos < 0 || p.End > len(original) || p.End < p.Pos {
			return nil, nil, fmt.Errorf("%w: %s %d-%d in text of length %d",
				ErrOutOfBounds, p.Kind, p.Pos, p.End, len(original))
		}

		if !p.isRange() {
			inserts = append(inserts, p)

			continue
		}

		if p.Pos == p.End {
			return nil, nil, fmt.Errorf("%w: %s at %d", ErrEmptyRange, p.Kind, p.Pos)
		}

		ranges = append(ranges, p)
	}

	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].Pos < ranges[j].Pos
	})

	return ranges, inserts, nil
}

func checkRanges(ranges, inserts []Patch) error {
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if prev.Span().Overlaps(cur.Span()) {
			return fmt.Errorf("%w: %s %s and %s %s",
				ErrOverlap, prev.Kind, prev.Span(), cur.Kind, cur.Span())
		}
	}

	for _, ins := range inserts {
		idx := sort.Search(len(ranges), func(i int) bool {
			return ranges[i].End > ins.Pos
		})

		if idx < len(ranges) && ranges[idx].Pos < ins.Pos {
			return fmt.Errorf("%w: insert at %d inside %s %s",
				ErrInsertInRange, ins.Pos, ranges[idx].Kind, ranges[idx].Span())
		}
	}

	return nil
}

// orderInserts sorts inserts sharing an offset: closers from the innermost
// outwards, then openers from the outermost inwards.
func orderInserts(group []Patch) []Patch {
	out := make([]Patch, len(group))
	copy(out, group)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Bias != b.Bias {
			return a.Bias == Left
		}

		if a.Bias == Left {
			return a.Order > b.Order
		}

		return a.Order < b.Order
	})

	return out
}

type writer struct {
	original    string
	out         strings.Builder
	breakpoints []Breakpoint
}

func (w *writer) mark(original int, kind BreakpointKind) {
	w.breakpoints = append(w.breakpoints, Breakpoint{
		Generated: w.out.Len(),
		Original:  original,
		Kind:      kind,
	})
}

func (w *writer) copy(from, to int) {
	if to <= from {
		return
	}

	w.mark(from, Copied)
	w.out.WriteString(w.original[from:to])
}

func (w *writer) synthetic(content string) {
	if content == "" {
		return
	}

	w.mark(-1, Synthetic)
	w.out.WriteString(content)
}

func (w *writer) replaced(original int, content string) {
	if content == "" {
		return
	}

	w.mark(original, Replaced)
	w.out.WriteString(content)
}
