package sourcemap

import (
	"sort"
	"unicode/utf8"
)

// Position is a zero-based line and column. Columns count UTF-16 code units.
type Position struct {
	Line   int
	Column int
}

// LineIndex converts byte offsets of one text into positions.
type LineIndex struct {
	text   string
	starts []int
}

// NewLineIndex indexes the line starts of text.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}

	for i := range len(text) {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}

	return &LineIndex{text: text, starts: starts}
}

// Lines returns the number of lines in the text.
func (li *LineIndex) Lines() int {
	return len(li.starts)
}

// Position returns the position of the byte offset. Offsets past the end are
// clamped to the end of the text.
func (li *LineIndex) Position(offset int) Position {
	if offset > len(li.text) {
		offset = len(li.text)
	}

	if offset < 0 {
		offset = 0
	}

	line := sort.Search(len(li.starts), func(i int) bool {
		return li.starts[i] > offset
	}) - 1

	return Position{Line: line, Column: utf16Len(li.text[li.starts[line]:offset])}
}

// LineText returns the text of a zero-based line without its terminator.
func (li *LineIndex) LineText(line int) string {
	if line < 0 || line >= len(li.starts) {
		return ""
	}

	end := len(li.text)
	if line+1 < len(li.starts) {
		end = li.starts[line+1] - 1
	}

	return li.text[li.starts[line]:end]
}

func utf16Len(s string) int {
	n := 0

	for _, r := range s {
		n += utf16Width(r)
	}

	return n
}

func utf16Width(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}

	return 1
}
