package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/estrelajs/vite-plugin-estrela/pkg/markup"
	"github.com/estrelajs/vite-plugin-estrela/pkg/sourcemap"
	"github.com/estrelajs/vite-plugin-estrela/pkg/syntax"
)

// Error classes. Every *Error unwraps to exactly one of them and to the cause.
var (
	// ErrParse means the markup or the script did not parse.
	ErrParse = errors.New("parse error")
	// ErrSection means the sections of the file are malformed or misplaced.
	ErrSection = errors.New("invalid component structure")
	// ErrMetadata means no valid tag could be resolved.
	ErrMetadata = errors.New("invalid component metadata")
	// ErrInternal is a defect in the compiler itself.
	ErrInternal = errors.New("internal compiler error")
)

// excerptContext is the number of lines shown around an error.
const excerptContext = 2

// Error is a compile failure located in a component file.
type Error struct {
	Path string
	// Offset is the byte offset of the problem, or -1 when unknown.
	Offset int
	// Line and Column are one-based; zero when Offset is unknown.
	Line   int
	Column int
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %v: %v", e.Path, e.Line, e.Column, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the class and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Excerpt renders the lines around the error with the failing line marked.
func (e *Error) Excerpt(source string) string {
	if e.Line == 0 {
		return ""
	}

	li := sourcemap.NewLineIndex(source)
	first := max(e.Line-1-excerptContext, 0)
	last := min(e.Line-1+excerptContext, li.Lines()-1)

	var sb strings.Builder

	for line := first; line <= last; line++ {
		prefix := "  "
		if line == e.Line-1 {
			prefix = "> "
		}

		fmt.Fprintf(&sb, "%s%4d | %s\n", prefix, line+1, li.LineText(line))

		if line == e.Line-1 {
			fmt.Fprintf(&sb, "       | %s^\n", strings.Repeat(" ", max(e.Column-1, 0)))
		}
	}

	return sb.String()
}

func newError(path, source string, offset int, kind, err error) *Error {
	e := &Error{Path: path, Offset: offset, Kind: kind, Err: err}

	if offset >= 0 {
		pos := sourcemap.NewLineIndex(source).Position(offset)
		e.Line = pos.Line + 1
		e.Column = pos.Column + 1
	}

	return e
}

// locate turns an error from the parsing stages into an *Error.
func locate(path, source string, err error) *Error {
	var synErr *syntax.Error
	if errors.As(err, &synErr) {
		return newError(path, source, synErr.Offset, ErrParse, err)
	}

	var mErr *markup.Error
	if errors.As(err, &mErr) {
		return newError(path, source, mErr.Offset, ErrSection, err)
	}

	return newError(path, source, -1, ErrParse, err)
}
