// Package syntax gives the compiler access to the tree-sitter grammars it
// parses component files with: HTML for section structure and TSX for
// template markup and script bodies.
package syntax

import (
	"context"
	"errors"
	"fmt"
	"sync"

	forest "github.com/alexaandru/go-sitter-forest"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Sentinel errors for syntax operations.
var (
	ErrSyntax              = errors.New("syntax error")
	ErrLanguageUnavailable = errors.New("tree-sitter language not available")
	errNoRootNode          = errors.New("parser returned no root node")
)

// Grammar selects a tree-sitter language.
type Grammar string

// Supported grammars.
const (
	HTML Grammar = "html"
	TSX  Grammar = "tsx"
)

var languages = sync.OnceValue(func() map[Grammar]*sitter.Language {
	out := make(map[Grammar]*sitter.Language, 2) //nolint:mnd // two grammars.

	for _, g := range []Grammar{HTML, TSX} {
		if lang := loadLanguage(string(g)); lang != nil {
			out[g] = lang
		}
	}

	return out
})

func loadLanguage(name string) (lang *sitter.Language) {
	defer func() {
		if recover() != nil {
			lang = nil
		}
	}()

	return forest.GetLanguage(name)
}

// Language returns the tree-sitter language for g.
func Language(g Grammar) (*sitter.Language, error) {
	lang, ok := languages()[g]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLanguageUnavailable, g)
	}

	return lang, nil
}

// Tree is a parsed document. It must be closed after use.
type Tree struct {
	tree    *sitter.Tree
	root    sitter.Node
	src     []byte
	grammar Grammar
}

// Parse parses src with a parser created for this call only, so concurrent
// calls never share parser state.
func Parse(ctx context.Context, g Grammar, src []byte) (*Tree, error) {
	lang, err := Language(g)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseString(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%s parser: %w", g, err)
	}

	root := tree.RootNode()
	if root.IsNull() {
		tree.Close()

		return nil, fmt.Errorf("%s parser: %w", g, errNoRootNode)
	}

	return &Tree{tree: tree, root: root, src: src, grammar: g}, nil
}

// Close releases the native tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// Root returns the root node.
func (t *Tree) Root() sitter.Node {
	return t.root
}

// Source returns the parsed bytes.
func (t *Tree) Source() []byte {
	return t.src
}

// Text returns the source text of n.
func (t *Tree) Text(n sitter.Node) string {
	sp := Span(n)

	return string(t.src[sp.Start:sp.End])
}

// Check returns an *Error describing the first syntax error in the tree, or
// nil when the tree is clean.
func (t *Tree) Check() error {
	bad, ok := FirstError(t.root)
	if !ok {
		return nil
	}

	e := &Error{Grammar: t.grammar, Offset: Span(bad).Start}
	if bad.IsMissing() {
		e.Missing = bad.Type()
	}

	return e
}

// Error is a syntax error located in the parsed source.
type Error struct {
	Grammar Grammar
	Offset  int
	// Missing names the token the parser expected, when known.
	Missing string
}

func (e *Error) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("%s: missing %q at offset %d", ErrSyntax, e.Missing, e.Offset)
	}

	return fmt.Sprintf("%s: unexpected input at offset %d", ErrSyntax, e.Offset)
}

// Unwrap returns ErrSyntax.
func (e *Error) Unwrap() error {
	return ErrSyntax
}

// Shift returns a copy of e with the offset moved by delta.
func (e *Error) Shift(delta int) *Error {
	out := *e
	out.Offset += delta

	return &out
}
