package markup

import (
	"context"
	"errors"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
	"github.com/estrelajs/vite-plugin-estrela/pkg/syntax"
)

// The template stream is parsed inside a synthetic fragment so bare sibling
// elements form a single tree.
const (
	fragmentOpen  = "<>"
	fragmentClose = "</>"
)

// TSX node types the region walk cares about.
const (
	nodeElement     = "jsx_element"
	nodeSelfClosing = "jsx_self_closing_element"
	nodeExpression  = "jsx_expression"
	nodeOpening     = "jsx_opening_element"
	nodeClosing     = "jsx_closing_element"
	nodeSpread      = "spread_element"
)

var errNoFragment = errors.New("template stream did not parse as markup")

// Regions lists the dynamic regions of some markup in document order.
type Regions struct {
	// Elements need their own runtime template wrap.
	Elements []span.Span
	// Expressions are embedded values evaluated at render time.
	Expressions []span.Span
	// Delimiters are the tags of fragments recorded as elements. They are
	// dropped from the output.
	Delimiters []span.Span
}

// Shift returns a copy of r moved into the parent of space.
func (r Regions) Shift(space span.Space) Regions {
	out := Regions{
		Elements:    make([]span.Span, len(r.Elements)),
		Expressions: make([]span.Span, len(r.Expressions)),
		Delimiters:  make([]span.Span, len(r.Delimiters)),
	}

	for i, el := range r.Elements {
		out.Elements[i] = space.ToParent(el)
	}

	for i, ex := range r.Expressions {
		out.Expressions[i] = space.ToParent(ex)
	}

	for i, d := range r.Delimiters {
		out.Delimiters[i] = space.ToParent(d)
	}

	return out
}

// Walk collects the dynamic regions below root. hot tells whether root is
// itself evaluated as an expression, in which case the outermost elements
// found are recorded. Spans are in the coordinate space of the tree.
func Walk(root sitter.Node, src []byte, hot bool) Regions {
	w := &walker{src: src}
	w.visit(root, hot, false)

	return w.regions
}

type walker struct {
	src     []byte
	regions Regions
}

// visit walks n. hot is true inside an expression container until an element
// is reached. top is true for nodes sitting directly in the template stream.
func (w *walker) visit(n sitter.Node, hot, top bool) {
	switch n.Type() {
	case nodeElement:
		name, named := w.elementName(n)

		switch {
		case !named && hot:
			w.visitFragment(n)

			return
		case !named:
			w.visitContent(n, hot, top)

			return
		case top && name == "template":
			w.visitContent(n, hot, true)

			return
		}

		if hot {
			w.regions.Elements = append(w.regions.Elements, syntax.Span(n))
		}

		w.visitChildren(n, false)
	case nodeSelfClosing:
		if hot {
			w.regions.Elements = append(w.regions.Elements, syntax.Span(n))
		}

		w.visitChildren(n, false)
	case nodeExpression:
		if !isSpread(n) {
			w.regions.Expressions = append(w.regions.Expressions, syntax.Span(n))
		}

		w.visitChildren(n, true)
	default:
		w.visitChildren(n, hot)
	}
}

func (w *walker) visitChildren(n sitter.Node, hot bool) {
	for _, child := range syntax.NamedChildren(n) {
		w.visit(child, hot, false)
	}
}

// visitContent walks the children of an element that contributes no region
// of its own, skipping its tags.
func (w *walker) visitContent(n sitter.Node, hot, top bool) {
	for _, child := range syntax.NamedChildren(n) {
		if t := child.Type(); t == nodeOpening || t == nodeClosing {
			continue
		}

		w.visit(child, hot, top)
	}
}

// visitFragment records a fragment evaluated as an expression as one
// element whose own tags are dropped.
func (w *walker) visitFragment(n sitter.Node) {
	w.regions.Elements = append(w.regions.Elements, syntax.Span(n))

	for _, child := range syntax.NamedChildren(n) {
		if t := child.Type(); t == nodeOpening || t == nodeClosing {
			w.regions.Delimiters = append(w.regions.Delimiters, syntax.Span(child))

			continue
		}

		w.visit(child, false, false)
	}
}

// isSpread reports whether n is a spread attribute or child, which the
// runtime template takes as is.
func isSpread(n sitter.Node) bool {
	children := syntax.NamedChildren(n)

	return len(children) == 1 && children[0].Type() == nodeSpread
}

func (w *walker) elementName(n sitter.Node) (string, bool) {
	open, ok := syntax.ChildOfType(n, nodeOpening)
	if !ok {
		return "", false
	}

	name, ok := syntax.Field(open, "name")
	if !ok {
		return "", false
	}

	sp := syntax.Span(name)

	return string(w.src[sp.Start:sp.End]), true
}

// parseStream parses the template stream of text and returns its regions in
// the coordinate space of text. HTML comments are blanked before parsing and
// stay untouched in the output.
func parseStream(ctx context.Context, text string, stream span.Span, comments []span.Span) (Regions, error) {
	body := []byte(stream.Text(text))

	for _, c := range comments {
		if c.Start < stream.Start || c.End > stream.End {
			continue
		}

		for i := c.Start; i < c.End; i++ {
			if body[i-stream.Start] != '\n' {
				body[i-stream.Start] = ' '
			}
		}
	}

	src := make([]byte, 0, len(fragmentOpen)+len(body)+len(fragmentClose))
	src = append(src, fragmentOpen...)
	src = append(src, body...)
	src = append(src, fragmentClose...)

	tree, err := syntax.Parse(ctx, syntax.TSX, src)
	if err != nil {
		return Regions{}, err
	}
	defer tree.Close()

	// The wrapper sits before the stream, so the tree's space starts
	// len(fragmentOpen) bytes before stream.Start.
	space := span.Root.Sub("template", stream.Start-len(fragmentOpen))

	if checkErr := tree.Check(); checkErr != nil {
		var synErr *syntax.Error
		if errors.As(checkErr, &synErr) {
			return Regions{}, clampError(synErr.Shift(space.Origin), stream)
		}

		return Regions{}, checkErr
	}

	fragment, ok := rootFragment(tree.Root())
	if !ok {
		return Regions{}, &Error{Offset: stream.Start, Err: errNoFragment}
	}

	w := &walker{src: src}
	w.visitContent(fragment, false, true)

	return w.regions.Shift(space), nil
}

func clampError(e *syntax.Error, stream span.Span) *syntax.Error {
	if e.Offset < stream.Start {
		e.Offset = stream.Start
	}

	if e.Offset > stream.End {
		e.Offset = stream.End
	}

	return e
}

// rootFragment finds the synthetic fragment: program > expression_statement > jsx_element.
func rootFragment(program sitter.Node) (sitter.Node, bool) {
	stmt, ok := syntax.ChildOfType(program, "expression_statement")
	if !ok {
		return sitter.Node{}, false
	}

	return syntax.ChildOfType(stmt, nodeElement)
}
