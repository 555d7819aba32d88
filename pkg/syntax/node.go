package syntax

import (
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
)

// Node type names produced by the grammars.
const (
	TypeError = "ERROR"
)

func offset(v uint) int {
	const maxInt = int(^uint(0) >> 1)
	if v > uint(maxInt) {
		panic("syntax: byte offset overflows int")
	}

	return int(v)
}

// Span returns the byte range of n.
func Span(n sitter.Node) span.Span {
	return span.Span{Start: offset(n.StartByte()), End: offset(n.EndByte())}
}

// NamedChildren returns the named children of n in order.
func NamedChildren(n sitter.Node) []sitter.Node {
	count := n.NamedChildCount()
	out := make([]sitter.Node, 0, count)

	for i := range count {
		out = append(out, n.NamedChild(i))
	}

	return out
}

// Children returns all children of n, anonymous tokens included.
func Children(n sitter.Node) []sitter.Node {
	count := n.ChildCount()
	out := make([]sitter.Node, 0, count)

	for i := range count {
		out = append(out, n.Child(i))
	}

	return out
}

// ChildOfType returns the first named child of n with the given type.
func ChildOfType(n sitter.Node, typ string) (sitter.Node, bool) {
	for i := range n.NamedChildCount() {
		if child := n.NamedChild(i); child.Type() == typ {
			return child, true
		}
	}

	return sitter.Node{}, false
}

// Field returns the child stored under a grammar field name.
func Field(n sitter.Node, name string) (sitter.Node, bool) {
	child := n.ChildByFieldName(name)

	return child, !child.IsNull()
}

// FirstError returns the first ERROR or missing node in document order.
func FirstError(n sitter.Node) (sitter.Node, bool) {
	if n.IsNull() {
		return sitter.Node{}, false
	}

	if n.Type() == TypeError || n.IsMissing() {
		return n, true
	}

	for i := range n.ChildCount() {
		if bad, ok := FirstError(n.Child(i)); ok {
			return bad, true
		}
	}

	return sitter.Node{}, false
}
