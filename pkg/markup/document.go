// Package markup parses component files into sections and the dynamic
// regions of their template markup.
//
// A component file holds at most one script, one style and one template
// section. Everything between the script and the style that is not a section
// is template markup. Script and style bodies are opaque at this stage.
package markup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
	"github.com/estrelajs/vite-plugin-estrela/pkg/syntax"
)

// Sentinel errors for document structure problems.
var (
	ErrDuplicateSection = errors.New("duplicate section")
	ErrUnterminated     = errors.New("unterminated section")
	ErrSectionOrder     = errors.New("sections out of order")
)

// Error locates a structural problem in the component file.
type Error struct {
	Offset int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

// Unwrap returns the underlying sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

// Kind identifies a top-level section.
type Kind uint8

// Section kinds.
const (
	Script Kind = iota + 1
	Style
	Template
)

func (k Kind) String() string {
	switch k {
	case Script:
		return "script"
	case Style:
		return "style"
	case Template:
		return "template"
	default:
		return "unknown"
	}
}

// Section is a top-level script, style or template element.
type Section struct {
	Kind Kind
	// Outer covers the whole element, tags included.
	Outer span.Span
	// Open and Close cover the opening and closing tags.
	Open  span.Span
	Close span.Span
	// Body covers the text between the tags.
	Body  span.Span
	Attrs map[string]string
}

// Attr returns the value of the named attribute.
func (s *Section) Attr(name string) (string, bool) {
	if s == nil {
		return "", false
	}

	v, ok := s.Attrs[name]

	return v, ok
}

// Document is the structural model of a component file.
type Document struct {
	Source   string
	Script   *Section
	Style    *Section
	Template *Section
	// Stream covers the template markup: from the end of the script (or the
	// start of the file) to the start of the style (or the end of the file).
	Stream  span.Span
	Regions Regions
}

// HasTemplateContent reports whether the template stream holds anything
// other than whitespace and the template wrapper's own tags.
func (d *Document) HasTemplateContent() bool {
	text := d.Stream.Text(d.Source)
	if d.Template != nil {
		text = d.Template.Body.Text(d.Source)
	}

	return strings.TrimSpace(text) != ""
}

// Parse classifies the sections of text and collects the dynamic regions of
// its template markup. All spans are in the coordinate space of text.
func Parse(ctx context.Context, text string) (*Document, error) {
	doc := &Document{Source: text}

	comments, err := doc.classify(ctx)
	if err != nil {
		return nil, err
	}

	if err = doc.checkOrder(); err != nil {
		return nil, err
	}

	doc.Stream = span.New(0, len(text))
	if doc.Script != nil {
		doc.Stream.Start = doc.Script.Outer.End
	}

	if doc.Style != nil {
		doc.Stream.End = doc.Style.Outer.Start
	}

	regions, err := parseStream(ctx, text, doc.Stream, comments)
	if err != nil {
		return nil, err
	}

	doc.Regions = regions

	return doc, nil
}

func (d *Document) classify(ctx context.Context) ([]span.Span, error) {
	tree, err := syntax.Parse(ctx, syntax.HTML, []byte(d.Source))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var comments []span.Span

	for _, child := range syntax.NamedChildren(tree.Root()) {
		var sec *Section

		switch child.Type() {
		case "script_element":
			sec, err = rawSection(tree, child, Script)
		case "style_element":
			sec, err = rawSection(tree, child, Style)
		case "element":
			if elementName(tree, child) == "template" {
				sec, err = elementSection(tree, child)
			}
		}

		if err != nil {
			return nil, err
		}

		if sec == nil {
			comments = append(comments, collectComments(child)...)

			continue
		}

		if err = d.assign(sec); err != nil {
			return nil, err
		}

		if sec.Kind == Template {
			comments = append(comments, collectComments(child)...)
		}
	}

	return comments, nil
}

func (d *Document) assign(sec *Section) error {
	slot := map[Kind]**Section{Script: &d.Script, Style: &d.Style, Template: &d.Template}[sec.Kind]
	if *slot != nil {
		return &Error{Offset: sec.Outer.Start, Err: fmt.Errorf("%w: second <%s>", ErrDuplicateSection, sec.Kind)}
	}

	*slot = sec

	return nil
}

// checkOrder enforces script, template markup, style.
func (d *Document) checkOrder() error {
	if d.Script != nil {
		if off, found := firstNonSpace(d.Source, 0, d.Script.Outer.Start); found {
			return &Error{Offset: off, Err: fmt.Errorf("%w: markup before <script>", ErrSectionOrder)}
		}
	}

	if d.Style == nil {
		return nil
	}

	if d.Script != nil && d.Style.Outer.Start < d.Script.Outer.End {
		return &Error{Offset: d.Style.Outer.Start, Err: fmt.Errorf("%w: <style> before <script>", ErrSectionOrder)}
	}

	if d.Template != nil && d.Template.Outer.Start > d.Style.Outer.Start {
		return &Error{Offset: d.Template.Outer.Start, Err: fmt.Errorf("%w: <template> after <style>", ErrSectionOrder)}
	}

	if off, found := firstNonSpace(d.Source, d.Style.Outer.End, len(d.Source)); found {
		return &Error{Offset: off, Err: fmt.Errorf("%w: markup after <style>", ErrSectionOrder)}
	}

	return nil
}

func firstNonSpace(s string, from, to int) (int, bool) {
	for i := from; i < to; i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r', '\f':
			continue
		}

		return i, true
	}

	return 0, false
}

func elementName(tree *syntax.Tree, el sitter.Node) string {
	tag, ok := syntax.ChildOfType(el, "start_tag")
	if !ok {
		return ""
	}

	name, ok := syntax.ChildOfType(tag, "tag_name")
	if !ok {
		return ""
	}

	return strings.ToLower(tree.Text(name))
}

func rawSection(tree *syntax.Tree, el sitter.Node, kind Kind) (*Section, error) {
	sec, err := elementSection(tree, el)
	if err != nil {
		return nil, err
	}

	sec.Kind = kind

	return sec, nil
}

func elementSection(tree *syntax.Tree, el sitter.Node) (*Section, error) {
	outer := syntax.Span(el)

	open, ok := syntax.ChildOfType(el, "start_tag")
	if !ok {
		return nil, &Error{Offset: outer.Start, Err: fmt.Errorf("%w: missing opening tag", ErrUnterminated)}
	}

	closing, ok := syntax.ChildOfType(el, "end_tag")
	if !ok || closing.IsMissing() || syntax.Span(closing).Empty() {
		return nil, &Error{Offset: outer.Start, Err: fmt.Errorf("%w: <%s> has no closing tag", ErrUnterminated, elementName(tree, el))}
	}

	openSpan, closeSpan := syntax.Span(open), syntax.Span(closing)

	return &Section{
		Kind:  Template,
		Outer: outer,
		Open:  openSpan,
		Close: closeSpan,
		Body:  span.New(openSpan.End, closeSpan.Start),
		Attrs: attributes(tree, open),
	}, nil
}

func attributes(tree *syntax.Tree, tag sitter.Node) map[string]string {
	attrs := make(map[string]string)

	for _, attr := range syntax.NamedChildren(tag) {
		if attr.Type() != "attribute" {
			continue
		}

		var name, value string

		for _, part := range syntax.NamedChildren(attr) {
			switch part.Type() {
			case "attribute_name":
				name = strings.ToLower(tree.Text(part))
			case "attribute_value":
				value = tree.Text(part)
			case "quoted_attribute_value":
				if inner, ok := syntax.ChildOfType(part, "attribute_value"); ok {
					value = tree.Text(inner)
				}
			}
		}

		if name != "" {
			attrs[name] = value
		}
	}

	return attrs
}

func collectComments(n sitter.Node) []span.Span {
	if n.Type() == "comment" {
		return []span.Span{syntax.Span(n)}
	}

	var out []span.Span

	for _, child := range syntax.NamedChildren(n) {
		out = append(out, collectComments(child)...)
	}

	return out
}
