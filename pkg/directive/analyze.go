// Package directive analyzes a component's script body and rewrites the
// calls to the runtime's prop and emitter directives so each one receives a
// stable key derived from the variable it is assigned to.
//
// Everything in this package is expressed in the coordinate space of the
// script body. Callers shift results into the component file.
package directive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/estrelajs/vite-plugin-estrela/pkg/markup"
	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
	"github.com/estrelajs/vite-plugin-estrela/pkg/syntax"
)

var errNoArguments = errors.New("call has no argument list")

// Kind is a directive function.
type Kind uint8

// Directive kinds.
const (
	Prop Kind = iota + 1
	Emitter
)

// Name returns the exported runtime name of the directive.
func (k Kind) Name() string {
	switch k {
	case Prop:
		return "prop"
	case Emitter:
		return "emitter"
	default:
		return ""
	}
}

func (k Kind) String() string {
	return k.Name()
}

// Kinds lists every directive in a stable order.
var Kinds = []Kind{Prop, Emitter}

// Binding is one name brought into scope by an import declaration.
type Binding struct {
	Imported string
	Local    string
	// Statement covers the import declaration the binding comes from.
	Statement span.Span
}

// ImportMap maps module specifiers to the names imported from them.
type ImportMap map[string][]Binding

// Locals returns the local names bound to imported from module.
func (m ImportMap) Locals(module, imported string) []string {
	var out []string

	for _, b := range m[module] {
		if b.Imported == imported {
			out = append(out, b.Local)
		}
	}

	return out
}

// Modules returns the imported module specifiers in sorted order.
func (m ImportMap) Modules() []string {
	out := make([]string, 0, len(m))
	for mod := range m {
		out = append(out, mod)
	}

	sort.Strings(out)

	return out
}

// Call is a directive call assigned to a plain identifier.
type Call struct {
	Kind     Kind
	Variable string
	// Callee is the local name the directive was called through.
	Callee string
	// Call covers the whole call expression.
	Call span.Span
	// Args covers each argument, comments excluded.
	Args []span.Span
	// CloseParen is the offset of the closing parenthesis.
	CloseParen int
	// ObjectLiteral tells, per argument, whether it is an object literal.
	ObjectLiteral []bool
}

// Options returns the argument merged into the synthesized options object,
// if the call has one.
func (c Call) Options() (span.Span, bool) {
	idx := 0
	if c.Kind == Prop {
		idx = 1
	}

	if idx < len(c.Args) {
		return c.Args[idx], true
	}

	return span.Span{}, false
}

// Severity grades a diagnostic.
type Severity uint8

// Diagnostic severities.
const (
	Warning Severity = iota + 1
	Info
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}

	return "info"
}

// Diagnostic is a non-fatal finding about the script.
type Diagnostic struct {
	Severity Severity
	Message  string
	Span     span.Span
}

// Analysis is what the compiler needs to know about a script body.
type Analysis struct {
	Source  string
	Runtime string
	Imports ImportMap
	// Insertion is where the component factory prologue goes: after the
	// last import so every user import stays at module level.
	Insertion   int
	Calls       []Call
	Regions     markup.Regions
	Diagnostics []Diagnostic
}

// Analyze parses body as a TSX module and collects its imports, the
// prologue insertion point, the directive calls bound to runtime and the
// markup regions written in the script.
func Analyze(ctx context.Context, body, runtime string) (*Analysis, error) {
	src := []byte(body)

	tree, err := syntax.Parse(ctx, syntax.TSX, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	if err = tree.Check(); err != nil {
		return nil, err
	}

	root := tree.Root()
	a := &Analysis{
		Source:  body,
		Runtime: runtime,
		Imports: collectImports(tree, root),
	}

	a.Insertion = insertionPoint(root)
	a.Regions = markup.Walk(root, src, true)

	callees := make(map[string]Kind)

	for _, kind := range Kinds {
		for _, local := range a.Imports.Locals(runtime, kind.Name()) {
			callees[local] = kind
		}
	}

	if len(callees) > 0 {
		if err = a.collectCalls(tree, root, callees); err != nil {
			return nil, err
		}
	}

	a.Diagnostics = a.unusedDirectives(callees)

	return a, nil
}

func collectImports(tree *syntax.Tree, root sitter.Node) ImportMap {
	imports := make(ImportMap)

	for _, stmt := range syntax.NamedChildren(root) {
		if stmt.Type() != "import_statement" {
			continue
		}

		source, ok := syntax.Field(stmt, "source")
		if !ok {
			continue
		}

		module := unquote(tree.Text(source))
		bindings := imports[module]

		clause, ok := syntax.ChildOfType(stmt, "import_clause")
		if ok {
			for _, b := range clauseBindings(tree, clause) {
				b.Statement = syntax.Span(stmt)
				bindings = append(bindings, b)
			}
		}

		imports[module] = bindings
	}

	return imports
}

func clauseBindings(tree *syntax.Tree, clause sitter.Node) []Binding {
	var out []Binding

	for _, part := range syntax.NamedChildren(clause) {
		switch part.Type() {
		case "identifier":
			out = append(out, Binding{Imported: "default", Local: tree.Text(part)})
		case "namespace_import":
			if id, ok := syntax.ChildOfType(part, "identifier"); ok {
				out = append(out, Binding{Imported: "*", Local: tree.Text(id)})
			}
		case "named_imports":
			for _, spec := range syntax.NamedChildren(part) {
				if spec.Type() != "import_specifier" {
					continue
				}

				name, ok := syntax.Field(spec, "name")
				if !ok {
					continue
				}

				b := Binding{Imported: unquote(tree.Text(name))}
				b.Local = b.Imported

				if alias, hasAlias := syntax.Field(spec, "alias"); hasAlias {
					b.Local = tree.Text(alias)
				}

				out = append(out, b)
			}
		}
	}

	return out
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}

	return s
}

// insertionPoint returns the start of the first statement after the last
// import, the end of the last import if nothing follows it, or the start of
// the first statement when there are no imports.
func insertionPoint(root sitter.Node) int {
	var statements []sitter.Node

	for _, n := range syntax.NamedChildren(root) {
		if n.Type() != "comment" {
			statements = append(statements, n)
		}
	}

	lastImport := -1

	for i, stmt := range statements {
		if stmt.Type() == "import_statement" {
			lastImport = i
		}
	}

	switch {
	case lastImport+1 < len(statements):
		return syntax.Span(statements[lastImport+1]).Start
	case lastImport >= 0:
		return syntax.Span(statements[lastImport]).End
	default:
		return 0
	}
}

func (a *Analysis) collectCalls(tree *syntax.Tree, n sitter.Node, callees map[string]Kind) error {
	if n.Type() == "variable_declarator" {
		call, ok, err := matchDeclarator(tree, n, callees)
		if err != nil {
			return err
		}

		if ok {
			a.Calls = append(a.Calls, call)
		}
	}

	for _, child := range syntax.NamedChildren(n) {
		if err := a.collectCalls(tree, child, callees); err != nil {
			return err
		}
	}

	return nil
}

func matchDeclarator(tree *syntax.Tree, decl sitter.Node, callees map[string]Kind) (Call, bool, error) {
	name, ok := syntax.Field(decl, "name")
	if !ok || name.Type() != "identifier" {
		return Call{}, false, nil
	}

	value, ok := syntax.Field(decl, "value")
	if !ok || value.Type() != "call_expression" {
		return Call{}, false, nil
	}

	fn, ok := syntax.Field(value, "function")
	if !ok || fn.Type() != "identifier" {
		return Call{}, false, nil
	}

	kind, ok := callees[tree.Text(fn)]
	if !ok {
		return Call{}, false, nil
	}

	args, ok := syntax.Field(value, "arguments")
	if !ok || args.Type() != "arguments" {
		return Call{}, false, fmt.Errorf("%w: %s", errNoArguments, tree.Text(value))
	}

	call := Call{
		Kind:       kind,
		Variable:   tree.Text(name),
		Callee:     tree.Text(fn),
		Call:       syntax.Span(value),
		CloseParen: syntax.Span(args).End - 1,
	}

	for _, arg := range syntax.NamedChildren(args) {
		if arg.Type() == "comment" {
			continue
		}

		call.Args = append(call.Args, syntax.Span(arg))
		call.ObjectLiteral = append(call.ObjectLiteral, arg.Type() == "object")
	}

	return call, true, nil
}

// unusedDirectives reports directives imported from the runtime that no
// declaration calls.
func (a *Analysis) unusedDirectives(callees map[string]Kind) []Diagnostic {
	used := make(map[string]bool, len(a.Calls))
	for _, c := range a.Calls {
		used[c.Callee] = true
	}

	locals := make([]string, 0, len(callees))
	for local := range callees {
		locals = append(locals, local)
	}

	sort.Strings(locals)

	var out []Diagnostic

	for _, local := range locals {
		if used[local] {
			continue
		}

		kind := callees[local]

		var b strings.Builder

		fmt.Fprintf(&b, "%s is imported from %q but no declaration assigns a call to it", local, a.Runtime)

		if kind == Prop {
			b.WriteString("; props need `const name = prop(...)` to receive a key")
		} else {
			b.WriteString("; emitters need `const name = emitter(...)` to receive a key")
		}

		out = append(out, Diagnostic{
			Severity: Warning,
			Message:  b.String(),
			Span:     a.importSpan(local),
		})
	}

	return out
}

// importSpan locates the runtime import statement that binds local.
func (a *Analysis) importSpan(local string) span.Span {
	for _, b := range a.Imports[a.Runtime] {
		if b.Local == local {
			return b.Statement
		}
	}

	return span.At(0)
}
