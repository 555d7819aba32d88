// Package compiler turns estrela component files into JavaScript modules
// that register a custom element with the estrela runtime.
//
// A Compiler holds only immutable configuration. Compile allocates every
// intermediate structure per call, so one Compiler may serve any number of
// goroutines.
package compiler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/estrelajs/vite-plugin-estrela/pkg/directive"
	"github.com/estrelajs/vite-plugin-estrela/pkg/markup"
	"github.com/estrelajs/vite-plugin-estrela/pkg/metadata"
	"github.com/estrelajs/vite-plugin-estrela/pkg/patch"
	"github.com/estrelajs/vite-plugin-estrela/pkg/sourcemap"
	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
)

const tracerName = "estrela.compiler"

// Shape is the overall form of the generated module.
type Shape uint8

// Output shapes.
const (
	// ScriptTemplate has a script and template markup.
	ScriptTemplate Shape = iota + 1
	// TemplateOnly has template markup and no script.
	TemplateOnly
	// ScriptOnly has a script and no visible template markup.
	ScriptOnly
)

func (s Shape) String() string {
	switch s {
	case ScriptTemplate:
		return "script+template"
	case TemplateOnly:
		return "template"
	case ScriptOnly:
		return "script"
	default:
		return "unknown"
	}
}

// Warning is a non-fatal finding reported with a compile result.
type Warning struct {
	Path    string `json:"path"    yaml:"path"`
	Line    int    `json:"line"    yaml:"line"`
	Column  int    `json:"column"  yaml:"column"`
	Message string `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", w.Path, w.Line, w.Column, w.Message)
}

// Result is a compiled component.
type Result struct {
	Code     string
	Map      *sourcemap.Map
	Metadata metadata.Metadata
	Shape    Shape
	HasStyle bool
	Warnings []Warning
}

// Compiler compiles component files.
type Compiler struct {
	opts     Options
	resolver *metadata.Resolver
}

// New creates a Compiler.
func New(opts Options) (*Compiler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	resolver, err := metadata.NewResolver(opts.Extension)
	if err != nil {
		return nil, err
	}

	opts.Extension = resolver.Extension()

	return &Compiler{opts: opts, resolver: resolver}, nil
}

// Options returns the compiler's options.
func (c *Compiler) Options() Options {
	return c.opts
}

// Match reports whether path names a component file this compiler handles.
func (c *Compiler) Match(path string) bool {
	return c.resolver.Match(path)
}

// unit is the per-call state shared by Compile and Inspect.
type unit struct {
	path     string
	source   string
	doc      *markup.Document
	script   *directive.Analysis
	space    span.Space
	metadata metadata.Metadata
}

func (c *Compiler) analyze(ctx context.Context, source, path string) (*unit, error) {
	doc, err := markup.Parse(ctx, source)
	if err != nil {
		return nil, locate(path, source, err)
	}

	u := &unit{path: path, source: source, doc: doc}

	override, ok := doc.Script.Attr("tag")
	if !ok {
		override, _ = doc.Template.Attr("tag")
	}

	u.metadata, err = c.resolver.Resolve(path, override)
	if err != nil {
		return nil, newError(path, source, -1, ErrMetadata, err)
	}

	if doc.Script == nil {
		return u, nil
	}

	u.space = span.Root.Sub("script", doc.Script.Body.Start)

	u.script, err = directive.Analyze(ctx, doc.Script.Body.Text(source), c.opts.Runtime)
	if err != nil {
		return nil, locate(path, source, shiftError(err, u.space))
	}

	return u, nil
}

func (u *unit) shape() Shape {
	switch {
	case u.doc.Script == nil:
		return TemplateOnly
	case u.doc.HasTemplateContent():
		return ScriptTemplate
	default:
		return ScriptOnly
	}
}

func (u *unit) warnings() []Warning {
	if u.script == nil {
		return nil
	}

	li := sourcemap.NewLineIndex(u.source)
	out := make([]Warning, 0, len(u.script.Diagnostics))

	for _, d := range u.script.Diagnostics {
		pos := li.Position(u.space.OffsetToParent(d.Span.Start))
		out = append(out, Warning{
			Path:    u.path,
			Line:    pos.Line + 1,
			Column:  pos.Column + 1,
			Message: d.Message,
		})
	}

	return out
}

// Compile compiles source, read from path, into a JavaScript module and its
// source map. Identical inputs always produce identical outputs.
func (c *Compiler) Compile(ctx context.Context, source, path string) (*Result, error) {
	ctx, sp := otel.Tracer(tracerName).Start(ctx, "estrela.compile",
		trace.WithAttributes(
			attribute.String("estrela.path", path),
			attribute.Int("estrela.source_bytes", len(source)),
		))
	defer sp.End()

	res, err := c.compile(ctx, source, path)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "compile failed")

		return nil, err
	}

	sp.SetAttributes(
		attribute.String("estrela.shape", res.Shape.String()),
		attribute.Int("estrela.output_bytes", len(res.Code)),
		attribute.Int("estrela.warnings", len(res.Warnings)),
	)

	return res, nil
}

func (c *Compiler) compile(ctx context.Context, source, path string) (*Result, error) {
	u, err := c.analyze(ctx, source, path)
	if err != nil {
		return nil, err
	}

	set := c.emit(u)

	res, err := patch.Apply(source, set)
	if err != nil {
		return nil, newError(path, source, -1, ErrInternal, err)
	}

	m := sourcemap.Generate(source, res, sourcemap.Options{
		Source:         path,
		File:           path + ".map",
		IncludeContent: c.opts.IncludeContent,
		Hires:          c.opts.Hires,
	})

	return &Result{
		Code:     res.Text,
		Map:      m,
		Metadata: u.metadata,
		Shape:    u.shape(),
		HasStyle: u.doc.Style != nil,
		Warnings: u.warnings(),
	}, nil
}
