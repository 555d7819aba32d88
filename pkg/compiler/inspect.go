package compiler

import (
	"context"
	"sort"
	"strings"

	"github.com/estrelajs/vite-plugin-estrela/pkg/markup"
	"github.com/estrelajs/vite-plugin-estrela/pkg/sourcemap"
	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
)

// maxRegionText caps the region text carried in a Report.
const maxRegionText = 60

// Report is the structural view of a component file used by tooling.
type Report struct {
	Path       string              `json:"path"                 yaml:"path"`
	Tag        string              `json:"tag"                  yaml:"tag"`
	Filename   string              `json:"filename,omitempty"   yaml:"filename,omitempty"`
	Shape      string              `json:"shape"                yaml:"shape"`
	HasStyle   bool                `json:"has_style"            yaml:"has_style"`
	Sections   []SectionInfo       `json:"sections"             yaml:"sections"`
	Regions    []RegionInfo        `json:"regions"              yaml:"regions"`
	Directives []DirectiveInfo     `json:"directives,omitempty" yaml:"directives,omitempty"`
	Imports    map[string][]string `json:"imports,omitempty"    yaml:"imports,omitempty"`
	Warnings   []Warning           `json:"warnings,omitempty"   yaml:"warnings,omitempty"`
}

// SectionInfo describes a top-level section.
type SectionInfo struct {
	Kind  string            `json:"kind"            yaml:"kind"`
	Start int               `json:"start"           yaml:"start"`
	End   int               `json:"end"             yaml:"end"`
	Line  int               `json:"line"            yaml:"line"`
	Attrs map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// RegionInfo describes a dynamic region.
type RegionInfo struct {
	Kind   string `json:"kind"   yaml:"kind"`
	Origin string `json:"origin" yaml:"origin"`
	Start  int    `json:"start"  yaml:"start"`
	End    int    `json:"end"    yaml:"end"`
	Line   int    `json:"line"   yaml:"line"`
	Column int    `json:"column" yaml:"column"`
	Text   string `json:"text"   yaml:"text"`
}

// DirectiveInfo describes a keyed directive call.
type DirectiveInfo struct {
	Kind     string `json:"kind"     yaml:"kind"`
	Variable string `json:"variable" yaml:"variable"`
	Line     int    `json:"line"     yaml:"line"`
	Args     int    `json:"args"     yaml:"args"`
	Options  bool   `json:"options"  yaml:"options"`
}

// Inspect parses source without emitting code and reports what the compiler
// sees in it.
func (c *Compiler) Inspect(ctx context.Context, source, path string) (*Report, error) {
	u, err := c.analyze(ctx, source, path)
	if err != nil {
		return nil, err
	}

	li := sourcemap.NewLineIndex(source)
	rep := &Report{
		Path:     path,
		Tag:      u.metadata.Tag,
		Filename: u.metadata.Filename,
		Shape:    u.shape().String(),
		HasStyle: u.doc.Style != nil,
		Warnings: u.warnings(),
	}

	for _, sec := range []*markup.Section{u.doc.Script, u.doc.Template, u.doc.Style} {
		if sec == nil {
			continue
		}

		rep.Sections = append(rep.Sections, SectionInfo{
			Kind:  sec.Kind.String(),
			Start: sec.Outer.Start,
			End:   sec.Outer.End,
			Line:  li.Position(sec.Outer.Start).Line + 1,
			Attrs: sec.Attrs,
		})
	}

	if u.script != nil {
		rep.Regions = appendRegions(rep.Regions, li, source, "script", u.script.Regions.Shift(u.space))

		for _, call := range u.script.Calls {
			_, hasOpts := call.Options()
			rep.Directives = append(rep.Directives, DirectiveInfo{
				Kind:     call.Kind.String(),
				Variable: call.Variable,
				Line:     li.Position(u.space.OffsetToParent(call.Call.Start)).Line + 1,
				Args:     len(call.Args),
				Options:  hasOpts,
			})
		}

		rep.Imports = make(map[string][]string, len(u.script.Imports))

		for mod, bindings := range u.script.Imports {
			names := make([]string, 0, len(bindings))
			for _, b := range bindings {
				names = append(names, b.Local)
			}

			rep.Imports[mod] = names
		}
	}

	rep.Regions = appendRegions(rep.Regions, li, source, "template", u.doc.Regions)

	sort.SliceStable(rep.Regions, func(i, j int) bool {
		return rep.Regions[i].Start < rep.Regions[j].Start
	})

	return rep, nil
}

func appendRegions(out []RegionInfo, li *sourcemap.LineIndex, source, origin string, regions markup.Regions) []RegionInfo {
	add := func(kind string, sp span.Span) {
		pos := li.Position(sp.Start)
		out = append(out, RegionInfo{
			Kind:   kind,
			Origin: origin,
			Start:  sp.Start,
			End:    sp.End,
			Line:   pos.Line + 1,
			Column: pos.Column + 1,
			Text:   abbreviate(sp.Text(source)),
		})
	}

	for _, el := range regions.Elements {
		add("element", el)
	}

	for _, ex := range regions.Expressions {
		add("expression", ex)
	}

	return out
}

func abbreviate(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxRegionText {
		return s
	}

	return string(runes[:maxRegionText-1]) + "…"
}
