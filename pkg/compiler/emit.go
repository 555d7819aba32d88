package compiler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/estrelajs/vite-plugin-estrela/pkg/directive"
	"github.com/estrelajs/vite-plugin-estrela/pkg/markup"
	"github.com/estrelajs/vite-plugin-estrela/pkg/patch"
	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
	"github.com/estrelajs/vite-plugin-estrela/pkg/syntax"
)

// Runtime tagged-template pieces.
const (
	templateOpen  = "html`"
	templateClose = "`"
	renderOpen    = "return () => html`"
	styleOpen     = "`;\n}, css`"
	styleClose    = "`);"
	moduleClose   = "`;\n});"
)

func (c *Compiler) importLine(withStyle bool) string {
	names := "defineElement, html"
	if withStyle {
		names += ", css"
	}

	return fmt.Sprintf("import { %s } from %s;", names, strconv.Quote(c.opts.Runtime))
}

// emit builds the patch set for u. Boilerplate is added first, then
// directive rewrites, then region markers, so region wraps nest inside
// anything sharing their boundaries.
func (c *Compiler) emit(u *unit) *patch.Set {
	doc := u.doc
	tag := strconv.Quote(u.metadata.Tag)
	set := patch.NewSet()

	if doc.Script != nil {
		set.Overwrite(doc.Script.Open, c.importLine(doc.Style != nil))
		set.Prepend(u.space.OffsetToParent(u.script.Insertion),
			fmt.Sprintf("\ndefineElement(%s, host => {\n", tag))
		set.Overwrite(doc.Script.Close, renderOpen)
	} else {
		set.Prepend(doc.Stream.Start,
			fmt.Sprintf("%s\ndefineElement(%s, () => {\n%s", c.importLine(doc.Style != nil), tag, renderOpen))
	}

	switch {
	case u.shape() == ScriptOnly && len(doc.Regions.Elements) == 0 && len(doc.Regions.Expressions) == 0:
		if !doc.Stream.Empty() {
			set.Remove(doc.Stream)
		}
	case doc.Template != nil:
		set.Remove(doc.Template.Open)
		set.Remove(doc.Template.Close)
	}

	if doc.Style != nil {
		set.Overwrite(doc.Style.Open, styleOpen)
		set.Overwrite(doc.Style.Close, styleClose)
	} else {
		set.Append(len(u.source), moduleClose)
	}

	if u.script != nil {
		set.Merge(directive.Rewrite(u.script), u.space)
		c.markRegions(set, u.script.Regions.Shift(u.space))
	}

	c.markRegions(set, doc.Regions)

	return set
}

func (c *Compiler) markRegions(set *patch.Set, regions markup.Regions) {
	for _, el := range regions.Elements {
		set.Wrap(el, templateOpen, templateClose)
	}

	for _, ex := range regions.Expressions {
		set.Prepend(ex.Start, c.opts.Sigil)
	}

	for _, d := range regions.Delimiters {
		set.Remove(d)
	}
}

// shiftError moves a located error from space into the root space.
func shiftError(err error, space span.Space) error {
	var synErr *syntax.Error
	if errors.As(err, &synErr) {
		return synErr.Shift(space.Origin)
	}

	return err
}
