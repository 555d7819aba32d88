// Package sourcemap renders revision 3 source maps from patch breakpoints.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/estrelajs/vite-plugin-estrela/pkg/patch"
)

// Version is the source map revision produced by Generate.
const Version = 3

// Options controls map generation.
type Options struct {
	// Source is the path recorded in "sources".
	Source string
	// File is the value of the "file" field.
	File string
	// IncludeContent embeds the original text in "sourcesContent".
	IncludeContent bool
	// Hires emits one segment per copied character instead of one per run.
	Hires bool
}

// Map is a revision 3 source map payload.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// JSON returns the serialized map.
func (m *Map) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// String returns the serialized map, or an empty string if it cannot be encoded.
func (m *Map) String() string {
	data, err := m.JSON()
	if err != nil {
		return ""
	}

	return string(data)
}

// URL returns the map as a base64 data URL suitable for an inline
// sourceMappingURL comment.
func (m *Map) URL() string {
	data, err := m.JSON()
	if err != nil {
		return ""
	}

	return DataURL(data)
}

// DataURL encodes serialized map JSON as a base64 data URL.
func DataURL(data []byte) string {
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data)
}

// Segment is one decoded mapping. Generated columns and source positions are
// absolute. Mapped is false for one-field segments.
type Segment struct {
	GeneratedColumn int
	Source          int
	Original        Position
	Mapped          bool
}

// Generate builds the map relating res.Text to original.
func Generate(original string, res *patch.Result, opts Options) *Map {
	g := &generator{
		original: NewLineIndex(original),
		hires:    opts.Hires,
	}

	bps := res.Breakpoints
	for i, bp := range bps {
		end := len(res.Text)
		if i+1 < len(bps) {
			end = bps[i+1].Generated
		}

		g.run(res.Text, bp, end)
	}

	m := &Map{
		Version:  Version,
		File:     opts.File,
		Sources:  []string{opts.Source},
		Names:    []string{},
		Mappings: encode(g.lines),
	}

	if opts.IncludeContent {
		m.SourcesContent = []string{original}
	}

	return m
}

type generator struct {
	original *LineIndex
	hires    bool
	lines    [][]Segment
	line     int
	column   int
}

func (g *generator) emit(seg Segment) {
	for len(g.lines) <= g.line {
		g.lines = append(g.lines, nil)
	}

	segs := g.lines[g.line]
	if n := len(segs); n > 0 && segs[n-1].GeneratedColumn == seg.GeneratedColumn {
		segs[n-1] = seg

		return
	}

	g.lines[g.line] = append(segs, seg)
}

func (g *generator) mapped(originalOffset int) {
	g.emit(Segment{
		GeneratedColumn: g.column,
		Original:        g.original.Position(originalOffset),
		Mapped:          true,
	})
}

// run emits the segments for generated text [bp.Generated, end).
func (g *generator) run(text string, bp patch.Breakpoint, end int) {
	switch bp.Kind {
	case patch.Copied:
		g.mapped(bp.Original)
	case patch.Replaced:
		g.mapped(bp.Original)
	case patch.Synthetic:
		if g.column > 0 {
			g.emit(Segment{GeneratedColumn: g.column})
		}
	}

	lineStart := false

	for i := bp.Generated; i < end; {
		r, size := utf8.DecodeRuneInString(text[i:])

		if bp.Kind == patch.Copied && i > bp.Generated && r != '\n' && (lineStart || g.hires) {
			g.mapped(bp.Original + i - bp.Generated)
		}

		lineStart = false

		if r == '\n' {
			g.line++
			g.column = 0
			lineStart = true
		} else {
			g.column += utf16Width(r)
		}

		i += size
	}

	for len(g.lines) <= g.line {
		g.lines = append(g.lines, nil)
	}
}

func encode(lines [][]Segment) string {
	var sb strings.Builder

	var prevSource, prevLine, prevColumn int

	for li, segs := range lines {
		if li > 0 {
			sb.WriteByte(';')
		}

		prevGenerated := 0

		for si, seg := range segs {
			if si > 0 {
				sb.WriteByte(',')
			}

			appendVLQ(&sb, seg.GeneratedColumn-prevGenerated)
			prevGenerated = seg.GeneratedColumn

			if !seg.Mapped {
				continue
			}

			appendVLQ(&sb, seg.Source-prevSource)
			appendVLQ(&sb, seg.Original.Line-prevLine)
			appendVLQ(&sb, seg.Original.Column-prevColumn)
			prevSource, prevLine, prevColumn = seg.Source, seg.Original.Line, seg.Original.Column
		}
	}

	return sb.String()
}

// Decode parses a mappings string into per-line segments with absolute values.
func Decode(mappings string) ([][]Segment, error) {
	lines := [][]Segment{nil}

	var source, line, column, generated int

	pos := 0
	for pos < len(mappings) {
		switch mappings[pos] {
		case ';':
			lines = append(lines, nil)
			generated = 0
			pos++

			continue
		case ',':
			pos++

			continue
		}

		fields := make([]int, 0, 5) //nolint:mnd // a segment has at most five fields.

		for pos < len(mappings) && mappings[pos] != ',' && mappings[pos] != ';' {
			value, next, err := readVLQ(mappings, pos)
			if err != nil {
				return nil, err
			}

			fields = append(fields, value)
			pos = next
		}

		generated += fields[0]
		seg := Segment{GeneratedColumn: generated}

		if len(fields) >= 4 { //nolint:mnd // four-field segments carry a source position.
			source += fields[1]
			line += fields[2]
			column += fields[3]
			seg.Source = source
			seg.Original = Position{Line: line, Column: column}
			seg.Mapped = true
		}

		lines[len(lines)-1] = append(lines[len(lines)-1], seg)
	}

	return lines, nil
}
