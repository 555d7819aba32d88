package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// ErrUnsupportedFormat is returned for an unknown --format value.
var ErrUnsupportedFormat = errors.New("unsupported format")

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show how the compiler sees a component file",
		Long: `Show how the compiler sees a component file: its tag, sections, dynamic
regions, keyed directives, imports and warnings. No code is generated.

Examples:
  estrela inspect src/my-card.estrela
  estrela inspect -f json src/my-card.estrela`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0], format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json, yaml)")

	return cmd
}

func runInspect(cmd *cobra.Command, opts *rootOptions, path, format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	a, err := setup(cmd, opts, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	source, resolved, err := build.ReadSource(path, a.maxFileSize)
	if err != nil {
		return err
	}

	report, err := a.svc.Compiler().Inspect(cmd.Context(), source, resolved)
	if err != nil {
		return withExcerpt(err, source)
	}

	return writeReport(cmd.OutOrStdout(), report, format)
}

// withExcerpt appends the source excerpt to compile errors.
func withExcerpt(err error, source string) error {
	var cErr *compiler.Error
	if errors.As(err, &cErr) {
		if excerpt := cErr.Excerpt(source); excerpt != "" {
			return fmt.Errorf("%w\n%s", err, strings.TrimRight(excerpt, "\n"))
		}
	}

	return err
}

func writeReport(w io.Writer, report *compiler.Report, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}

		return nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}

		return enc.Close()
	default:
		_, err := io.WriteString(w, renderReport(report))

		return err
	}
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	return tbl
}

func renderReport(report *compiler.Report) string {
	var sb strings.Builder

	summary := newTable()
	summary.SetTitle(report.Path)
	summary.AppendRow(table.Row{"Tag", report.Tag})
	summary.AppendRow(table.Row{"Shape", report.Shape})
	summary.AppendRow(table.Row{"Style", report.HasStyle})

	if report.Filename != "" {
		summary.AppendRow(table.Row{"Filename", report.Filename})
	}

	sb.WriteString(summary.Render())
	sb.WriteString("\n")

	if len(report.Sections) > 0 {
		tbl := newTable()
		tbl.SetTitle("Sections")
		tbl.AppendHeader(table.Row{"Kind", "Line", "Start", "End", "Attributes"})

		for _, sec := range report.Sections {
			tbl.AppendRow(table.Row{sec.Kind, sec.Line, sec.Start, sec.End, formatAttrs(sec.Attrs)})
		}

		sb.WriteString(tbl.Render())
		sb.WriteString("\n")
	}

	if len(report.Regions) > 0 {
		tbl := newTable()
		tbl.SetTitle("Dynamic regions")
		tbl.AppendHeader(table.Row{"Kind", "Origin", "Line:Col", "Text"})

		for _, r := range report.Regions {
			tbl.AppendRow(table.Row{r.Kind, r.Origin, fmt.Sprintf("%d:%d", r.Line, r.Column), r.Text})
		}

		tbl.AppendFooter(table.Row{"", "", "Total", len(report.Regions)})
		sb.WriteString(tbl.Render())
		sb.WriteString("\n")
	}

	if len(report.Directives) > 0 {
		tbl := newTable()
		tbl.SetTitle("Directives")
		tbl.AppendHeader(table.Row{"Kind", "Variable", "Line", "Args", "Options"})

		for _, d := range report.Directives {
			tbl.AppendRow(table.Row{d.Kind, d.Variable, d.Line, d.Args, d.Options})
		}

		sb.WriteString(tbl.Render())
		sb.WriteString("\n")
	}

	if len(report.Imports) > 0 {
		tbl := newTable()
		tbl.SetTitle("Imports")
		tbl.AppendHeader(table.Row{"Module", "Names"})

		modules := make([]string, 0, len(report.Imports))
		for mod := range report.Imports {
			modules = append(modules, mod)
		}

		sort.Strings(modules)

		for _, mod := range modules {
			tbl.AppendRow(table.Row{mod, strings.Join(report.Imports[mod], ", ")})
		}

		sb.WriteString(tbl.Render())
		sb.WriteString("\n")
	}

	for _, w := range report.Warnings {
		fmt.Fprintf(&sb, "warning: %s\n", w)
	}

	return sb.String()
}

func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, attrs[k]))
	}

	return strings.Join(parts, " ")
}
