package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
)

func newDiffCmd(opts *rootOptions) *cobra.Command {
	var stat bool

	cmd := &cobra.Command{
		Use:   "diff <file>",
		Short: "Show what the compiler changes in a component file",
		Long: `Compile a component file and print a line diff between its source and the
generated module.

Examples:
  estrela diff src/my-card.estrela         # Line diff
  estrela diff --stat src/my-card.estrela  # Only count changed lines`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, opts, args[0], stat)
		},
	}

	cmd.Flags().BoolVar(&stat, "stat", false, "print only the number of added and removed lines")

	return cmd
}

func runDiff(cmd *cobra.Command, opts *rootOptions, path string, stat bool) error {
	a, err := setup(cmd, opts, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	source, _, err := build.ReadSource(path, a.maxFileSize)
	if err != nil {
		return err
	}

	out, err := a.svc.CompileFile(cmd.Context(), path)
	if err != nil {
		return withExcerpt(err, source)
	}

	if !out.Handled {
		return fmt.Errorf("%w: %s", build.ErrNotComponent, path)
	}

	diffs := lineDiff(source, out.Code)

	if stat {
		added, removed := countLines(diffs)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d insertions(+), %d deletions(-)\n", path, added, removed)

		return nil
	}

	printDiff(cmd.OutOrStdout(), path, diffs)

	return nil
}

// lineDiff diffs two texts line by line.
func lineDiff(before, after string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)

	return dmp.DiffCharsToLines(diffs, lines)
}

func splitDiffLines(text string) []string {
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func countLines(diffs []diffmatchpatch.Diff) (added, removed int) {
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(splitDiffLines(d.Text))
		case diffmatchpatch.DiffDelete:
			removed += len(splitDiffLines(d.Text))
		case diffmatchpatch.DiffEqual:
		}
	}

	return added, removed
}

func printDiff(w io.Writer, path string, diffs []diffmatchpatch.Diff) {
	header := color.New(color.Bold)
	header.Fprintf(w, "--- %s\n", path)
	header.Fprintf(w, "+++ %s (compiled)\n", path)

	insert := color.New(color.FgGreen)
	remove := color.New(color.FgRed)

	for _, d := range diffs {
		for _, line := range splitDiffLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				insert.Fprintf(w, "+%s\n", line)
			case diffmatchpatch.DiffDelete:
				remove.Fprintf(w, "-%s\n", line)
			case diffmatchpatch.DiffEqual:
				fmt.Fprintf(w, " %s\n", line)
			}
		}
	}
}
